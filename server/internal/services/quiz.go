package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"quizrun-go/internal/api"
	"quizrun-go/server/internal/cache"
	"quizrun-go/server/internal/models"
	"quizrun-go/server/internal/repository"

	"go.uber.org/zap"
)

var (
	ErrQuizNotFound    = errors.New("quiz not found")
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrAttemptLimit    = errors.New("attempt limit reached")
	ErrAttemptFinished = errors.New("attempt already finished")
	ErrUnknownQuestion = errors.New("question does not belong to the quiz")
	ErrUnknownOption   = errors.New("option is not offered by the question")
)

// QuizService serves quiz definitions, caching the public view.
type QuizService struct {
	repo  *repository.QuizRepository
	cache cache.Cache
	ttl   time.Duration
	log   *zap.Logger
}

func NewQuizService(repo *repository.QuizRepository, c cache.Cache, ttl time.Duration, log *zap.Logger) *QuizService {
	if c == nil {
		c = cache.Noop{}
	}
	return &QuizService{repo: repo, cache: c, ttl: ttl, log: log}
}

func publicKey(quizID string) string {
	return "quiz:" + quizID + ":public"
}

// Seed stores every quiz and drops their cached views.
func (s *QuizService) Seed(ctx context.Context, quizzes []models.Quiz) error {
	for i := range quizzes {
		if err := s.repo.Upsert(ctx, &quizzes[i]); err != nil {
			return err
		}
		if err := s.cache.Delete(ctx, publicKey(quizzes[i].ID)); err != nil {
			s.log.Warn("Failed to invalidate cached quiz", zap.String("quiz_id", quizzes[i].ID), zap.Error(err))
		}
	}
	s.log.Info("Quizzes seeded", zap.Int("count", len(quizzes)))
	return nil
}

// Public returns the student-facing quiz. A cache failure only costs a
// database read.
func (s *QuizService) Public(ctx context.Context, quizID string) (*api.Quiz, error) {
	raw, err := s.cache.Get(ctx, publicKey(quizID))
	switch {
	case err == nil:
		var quiz api.Quiz
		if err := json.Unmarshal(raw, &quiz); err == nil {
			return &quiz, nil
		}
		s.log.Warn("Discarding undecodable cached quiz", zap.String("quiz_id", quizID))
	case !errors.Is(err, cache.ErrMiss):
		s.log.Warn("Quiz cache read failed", zap.String("quiz_id", quizID), zap.Error(err))
	}

	def, err := s.Definition(ctx, quizID)
	if err != nil {
		return nil, err
	}
	quiz := def.Public()
	if raw, err := json.Marshal(quiz); err == nil {
		if err := s.cache.Set(ctx, publicKey(quizID), raw, s.ttl); err != nil {
			s.log.Warn("Quiz cache write failed", zap.String("quiz_id", quizID), zap.Error(err))
		}
	}
	return &quiz, nil
}

// Definition returns the full quiz including correct options. It is never
// cached.
func (s *QuizService) Definition(ctx context.Context, quizID string) (*models.Quiz, error) {
	quiz, err := s.repo.Find(ctx, quizID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrQuizNotFound
	}
	return quiz, err
}
