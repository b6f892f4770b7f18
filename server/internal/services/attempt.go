package services

import (
	"context"
	"errors"
	"time"

	"quizrun-go/internal/api"
	"quizrun-go/server/internal/event"
	"quizrun-go/server/internal/models"
	"quizrun-go/server/internal/repository"
	"quizrun-go/server/internal/telemetry"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AttemptOptions tune an AttemptService.
type AttemptOptions struct {
	Clock clock.Clock
	// Grace is how long after its deadline a timed attempt still accepts
	// answers, to absorb client latency.
	Grace time.Duration
}

// AttemptService owns the server side of the attempt lifecycle. Scores are
// computed here and nowhere else.
type AttemptService struct {
	quizzes  *QuizService
	attempts *repository.AttemptRepository
	answers  *repository.AnswerRepository
	events   event.Publisher
	metrics  *telemetry.Metrics
	clock    clock.Clock
	grace    time.Duration
	log      *zap.Logger
}

func NewAttemptService(
	quizzes *QuizService,
	attempts *repository.AttemptRepository,
	answers *repository.AnswerRepository,
	events event.Publisher,
	metrics *telemetry.Metrics,
	log *zap.Logger,
	opts AttemptOptions,
) *AttemptService {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if events == nil {
		events = event.Noop{Log: log}
	}
	return &AttemptService{
		quizzes:  quizzes,
		attempts: attempts,
		answers:  answers,
		events:   events,
		metrics:  metrics,
		clock:    opts.Clock,
		grace:    opts.Grace,
		log:      log,
	}
}

func (s *AttemptService) now() time.Time {
	return s.clock.Now().UTC()
}

// Start opens an attempt for the student. An unexpired in-progress attempt is
// resumed instead; an expired one is closed first and counts toward the limit.
func (s *AttemptService) Start(ctx context.Context, studentID, quizID string) (*models.Attempt, error) {
	quiz, err := s.quizzes.Definition(ctx, quizID)
	if err != nil {
		return nil, err
	}

	active, err := s.attempts.FindActive(ctx, studentID, quizID)
	switch {
	case err == nil:
		now := s.now()
		if !active.Expired(now, 0) {
			s.log.Info("Resuming attempt", zap.String("attempt_id", active.ID), zap.String("student_id", studentID))
			return active, nil
		}
		if _, err := s.finish(ctx, active, quiz, now); err != nil {
			return nil, err
		}
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	if quiz.AllowedAttempts > 0 {
		count, err := s.attempts.Count(ctx, studentID, quizID)
		if err != nil {
			return nil, err
		}
		if count >= int64(quiz.AllowedAttempts) {
			return nil, ErrAttemptLimit
		}
	}

	attempt := &models.Attempt{
		ID:               uuid.NewString(),
		QuizID:           quiz.ID,
		StudentID:        studentID,
		Status:           models.AttemptInProgress,
		StartedAt:        s.now(),
		TimeLimitSeconds: quiz.TimeLimitSeconds(),
		Total:            len(quiz.Questions),
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return nil, err
	}

	s.metrics.AttemptsStarted.Inc()
	s.publish(ctx, event.Event{Type: event.AttemptStarted}, attempt)
	s.log.Info("Attempt started",
		zap.String("attempt_id", attempt.ID),
		zap.String("quiz_id", quiz.ID),
		zap.String("student_id", studentID),
	)
	return attempt, nil
}

// Remaining is the time the attempt has left by the server's clock.
func (s *AttemptService) Remaining(attempt *models.Attempt) (time.Duration, bool) {
	return attempt.Remaining(s.now())
}

// Answer records the student's option for a question, replacing any earlier
// one. Answers to a finished or expired attempt are rejected.
func (s *AttemptService) Answer(ctx context.Context, studentID, attemptID, questionID, option string) error {
	attempt, err := s.owned(ctx, studentID, attemptID)
	if err != nil {
		return err
	}
	if attempt.Finished() {
		return ErrAttemptFinished
	}

	quiz, err := s.quizzes.Definition(ctx, attempt.QuizID)
	if err != nil {
		return err
	}

	now := s.now()
	if attempt.Expired(now, s.grace) {
		if _, err := s.finish(ctx, attempt, quiz, now); err != nil {
			return err
		}
		return ErrAttemptFinished
	}

	question, ok := quiz.Question(questionID)
	if !ok {
		return ErrUnknownQuestion
	}
	if !question.Offers(option) {
		return ErrUnknownOption
	}

	saved, err := s.answers.SaveIfOpen(ctx, &models.Answer{
		AttemptID:      attempt.ID,
		QuestionID:     questionID,
		SelectedOption: option,
		UpdatedAt:      now,
	})
	if err != nil {
		return err
	}
	if !saved {
		// Finished by another request since it was read.
		return ErrAttemptFinished
	}

	s.metrics.AnswersSaved.Inc()
	s.publish(ctx, event.Event{Type: event.AttemptAnswered, QuestionID: questionID}, attempt)
	return nil
}

// Finish grades and closes the attempt. Finishing an already finished attempt
// returns the stored result unchanged.
func (s *AttemptService) Finish(ctx context.Context, studentID, attemptID string) (*models.Attempt, error) {
	attempt, err := s.owned(ctx, studentID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Finished() {
		return attempt, nil
	}
	quiz, err := s.quizzes.Definition(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, attempt, quiz, s.now())
}

// Get returns the student's view of one attempt with its answers.
func (s *AttemptService) Get(ctx context.Context, studentID, attemptID string) (api.Attempt, error) {
	attempt, err := s.owned(ctx, studentID, attemptID)
	if err != nil {
		return api.Attempt{}, err
	}
	answers, err := s.answers.ForAttempt(ctx, attempt.ID)
	if err != nil {
		return api.Attempt{}, err
	}
	return attempt.View(answers), nil
}

// List returns the student's attempts at quizID, newest first. Attempts whose
// time ran out are closed on the way.
func (s *AttemptService) List(ctx context.Context, studentID, quizID string) ([]api.Attempt, error) {
	attempts, err := s.attempts.ListForStudent(ctx, studentID, quizID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]api.Attempt, 0, len(attempts))
	for i := range attempts {
		attempt := &attempts[i]
		if !attempt.Finished() && attempt.Expired(now, s.grace) {
			quiz, err := s.quizzes.Definition(ctx, attempt.QuizID)
			if err != nil {
				return nil, err
			}
			if attempt, err = s.finish(ctx, attempt, quiz, now); err != nil {
				return nil, err
			}
		}
		views = append(views, attempt.View(nil))
	}
	return views, nil
}

// CloseExpired finishes every in-progress attempt whose deadline plus grace
// has passed, so an abandoned attempt still gets a result.
func (s *AttemptService) CloseExpired(ctx context.Context) (int, error) {
	now := s.now()
	candidates, err := s.attempts.ListTimedInProgress(ctx, now)
	if err != nil {
		return 0, err
	}

	closed := 0
	quizzes := make(map[string]*models.Quiz)
	for i := range candidates {
		attempt := &candidates[i]
		if !attempt.Expired(now, s.grace) {
			continue
		}
		quiz, ok := quizzes[attempt.QuizID]
		if !ok {
			if quiz, err = s.quizzes.Definition(ctx, attempt.QuizID); err != nil {
				s.log.Error("Failed to load quiz for expired attempt", zap.String("attempt_id", attempt.ID), zap.Error(err))
				continue
			}
			quizzes[attempt.QuizID] = quiz
		}
		if _, err := s.finish(ctx, attempt, quiz, now); err != nil {
			s.log.Error("Failed to close expired attempt", zap.String("attempt_id", attempt.ID), zap.Error(err))
			continue
		}
		closed++
	}
	return closed, nil
}

func (s *AttemptService) owned(ctx context.Context, studentID, attemptID string) (*models.Attempt, error) {
	attempt, err := s.attempts.Find(ctx, attemptID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	// Someone else's attempt is reported as missing.
	if attempt.StudentID != studentID {
		return nil, ErrAttemptNotFound
	}
	return attempt, nil
}

// finish grades the attempt at now and closes it. The elapsed time never
// exceeds the time limit. Grading reads the answers under the same claim that
// answer saves take, so the stored score matches the stored answers. When
// another request closed the attempt first, the stored result wins.
func (s *AttemptService) finish(ctx context.Context, attempt *models.Attempt, quiz *models.Quiz, now time.Time) (*models.Attempt, error) {
	elapsed := now.Sub(attempt.StartedAt)
	completion := models.CompletionSubmitted
	if deadline, ok := attempt.Deadline(); ok && now.After(deadline) {
		elapsed = deadline.Sub(attempt.StartedAt)
		completion = models.CompletionExpired
	}
	if elapsed < 0 {
		elapsed = 0
	}
	secs := int(elapsed / time.Second)

	var (
		closed models.Attempt
		grade  Grade
	)
	won, err := s.attempts.Finish(ctx, attempt.ID, now, func(answers map[string]string) *models.Attempt {
		grade = GradeAnswers(quiz, answers)
		closed = *attempt
		closed.Status = models.AttemptFinished
		closed.FinishedAt = &now
		closed.Score = &grade.Score
		closed.Passed = &grade.Passed
		closed.ElapsedSeconds = &secs
		closed.Completion = completion
		return &closed
	})
	if err != nil {
		return nil, err
	}
	if !won {
		return s.attempts.Find(ctx, attempt.ID)
	}

	s.metrics.AttemptsFinished.WithLabelValues(string(completion)).Inc()
	s.publish(ctx, event.Event{
		Type:       event.AttemptFinished,
		Score:      closed.Score,
		Passed:     closed.Passed,
		Completion: string(completion),
	}, &closed)
	s.log.Info("Attempt finished",
		zap.String("attempt_id", closed.ID),
		zap.String("completion", string(completion)),
		zap.Int("score", grade.Score),
		zap.Int("total", grade.Total),
		zap.Bool("passed", grade.Passed),
	)
	return &closed, nil
}

// publish fills in the attempt fields of e and sends it. Event delivery is
// best-effort and never fails the request.
func (s *AttemptService) publish(ctx context.Context, e event.Event, attempt *models.Attempt) {
	e.AttemptID = attempt.ID
	e.QuizID = attempt.QuizID
	e.StudentID = attempt.StudentID
	e.OccurredAt = s.now()
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.Warn("Failed to publish event", zap.String("type", string(e.Type)), zap.Error(err))
	}
}
