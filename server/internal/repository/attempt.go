package repository

import (
	"context"
	"errors"
	"time"

	"quizrun-go/server/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttemptRepository struct {
	db *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

func (r *AttemptRepository) Create(ctx context.Context, attempt *models.Attempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *AttemptRepository) Find(ctx context.Context, id string) (*models.Attempt, error) {
	var attempt models.Attempt
	err := r.db.WithContext(ctx).First(&attempt, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// FindActive returns the student's in-progress attempt at quizID, newest first.
func (r *AttemptRepository) FindActive(ctx context.Context, studentID, quizID string) (*models.Attempt, error) {
	var attempt models.Attempt
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND quiz_id = ? AND status = ?", studentID, quizID, models.AttemptInProgress).
		Order("started_at DESC").
		First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// Count returns how many attempts the student has made at quizID.
func (r *AttemptRepository) Count(ctx context.Context, studentID, quizID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Attempt{}).
		Where("student_id = ? AND quiz_id = ?", studentID, quizID).
		Count(&n).Error
	return n, err
}

// ListForStudent returns the student's attempts at quizID, newest first.
func (r *AttemptRepository) ListForStudent(ctx context.Context, studentID, quizID string) ([]models.Attempt, error) {
	var attempts []models.Attempt
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND quiz_id = ?", studentID, quizID).
		Order("started_at DESC").
		Find(&attempts).Error
	return attempts, err
}

// ListForQuiz returns every attempt at quizID, oldest first.
func (r *AttemptRepository) ListForQuiz(ctx context.Context, quizID string) ([]models.Attempt, error) {
	var attempts []models.Attempt
	err := r.db.WithContext(ctx).
		Where("quiz_id = ?", quizID).
		Order("started_at ASC").
		Find(&attempts).Error
	return attempts, err
}

// ListTimedInProgress returns in-progress attempts with a time limit that
// started before the given instant. Callers check the exact deadline.
func (r *AttemptRepository) ListTimedInProgress(ctx context.Context, startedBefore time.Time) ([]models.Attempt, error) {
	var attempts []models.Attempt
	err := r.db.WithContext(ctx).
		Where("status = ? AND time_limit_seconds IS NOT NULL AND started_at < ?", models.AttemptInProgress, startedBefore).
		Find(&attempts).Error
	return attempts, err
}

// Finish closes an in-progress attempt with the result build computes from
// its answers. The attempt row is claimed first, so an answer saved
// concurrently is either graded here or rejected by SaveIfOpen. It reports
// false when the attempt had already been finished, in which case nothing is
// written.
func (r *AttemptRepository) Finish(ctx context.Context, attemptID string, now time.Time, build func(answers map[string]string) *models.Attempt) (bool, error) {
	won := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		open, err := claimOpen(tx, attemptID, now)
		if err != nil || !open {
			return err
		}
		answers, err := answersFor(tx, attemptID)
		if err != nil {
			return err
		}

		closed := build(answers)
		res := tx.Model(&models.Attempt{}).
			Where("id = ? AND status = ?", attemptID, models.AttemptInProgress).
			Updates(map[string]interface{}{
				"status":          models.AttemptFinished,
				"finished_at":     closed.FinishedAt,
				"score":           closed.Score,
				"passed":          closed.Passed,
				"elapsed_seconds": closed.ElapsedSeconds,
				"completion":      closed.Completion,
			})
		if res.Error != nil {
			return res.Error
		}
		won = res.RowsAffected == 1
		return nil
	})
	return won, err
}

// claimOpen touches the attempt row while it is in progress. The write takes
// the row lock, which serializes answer saves against finishing.
func claimOpen(tx *gorm.DB, attemptID string, now time.Time) (bool, error) {
	res := tx.Model(&models.Attempt{}).
		Where("id = ? AND status = ?", attemptID, models.AttemptInProgress).
		UpdateColumn("updated_at", now)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

type AnswerRepository struct {
	db *gorm.DB
}

func NewAnswerRepository(db *gorm.DB) *AnswerRepository {
	return &AnswerRepository{db: db}
}

// SaveIfOpen records the answer, overwriting any earlier one for the same
// question, but only while its attempt is in progress. It reports false,
// writing nothing, once the attempt has been finished.
func (r *AnswerRepository) SaveIfOpen(ctx context.Context, answer *models.Answer) (bool, error) {
	saved := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		open, err := claimOpen(tx, answer.AttemptID, answer.UpdatedAt)
		if err != nil || !open {
			return err
		}
		if err := upsertAnswer(tx, answer); err != nil {
			return err
		}
		saved = true
		return nil
	})
	return saved, err
}

func upsertAnswer(db *gorm.DB, answer *models.Answer) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"selected_option", "updated_at"}),
	}).Create(answer).Error
}

// ForAttempt returns the answers of an attempt keyed by question id.
func (r *AnswerRepository) ForAttempt(ctx context.Context, attemptID string) (map[string]string, error) {
	return answersFor(r.db.WithContext(ctx), attemptID)
}

func answersFor(db *gorm.DB, attemptID string) (map[string]string, error) {
	var rows []models.Answer
	if err := db.Where("attempt_id = ?", attemptID).Find(&rows).Error; err != nil {
		return nil, err
	}
	answers := make(map[string]string, len(rows))
	for _, row := range rows {
		answers[row.QuestionID] = row.SelectedOption
	}
	return answers, nil
}
