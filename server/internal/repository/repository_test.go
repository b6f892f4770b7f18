package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"quizrun-go/internal/config"
	"quizrun-go/server/internal/database"
	"quizrun-go/server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func TestQuizUpsertReplacesQuestions(t *testing.T) {
	repo := NewQuizRepository(newTestDB(t))
	ctx := context.Background()

	quiz := &models.Quiz{ID: "a", Title: "A", Questions: []models.Question{
		{QuizID: "a", ID: "q2", Position: 0, Prompt: "second", Options: []string{"x", "y"}, CorrectOption: "x"},
		{QuizID: "a", ID: "q1", Position: 1, Prompt: "first", Options: []string{"x", "y"}, CorrectOption: "y"},
	}}
	require.NoError(t, repo.Upsert(ctx, quiz))

	found, err := repo.Find(ctx, "a")
	require.NoError(t, err)
	require.Len(t, found.Questions, 2)
	assert.Equal(t, "q2", found.Questions[0].ID)
	assert.Equal(t, []string{"x", "y"}, found.Questions[1].Options)

	quiz.Title = "A2"
	quiz.Questions = quiz.Questions[:1]
	require.NoError(t, repo.Upsert(ctx, quiz))
	found, err = repo.Find(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "A2", found.Title)
	assert.Len(t, found.Questions, 1)

	_, err = repo.Find(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func closeWith(score int, finished time.Time) func(map[string]string) *models.Attempt {
	return func(map[string]string) *models.Attempt {
		elapsed, passed := 60, score > 0
		return &models.Attempt{
			FinishedAt:     &finished,
			Score:          &score,
			Passed:         &passed,
			ElapsedSeconds: &elapsed,
			Completion:     models.CompletionSubmitted,
		}
	}
}

func TestAttemptFinishIsConditional(t *testing.T) {
	repo := NewAttemptRepository(newTestDB(t))
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	attempt := &models.Attempt{ID: "att-1", QuizID: "a", StudentID: "ana", Status: models.AttemptInProgress, StartedAt: start, Total: 2}
	require.NoError(t, repo.Create(ctx, attempt))

	active, err := repo.FindActive(ctx, "ana", "a")
	require.NoError(t, err)
	assert.Equal(t, "att-1", active.ID)

	finished := start.Add(time.Minute)
	won, err := repo.Finish(ctx, "att-1", finished, closeWith(2, finished))
	require.NoError(t, err)
	assert.True(t, won)

	built := false
	won, err = repo.Finish(ctx, "att-1", finished, func(answers map[string]string) *models.Attempt {
		built = true
		return closeWith(0, finished)(answers)
	})
	require.NoError(t, err)
	assert.False(t, won)
	assert.False(t, built, "a finished attempt is not graded again")

	stored, err := repo.Find(ctx, "att-1")
	require.NoError(t, err)
	assert.Equal(t, models.AttemptFinished, stored.Status)
	assert.Equal(t, 2, *stored.Score)

	_, err = repo.FindActive(ctx, "ana", "a")
	assert.ErrorIs(t, err, ErrNotFound)
	count, err := repo.Count(ctx, "ana", "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestAnswerSaveOverwrites(t *testing.T) {
	db := newTestDB(t)
	attempts := NewAttemptRepository(db)
	repo := NewAnswerRepository(db)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	for _, id := range []string{"att-1", "att-2"} {
		require.NoError(t, attempts.Create(ctx, &models.Attempt{ID: id, QuizID: "a", StudentID: "ana", Status: models.AttemptInProgress, StartedAt: now}))
	}

	for _, a := range []models.Answer{
		{AttemptID: "att-1", QuestionID: "q1", SelectedOption: "x", UpdatedAt: now},
		{AttemptID: "att-1", QuestionID: "q1", SelectedOption: "y", UpdatedAt: now.Add(time.Second)},
		{AttemptID: "att-1", QuestionID: "q2", SelectedOption: "x", UpdatedAt: now},
		{AttemptID: "att-2", QuestionID: "q1", SelectedOption: "x", UpdatedAt: now},
	} {
		a := a
		saved, err := repo.SaveIfOpen(ctx, &a)
		require.NoError(t, err)
		require.True(t, saved)
	}

	answers, err := repo.ForAttempt(ctx, "att-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"q1": "y", "q2": "x"}, answers)
}

func TestAnswerAfterFinishIsNotStored(t *testing.T) {
	db := newTestDB(t)
	attempts := NewAttemptRepository(db)
	answers := NewAnswerRepository(db)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, attempts.Create(ctx, &models.Attempt{ID: "att-1", QuizID: "a", StudentID: "ana", Status: models.AttemptInProgress, StartedAt: now, Total: 2}))
	saved, err := answers.SaveIfOpen(ctx, &models.Answer{AttemptID: "att-1", QuestionID: "q1", SelectedOption: "x", UpdatedAt: now})
	require.NoError(t, err)
	require.True(t, saved)

	var graded map[string]string
	won, err := attempts.Finish(ctx, "att-1", now.Add(time.Minute), func(a map[string]string) *models.Attempt {
		graded = a
		return closeWith(len(a), now.Add(time.Minute))(a)
	})
	require.NoError(t, err)
	require.True(t, won)
	assert.Equal(t, map[string]string{"q1": "x"}, graded)

	// A save that read the attempt before it closed must not land afterwards.
	saved, err = answers.SaveIfOpen(ctx, &models.Answer{AttemptID: "att-1", QuestionID: "q2", SelectedOption: "y", UpdatedAt: now.Add(2 * time.Minute)})
	require.NoError(t, err)
	assert.False(t, saved)

	stored, err := answers.ForAttempt(ctx, "att-1")
	require.NoError(t, err)
	assert.Equal(t, graded, stored)

	saved, err = answers.SaveIfOpen(ctx, &models.Answer{AttemptID: "missing", QuestionID: "q1", SelectedOption: "x", UpdatedAt: now})
	require.NoError(t, err)
	assert.False(t, saved)
}
