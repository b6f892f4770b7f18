package models

import (
	"time"

	"quizrun-go/internal/api"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptFinished   AttemptStatus = "finished"
)

// Completion records how an attempt was closed.
type Completion string

const (
	CompletionSubmitted Completion = "submitted"
	CompletionExpired   Completion = "expired"
)

// Attempt is one student's run through one quiz. Result fields stay nil until
// the attempt is finished.
type Attempt struct {
	ID               string        `gorm:"primaryKey;size:36"`
	QuizID           string        `gorm:"not null;size:64;index:idx_attempt_student_quiz"`
	StudentID        string        `gorm:"not null;size:255;index:idx_attempt_student_quiz"`
	Status           AttemptStatus `gorm:"not null;default:in_progress;index"`
	StartedAt        time.Time     `gorm:"not null"`
	FinishedAt       *time.Time
	TimeLimitSeconds *int
	Total            int
	Score            *int
	Passed           *bool
	ElapsedSeconds   *int
	Completion       Completion `gorm:"size:16"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Answer is the latest option a student chose for one question of an attempt.
type Answer struct {
	AttemptID      string `gorm:"primaryKey;size:36"`
	QuestionID     string `gorm:"primaryKey;size:64"`
	SelectedOption string `gorm:"not null"`
	UpdatedAt      time.Time
}

// Deadline reports when the attempt runs out of time, if it is timed.
func (a *Attempt) Deadline() (time.Time, bool) {
	if a.TimeLimitSeconds == nil {
		return time.Time{}, false
	}
	return a.StartedAt.Add(time.Duration(*a.TimeLimitSeconds) * time.Second), true
}

// Expired reports whether now is past the deadline plus grace.
func (a *Attempt) Expired(now time.Time, grace time.Duration) bool {
	deadline, ok := a.Deadline()
	return ok && now.After(deadline.Add(grace))
}

// Remaining is the time left before the deadline at now, never negative. It
// reports false for an untimed attempt.
func (a *Attempt) Remaining(now time.Time) (time.Duration, bool) {
	deadline, ok := a.Deadline()
	if !ok {
		return 0, false
	}
	left := deadline.Sub(now)
	if left < 0 {
		left = 0
	}
	return left, true
}

func (a *Attempt) Finished() bool {
	return a.Status == AttemptFinished
}

// Result is the finish payload of a finished attempt.
func (a *Attempt) Result() api.Result {
	var res api.Result
	if a.Score != nil {
		res.Score = *a.Score
	}
	if a.Passed != nil {
		res.Passed = *a.Passed
	}
	if a.ElapsedSeconds != nil {
		res.ElapsedSeconds = *a.ElapsedSeconds
	}
	return res
}

// View is the read-only representation of the attempt. answers may be nil.
func (a *Attempt) View(answers map[string]string) api.Attempt {
	return api.Attempt{
		ID:             a.ID,
		QuizID:         a.QuizID,
		Status:         string(a.Status),
		StartedAt:      a.StartedAt,
		FinishedAt:     a.FinishedAt,
		TotalQuestions: a.Total,
		Score:          a.Score,
		Passed:         a.Passed,
		ElapsedSeconds: a.ElapsedSeconds,
		Answers:        answers,
	}
}
