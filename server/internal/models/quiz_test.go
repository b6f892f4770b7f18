package models

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuizzes(t *testing.T) {
	quizzes, err := ParseQuizzes([]byte(`
quizzes:
  - id: go-basics
    title: Go basics
    time_limit_minutes: 5
    passing_score: 60
    allowed_attempts: 3
    questions:
      - id: q1
        prompt: Zero value of int?
        options: ["0", "nil"]
        correct: "0"
      - id: q2
        prompt: Goroutine keyword?
        options: ["async", "go"]
        correct: "go"
`))
	require.NoError(t, err)
	require.Len(t, quizzes, 1)

	quiz := quizzes[0]
	assert.Equal(t, 300, *quiz.TimeLimitSeconds())
	require.Len(t, quiz.Questions, 2)
	assert.Equal(t, "go-basics", quiz.Questions[1].QuizID)
	assert.Equal(t, 1, quiz.Questions[1].Position)

	public := quiz.Public()
	assert.Equal(t, []string{"async", "go"}, public.Questions[1].Options)
	limit, ok := public.TimeLimit()
	assert.True(t, ok)
	assert.Equal(t, 5*time.Minute, limit)
}

func TestParseQuizzesRejectsInvalidDefinitions(t *testing.T) {
	cases := map[string]string{
		"missing title": `
quizzes:
  - id: a
    questions:
      - {id: q1, prompt: p, options: [x, y], correct: x}
`,
		"single option": `
quizzes:
  - id: a
    title: A
    questions:
      - {id: q1, prompt: p, options: [x], correct: x}
`,
		"duplicate option": `
quizzes:
  - id: a
    title: A
    questions:
      - {id: q1, prompt: p, options: [x, x], correct: x}
`,
		"correct not offered": `
quizzes:
  - id: a
    title: A
    questions:
      - {id: q1, prompt: p, options: [x, y], correct: z}
`,
		"duplicate question": `
quizzes:
  - id: a
    title: A
    questions:
      - {id: q1, prompt: p, options: [x, y], correct: x}
      - {id: q1, prompt: p, options: [x, y], correct: y}
`,
		"duplicate quiz": `
quizzes:
  - id: a
    title: A
    questions:
      - {id: q1, prompt: p, options: [x, y], correct: x}
  - id: a
    title: B
    questions:
      - {id: q1, prompt: p, options: [x, y], correct: x}
`,
		"passing score over 100": `
quizzes:
  - id: a
    title: A
    passing_score: 120
    questions:
      - {id: q1, prompt: p, options: [x, y], correct: x}
`,
		"no questions": `
quizzes:
  - id: a
    title: A
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseQuizzes([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadQuizzes(t *testing.T) {
	_, err := LoadQuizzes(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "quizzes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
quizzes:
  - id: a
    title: A
    questions:
      - {id: q1, prompt: p, options: [x, y], correct: y}
`), 0o600))
	quizzes, err := LoadQuizzes(path)
	require.NoError(t, err)
	assert.Nil(t, quizzes[0].TimeLimitSeconds())
}

func TestAttemptExpiry(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	limit := 60
	timed := Attempt{StartedAt: start, TimeLimitSeconds: &limit}

	deadline, ok := timed.Deadline()
	require.True(t, ok)
	assert.Equal(t, start.Add(time.Minute), deadline)
	assert.False(t, timed.Expired(start.Add(time.Minute), 0))
	assert.True(t, timed.Expired(start.Add(time.Minute+time.Second), 0))
	assert.False(t, timed.Expired(start.Add(time.Minute+time.Second), 5*time.Second))

	untimed := Attempt{StartedAt: start}
	_, ok = untimed.Deadline()
	assert.False(t, ok)
	assert.False(t, untimed.Expired(start.Add(24*time.Hour), 0))
}
