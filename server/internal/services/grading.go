package services

import (
	"math"

	"quizrun-go/server/internal/models"
)

// Grade is the outcome of grading one attempt.
type Grade struct {
	Score      int
	Total      int
	Percentage int
	Passed     bool
}

// GradeAnswers counts correct answers. Unanswered questions count as wrong.
// The pass check compares exact fractions, so rounding never flips it.
func GradeAnswers(quiz *models.Quiz, answers map[string]string) Grade {
	g := Grade{Total: len(quiz.Questions)}
	for _, q := range quiz.Questions {
		if selected, ok := answers[q.ID]; ok && selected == q.CorrectOption {
			g.Score++
		}
	}
	if g.Total > 0 {
		g.Percentage = int(math.Round(float64(g.Score) / float64(g.Total) * 100))
	}
	g.Passed = g.Score*100 >= quiz.PassingScore*g.Total
	return g
}
