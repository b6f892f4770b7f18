// quiz.go
package models

import (
	"fmt"
	"os"
	"time"

	"quizrun-go/internal/api"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Quiz is a quiz definition as stored by the server.
type Quiz struct {
	ID               string     `gorm:"primaryKey;size:64" yaml:"id" validate:"required"`
	Title            string     `yaml:"title" validate:"required"`
	Description      string     `yaml:"description"`
	TimeLimitMinutes *int       `yaml:"time_limit_minutes" validate:"omitempty,min=1"`
	PassingScore     int        `yaml:"passing_score" validate:"min=0,max=100"` // percent
	AllowedAttempts  int        `yaml:"allowed_attempts" validate:"min=0"`      // 0 means unlimited
	Questions        []Question `gorm:"foreignKey:QuizID;constraint:OnDelete:CASCADE" yaml:"questions" validate:"required,min=1,dive"`
	CreatedAt        time.Time  `yaml:"-"`
	UpdatedAt        time.Time  `yaml:"-"`
}

// Question belongs to one quiz. CorrectOption never leaves the server.
type Question struct {
	QuizID        string   `gorm:"primaryKey;size:64" yaml:"-"`
	ID            string   `gorm:"primaryKey;size:64" yaml:"id" validate:"required"`
	Position      int      `yaml:"-"`
	Prompt        string   `yaml:"prompt" validate:"required"`
	Options       []string `gorm:"serializer:json" yaml:"options" validate:"min=2,unique,dive,required"`
	CorrectOption string   `yaml:"correct" validate:"required"`
}

// TimeLimitSeconds returns the quiz time limit in seconds, or nil when untimed.
func (q *Quiz) TimeLimitSeconds() *int {
	if q.TimeLimitMinutes == nil || *q.TimeLimitMinutes <= 0 {
		return nil
	}
	secs := *q.TimeLimitMinutes * 60
	return &secs
}

// Question looks a question up by id.
func (q *Quiz) Question(id string) (*Question, bool) {
	for i := range q.Questions {
		if q.Questions[i].ID == id {
			return &q.Questions[i], true
		}
	}
	return nil, false
}

// Offers reports whether option is one of the question's options.
func (q *Question) Offers(option string) bool {
	for _, o := range q.Options {
		if o == option {
			return true
		}
	}
	return false
}

// Public is the student-facing view of the quiz, without correct options.
func (q *Quiz) Public() api.Quiz {
	out := api.Quiz{
		ID:               q.ID,
		Title:            q.Title,
		Description:      q.Description,
		TimeLimitMinutes: q.TimeLimitMinutes,
		PassingScore:     q.PassingScore,
		AllowedAttempts:  q.AllowedAttempts,
		Questions:        make([]api.Question, 0, len(q.Questions)),
	}
	for _, question := range q.Questions {
		out.Questions = append(out.Questions, api.Question{
			ID:      question.ID,
			Prompt:  question.Prompt,
			Options: append([]string(nil), question.Options...),
		})
	}
	return out
}

// QuizSet is the layout of the quiz seed file.
type QuizSet struct {
	Quizzes []Quiz `yaml:"quizzes" validate:"required,dive"`
}

var validate = validator.New()

// LoadQuizzes reads and validates the quiz seed file.
func LoadQuizzes(path string) ([]Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read quiz file: %w", err)
	}
	return ParseQuizzes(data)
}

// ParseQuizzes decodes and validates a quiz seed document.
func ParseQuizzes(data []byte) ([]Quiz, error) {
	var set QuizSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to unmarshal quiz YAML: %w", err)
	}
	if err := validate.Struct(&set); err != nil {
		return nil, fmt.Errorf("invalid quiz file: %w", err)
	}

	seen := make(map[string]bool, len(set.Quizzes))
	for qi := range set.Quizzes {
		quiz := &set.Quizzes[qi]
		if seen[quiz.ID] {
			return nil, fmt.Errorf("duplicate quiz id %q", quiz.ID)
		}
		seen[quiz.ID] = true

		questionIDs := make(map[string]bool, len(quiz.Questions))
		for i := range quiz.Questions {
			question := &quiz.Questions[i]
			if questionIDs[question.ID] {
				return nil, fmt.Errorf("quiz %q: duplicate question id %q", quiz.ID, question.ID)
			}
			questionIDs[question.ID] = true
			if !question.Offers(question.CorrectOption) {
				return nil, fmt.Errorf("quiz %q question %q: correct option %q is not one of its options", quiz.ID, question.ID, question.CorrectOption)
			}
			question.QuizID = quiz.ID
			question.Position = i
		}
	}
	return set.Quizzes, nil
}
