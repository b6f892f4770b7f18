package api

import "time"

// Wire types of the quiz REST contract. Field names follow the platform's
// Spanish JSON vocabulary; the Go names say what the fields mean.

// Question is a quiz question as shown to students. The correct option is
// never part of it.
type Question struct {
	ID      string   `json:"_id"`
	Prompt  string   `json:"pregunta"`
	Options []string `json:"opciones"`
}

// Quiz is the public definition returned by GET /api/quizzes/{quizId}.
type Quiz struct {
	ID               string     `json:"_id"`
	Title            string     `json:"titulo"`
	Description      string     `json:"descripcion,omitempty"`
	Questions        []Question `json:"preguntas"`
	TimeLimitMinutes *int       `json:"tiempoLimite,omitempty"`
	PassingScore     int        `json:"puntuacionMinima"`
	AllowedAttempts  int        `json:"intentosPermitidos"`
}

// TimeLimit reports the attempt time limit, if the quiz has one.
func (q *Quiz) TimeLimit() (time.Duration, bool) {
	return MinutesLimit(q.TimeLimitMinutes)
}

// MinutesLimit converts an optional limit in minutes into a duration.
func MinutesLimit(minutes *int) (time.Duration, bool) {
	if minutes == nil || *minutes <= 0 {
		return 0, false
	}
	return time.Duration(*minutes) * time.Minute, true
}

// Question returns the question with the given id.
func (q *Quiz) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// StartedAttempt is the payload of a successful start call.
type StartedAttempt struct {
	ID               string    `json:"_id"`
	StartedAt        time.Time `json:"fechaInicio"`
	TimeLimitMinutes *int      `json:"tiempoLimite,omitempty"`
	// RemainingSeconds is the time left by the server's clock. It is below
	// the full limit when an open attempt is resumed.
	RemainingSeconds *int `json:"tiempoRestante,omitempty"`
}

// Remaining reports the time left on a timed attempt. Without a server
// value it falls back to the full limit.
func (a *StartedAttempt) Remaining(limit time.Duration) time.Duration {
	if a.RemainingSeconds == nil {
		return limit
	}
	left := time.Duration(*a.RemainingSeconds) * time.Second
	if left < 0 {
		return 0
	}
	if left > limit {
		return limit
	}
	return left
}

// AnswerRequest is the body of the answer call.
type AnswerRequest struct {
	QuestionID     string `json:"preguntaId" binding:"required"`
	SelectedOption string `json:"respuestaSeleccionada" binding:"required"`
}

// Result is the payload of the finish call and the only authoritative
// outcome of an attempt.
type Result struct {
	Score          int  `json:"puntuacion"`
	Passed         bool `json:"aprobado"`
	ElapsedSeconds int  `json:"tiempoTranscurrido"`
}

// Attempt is the read-only view of an attempt.
type Attempt struct {
	ID             string            `json:"_id"`
	QuizID         string            `json:"quiz"`
	Status         string            `json:"estado"`
	StartedAt      time.Time         `json:"fechaInicio"`
	FinishedAt     *time.Time        `json:"fechaFin,omitempty"`
	TotalQuestions int               `json:"totalPreguntas"`
	Score          *int              `json:"puntuacion,omitempty"`
	Passed         *bool             `json:"aprobado,omitempty"`
	ElapsedSeconds *int              `json:"tiempoTranscurrido,omitempty"`
	Answers        map[string]string `json:"respuestas,omitempty"`
}

// Envelope wraps every successful payload.
type Envelope[T any] struct {
	Data T `json:"data"`
}

// ErrorBody is the body of every non-2xx response.
type ErrorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Ack is the body of calls that only acknowledge.
type Ack struct {
	Success bool `json:"success"`
}
