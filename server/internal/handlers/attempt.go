package handlers

import (
	"net/http"
	"time"

	"quizrun-go/internal/api"
	"quizrun-go/server/internal/auth"
	"quizrun-go/server/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AttemptHandler struct {
	log      *zap.Logger
	attempts *services.AttemptService
}

func NewAttemptHandler(log *zap.Logger, attempts *services.AttemptService) *AttemptHandler {
	return &AttemptHandler{log: log, attempts: attempts}
}

// Start handles POST /api/respuestas-quiz/quiz/:quizId/iniciar.
func (h *AttemptHandler) Start(c *gin.Context) {
	attempt, err := h.attempts.Start(c.Request.Context(), auth.StudentID(c), c.Param("quizId"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	started := api.StartedAttempt{ID: attempt.ID, StartedAt: attempt.StartedAt}
	if attempt.TimeLimitSeconds != nil {
		minutes := *attempt.TimeLimitSeconds / 60
		started.TimeLimitMinutes = &minutes
	}
	// A resumed attempt has less than its full limit left.
	if left, ok := h.attempts.Remaining(attempt); ok {
		secs := int(left / time.Second)
		started.RemainingSeconds = &secs
	}
	c.JSON(http.StatusCreated, api.Envelope[api.StartedAttempt]{Data: started})
}

// Answer handles POST /api/respuestas-quiz/:attemptId/responder.
func (h *AttemptHandler) Answer(c *gin.Context) {
	var req api.AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug("Failed to bind answer", zap.Error(err))
		badRequest(c, "preguntaId y respuestaSeleccionada son obligatorios")
		return
	}

	err := h.attempts.Answer(c.Request.Context(), auth.StudentID(c), c.Param("attemptId"), req.QuestionID, req.SelectedOption)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, api.Ack{Success: true})
}

// Finish handles POST /api/respuestas-quiz/:attemptId/finalizar.
func (h *AttemptHandler) Finish(c *gin.Context) {
	attempt, err := h.attempts.Finish(c.Request.Context(), auth.StudentID(c), c.Param("attemptId"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, api.Envelope[api.Result]{Data: attempt.Result()})
}

// Get handles GET /api/respuestas-quiz/:attemptId.
func (h *AttemptHandler) Get(c *gin.Context) {
	view, err := h.attempts.Get(c.Request.Context(), auth.StudentID(c), c.Param("attemptId"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, api.Envelope[api.Attempt]{Data: view})
}

// Mine handles GET /api/respuestas-quiz/quiz/:quizId/mis-intentos.
func (h *AttemptHandler) Mine(c *gin.Context) {
	views, err := h.attempts.List(c.Request.Context(), auth.StudentID(c), c.Param("quizId"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, api.Envelope[[]api.Attempt]{Data: views})
}
