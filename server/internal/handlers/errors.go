package handlers

import (
	"errors"
	"net/http"

	"quizrun-go/internal/api"
	"quizrun-go/server/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError maps service errors onto the contract's error body. Anything
// unrecognised is logged and reported as a 500.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	status, message := http.StatusInternalServerError, "Error interno del servidor"
	switch {
	case errors.Is(err, services.ErrQuizNotFound):
		status, message = http.StatusNotFound, "Quiz no encontrado"
	case errors.Is(err, services.ErrAttemptNotFound):
		status, message = http.StatusNotFound, "Intento no encontrado"
	case errors.Is(err, services.ErrAttemptLimit):
		status, message = http.StatusBadRequest, "Has alcanzado el número máximo de intentos para este quiz"
	case errors.Is(err, services.ErrAttemptFinished):
		status, message = http.StatusConflict, "El intento ya ha finalizado"
	case errors.Is(err, services.ErrUnknownQuestion):
		status, message = http.StatusBadRequest, "La pregunta no pertenece a este quiz"
	case errors.Is(err, services.ErrUnknownOption):
		status, message = http.StatusBadRequest, "Respuesta no válida para esta pregunta"
	default:
		log.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, api.ErrorBody{Success: false, Message: message})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, api.ErrorBody{Success: false, Message: message})
}
