package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"quizrun-go/internal/api"
	"quizrun-go/server/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type QuizHandler struct {
	log     *zap.Logger
	quizzes *services.QuizService
	export  *services.ExportService
}

func NewQuizHandler(log *zap.Logger, quizzes *services.QuizService, export *services.ExportService) *QuizHandler {
	return &QuizHandler{log: log, quizzes: quizzes, export: export}
}

// Show handles GET /api/quizzes/:quizId.
func (h *QuizHandler) Show(c *gin.Context) {
	quiz, err := h.quizzes.Public(c.Request.Context(), c.Param("quizId"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, api.Envelope[api.Quiz]{Data: *quiz})
}

// Export handles GET /api/quizzes/:quizId/respuestas/export.
func (h *QuizHandler) Export(c *gin.Context) {
	quizID := c.Param("quizId")
	var buf bytes.Buffer
	if err := h.export.Export(c.Request.Context(), quizID, &buf); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-intentos.xlsx"`, quizID))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
