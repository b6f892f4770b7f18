package router

import (
	"net/http"
	"strings"

	"quizrun-go/internal/api"
	"quizrun-go/server/internal/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthRequired verifies the bearer token and stores the caller on the context.
func AuthRequired(log *zap.Logger, verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorBody{Success: false, Message: "Token no proporcionado"})
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			log.Debug("Rejected bearer token", zap.Error(err), zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorBody{Success: false, Message: "Token inválido"})
			return
		}

		auth.SetIdentity(c, claims)
		c.Next()
	}
}

// RequireRole only lets callers with role through. Must run after AuthRequired.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth.Role(c) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, api.ErrorBody{Success: false, Message: "No autorizado"})
			return
		}
		c.Next()
	}
}
