package auth

import "github.com/gin-gonic/gin"

const (
	studentIDKey = "student_id"
	roleKey      = "role"
)

// SetIdentity stores the verified caller on the request context.
func SetIdentity(c *gin.Context, claims *Claims) {
	c.Set(studentIDKey, claims.Subject)
	c.Set(roleKey, claims.Role)
}

// StudentID returns the verified caller, or "" on unauthenticated routes.
func StudentID(c *gin.Context) string {
	return c.GetString(studentIDKey)
}

// Role returns the verified caller's role.
func Role(c *gin.Context) string {
	return c.GetString(roleKey)
}
