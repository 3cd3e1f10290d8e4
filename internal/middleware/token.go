package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/quizdesk/internal/response"
	"github.com/stemsi/quizdesk/internal/service"
)

const (
	// ContextKeyRole is the Gin context key for the stored user role.
	ContextKeyRole = "role"
)

// RequireBackendToken rejects requests while no usable backend token is
// stored. Expired JWTs are caught here before any backend call is made.
func RequireBackendToken(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if _, err := authService.Token(ctx); err != nil {
			switch {
			case errors.Is(err, service.ErrTokenExpired):
				response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenExpired)
			case errors.Is(err, service.ErrNoToken):
				response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			default:
				response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
			}
			return
		}

		role, err := authService.Role(ctx)
		if err != nil {
			response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
			return
		}

		c.Set(ContextKeyRole, role)
		c.Next()
	}
}

// GetRole retrieves the stored role from the Gin context.
func GetRole(c *gin.Context) service.Role {
	val, exists := c.Get(ContextKeyRole)
	if !exists {
		return service.RoleStudent
	}
	role, ok := val.(service.Role)
	if !ok {
		return service.RoleStudent
	}
	return role
}
