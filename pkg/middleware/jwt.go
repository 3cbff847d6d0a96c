package middleware

import (
	"context"
	"net/http"
	"strings"

	"bitwise74/notes-api/internal/errs"
	"bitwise74/notes-api/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Authenticator resolves a bearer token to a user
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// NewJWTMiddleware only lets through requests that carry a valid
// "Authorization: Bearer <token>" header. The user ID, the admin flag and the
// user itself are stored as userID, isAdmin and user.
func NewJWTMiddleware(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := RequestID(c)

		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "No token, authorization denied",
				"requestID": requestID,
			})
			return
		}

		user, err := a.Authenticate(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			if errs.KindOf(err) == errs.Auth {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":     errs.Message(err),
					"requestID": requestID,
				})
				return
			}

			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to authenticate request", zap.Error(err), zap.String("requestID", requestID))
			return
		}

		c.Set("userID", user.ID)
		c.Set("isAdmin", user.IsAdmin)
		c.Set("user", user)
		c.Next()
	}
}

// AdminOnly must be chained after NewJWTMiddleware
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool("isAdmin") {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":     "Access denied. Admin only.",
				"requestID": RequestID(c),
			})
			return
		}

		c.Next()
	}
}
