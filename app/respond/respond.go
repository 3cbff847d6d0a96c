// Package respond turns service errors into HTTP responses
package respond

import (
	"net/http"

	"bitwise74/notes-api/internal/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func Status(err error) int {
	switch errs.KindOf(err) {
	case errs.Validation, errs.Conflict:
		return http.StatusBadRequest
	case errs.NotFound:
		return http.StatusNotFound
	case errs.Auth:
		return http.StatusUnauthorized
	case errs.Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error writes the client-facing message of err. Anything that ends up as a
// 500 is logged with its full chain and never shown to the client.
func Error(c *gin.Context, err error) {
	requestID := c.GetString("requestID")
	status := Status(err)

	if status == http.StatusInternalServerError {
		zap.L().Error("Request failed",
			zap.String("kind", errs.KindOf(err).String()),
			zap.String("path", c.FullPath()),
			zap.Error(err),
			zap.String("requestID", requestID),
		)

		c.JSON(status, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})
		return
	}

	zap.L().Debug("Request rejected", zap.Error(err), zap.String("requestID", requestID))

	c.JSON(status, gin.H{
		"error":     errs.Message(err),
		"requestID": requestID,
	})
}
