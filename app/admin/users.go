// Package admin contains the moderation endpoints. Every route in here sits
// behind middleware.AdminOnly.
package admin

import (
	"net/http"

	"bitwise74/notes-api/app/respond"
	"bitwise74/notes-api/internal"
	"bitwise74/notes-api/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func Users(c *gin.Context, d *internal.Deps) {
	users, err := d.Admin.ListUsers(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}

	if users == nil {
		users = []model.User{}
	}

	c.JSON(http.StatusOK, users)
}

func DeleteUser(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	id := c.Param("id")

	if err := d.Admin.DeleteUser(c.Request.Context(), id); err != nil {
		respond.Error(c, err)
		return
	}

	zap.L().Info("User deleted",
		zap.String("userID", id),
		zap.String("by", c.GetString("userID")),
		zap.String("requestID", requestID),
	)

	c.JSON(http.StatusOK, gin.H{
		"message": "User and associated notes deleted successfully",
	})
}

func Stats(c *gin.Context, d *internal.Deps) {
	st, err := d.Admin.Stats(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, st)
}
