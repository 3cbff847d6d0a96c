// Package auth contains the account endpoints
package auth

import (
	"net/http"

	"bitwise74/notes-api/app/respond"
	"bitwise74/notes-api/internal"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type registerBody struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func Register(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	var data registerBody
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})

		zap.L().Debug("Can't bind request body", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	s, err := d.Auth.Register(c.Request.Context(), data.Name, data.Email, data.Password)
	if err != nil {
		respond.Error(c, err)
		return
	}

	zap.L().Info("User registered", zap.String("userID", s.User.ID), zap.String("requestID", requestID))

	c.JSON(http.StatusCreated, s)
}
