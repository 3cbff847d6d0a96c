package auth

import (
	"net/http"

	"bitwise74/notes-api/app/respond"
	"bitwise74/notes-api/internal"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type adminLoginBody struct {
	AdminID  string `json:"adminId"`
	Password string `json:"password"`
}

func Login(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	var data loginBody
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})

		zap.L().Debug("Can't bind request body", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	s, err := d.Auth.Login(c.Request.Context(), data.Email, data.Password)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, s)
}

func AdminLogin(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	var data adminLoginBody
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})

		zap.L().Debug("Can't bind request body", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	s, err := d.Auth.AdminLogin(c.Request.Context(), data.AdminID, data.Password)
	if err != nil {
		zap.L().Warn("Failed admin login", zap.String("ip", c.ClientIP()), zap.String("requestID", requestID))

		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, s)
}
