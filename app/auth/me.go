package auth

import (
	"net/http"

	"bitwise74/notes-api/internal/model"

	"github.com/gin-gonic/gin"
)

// Me returns the user the bearer token belongs to
func Me(c *gin.Context) {
	user := c.MustGet("user").(*model.User)
	c.JSON(http.StatusOK, user)
}
