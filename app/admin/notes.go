package admin

import (
	"net/http"

	"bitwise74/notes-api/app/respond"
	"bitwise74/notes-api/internal"
	"bitwise74/notes-api/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func Notes(c *gin.Context, d *internal.Deps) {
	notes, err := d.Admin.ListNotes(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}

	if notes == nil {
		notes = []model.Note{}
	}

	c.JSON(http.StatusOK, notes)
}

func DeleteNote(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	id := c.Param("id")

	if err := d.Admin.DeleteNote(c.Request.Context(), id); err != nil {
		respond.Error(c, err)
		return
	}

	zap.L().Info("Note deleted",
		zap.String("noteID", id),
		zap.String("by", c.GetString("userID")),
		zap.String("requestID", requestID),
	)

	c.JSON(http.StatusOK, gin.H{
		"message": "Note deleted successfully",
	})
}

// ToggleApproval flips the approval flag and returns the updated note
func ToggleApproval(c *gin.Context, d *internal.Deps) {
	note, err := d.Admin.ToggleApproval(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, note)
}
