package note

import (
	"errors"
	"net/http"
	"strings"

	"bitwise74/notes-api/app/respond"
	"bitwise74/notes-api/internal"
	"bitwise74/notes-api/internal/service"
	"bitwise74/notes-api/pkg/middleware"
	"bitwise74/notes-api/pkg/validators"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Upload takes a multipart form with title, description, subject and file
func Upload(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	fh, err := c.FormFile("file")
	if err != nil {
		switch {
		case errors.Is(err, http.ErrMissingFile):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     validators.ErrNoFile.Error(),
				"requestID": requestID,
			})
		case middleware.IsBodyTooLarge(err) || strings.Contains(err.Error(), "http: request body too large"):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":     validators.ErrFileTooLarge.Error(),
				"requestID": requestID,
			})
		default:
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     "Invalid multipart form",
				"requestID": requestID,
			})

			zap.L().Debug("Can't parse multipart form", zap.Error(err), zap.String("requestID", requestID))
		}
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to open uploaded file", zap.Error(err), zap.String("requestID", requestID))
		return
	}
	defer f.Close()

	note, err := d.Notes.Upload(c.Request.Context(), service.UploadInput{
		UserID:      c.GetString("userID"),
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Subject:     c.PostForm("subject"),
		FileName:    fh.Filename,
		MimeType:    fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Content:     f,
	})
	if err != nil {
		respond.Error(c, err)
		return
	}

	zap.L().Info("Note uploaded",
		zap.String("noteID", note.ID),
		zap.Int64("size", note.FileSize),
		zap.String("requestID", requestID),
	)

	c.JSON(http.StatusCreated, note)
}
