package note

import (
	"net/http"
	"strconv"

	"bitwise74/notes-api/app/respond"
	"bitwise74/notes-api/internal"
	"bitwise74/notes-api/internal/blob"

	"github.com/gin-gonic/gin"
)

// Download streams the file. The counter is bumped before the first byte is
// sent, so aborted downloads still count.
func Download(c *gin.Context, d *internal.Deps) {
	dl, err := d.Notes.Download(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	defer dl.Body.Close()

	contentType := dl.Note.FileType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.DataFromReader(http.StatusOK, dl.Size, contentType, dl.Body, map[string]string{
		"Content-Disposition": blob.ContentDisposition(dl.Note.FileName),
		"X-Download-Count":    strconv.FormatInt(dl.Note.Downloads, 10),
	})
}
