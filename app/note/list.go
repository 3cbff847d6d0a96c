// Package note contains the public and per-user note endpoints
package note

import (
	"net/http"

	"bitwise74/notes-api/app/respond"
	"bitwise74/notes-api/internal"
	"bitwise74/notes-api/internal/model"
	"bitwise74/notes-api/internal/store"

	"github.com/gin-gonic/gin"
)

// List returns approved notes, optionally filtered by ?subject= and ?search=
func List(c *gin.Context, d *internal.Deps) {
	notes, err := d.Notes.ListPublic(c.Request.Context(), store.Filter{
		Subject: c.Query("subject"),
		Search:  c.Query("search"),
	})
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, nonNil(notes))
}

func Mine(c *gin.Context, d *internal.Deps) {
	notes, err := d.Notes.ListMine(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, nonNil(notes))
}

// nonNil makes empty listings render as [] instead of null
func nonNil(n []model.Note) []model.Note {
	if n == nil {
		return []model.Note{}
	}

	return n
}
