// Package internal wires the stores and services that the HTTP handlers use
package internal

import (
	"bitwise74/notes-api/internal/blob"
	"bitwise74/notes-api/internal/service"
	"bitwise74/notes-api/internal/store"
	"bitwise74/notes-api/pkg/security"
	"bitwise74/notes-api/pkg/validators"

	"gorm.io/gorm"
)

type Options struct {
	JWTSecret string
	Upload    validators.UploadRules
	Auth      service.AuthConfig
}

type Deps struct {
	DB     *gorm.DB
	Argon  *security.Argon
	Tokens *security.Tokens
	Blob   blob.Store

	Users     *store.Users
	NoteStore *store.Notes

	Notes *service.Notes
	Admin *service.Admin
	Auth  *service.Auth

	Upload validators.UploadRules
}

func NewDeps(db *gorm.DB, b blob.Store, o Options) *Deps {
	d := &Deps{
		DB:     db,
		Argon:  security.NewArgon(),
		Tokens: security.NewTokens(o.JWTSecret),
		Blob:   b,
		Upload: o.Upload,
	}

	d.Users = store.NewUsers(db)
	d.NoteStore = store.NewNotes(db, d.Users)

	d.Notes = service.NewNotes(d.NoteStore, b, o.Upload)
	d.Admin = service.NewAdmin(d.Users, d.NoteStore, d.Notes)
	d.Auth = service.NewAuth(d.Users, d.Argon, d.Tokens, o.Auth)

	return d
}
