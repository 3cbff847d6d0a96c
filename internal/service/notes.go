// Package service contains the operations behind the HTTP handlers. Services
// get their stores injected and never touch gin.
package service

import (
	"context"
	"errors"
	"io"
	"strings"

	"bitwise74/notes-api/internal/blob"
	"bitwise74/notes-api/internal/errs"
	"bitwise74/notes-api/internal/model"
	"bitwise74/notes-api/internal/store"
	"bitwise74/notes-api/pkg/validators"

	"go.uber.org/zap"
)

var errTooLarge = errors.New("upload exceeded the size limit")

type UploadInput struct {
	UserID      string
	Title       string
	Description string
	Subject     string

	FileName string
	MimeType string // As declared by the client, may be empty
	Size     int64  // As declared by the client, -1 if unknown
	Content  io.Reader
}

type Download struct {
	Note *model.Note
	Body io.ReadCloser
	Size int64
}

type Notes struct {
	store *store.Notes
	blobs blob.Store
	rules validators.UploadRules
}

func NewNotes(s *store.Notes, b blob.Store, rules validators.UploadRules) *Notes {
	return &Notes{store: s, blobs: b, rules: rules}
}

// Upload validates the file and its metadata, writes the blob and only then
// the note record. Nothing is written to the blob store for rejected input.
func (s *Notes) Upload(ctx context.Context, in UploadInput) (*model.Note, error) {
	if in.Content == nil {
		return nil, errs.New(errs.Validation, validators.ErrNoFile.Error())
	}

	mimeType, content, err := validators.ResolveType(in.MimeType, in.Content)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, "Failed to read uploaded file", err)
	}

	if err := s.rules.CheckUpload(in.FileName, mimeType, in.Size); err != nil {
		return nil, errs.Wrap(errs.Validation, err.Error(), err)
	}

	in.Title = strings.TrimSpace(in.Title)
	in.Subject = strings.TrimSpace(in.Subject)
	in.Description = strings.TrimSpace(in.Description)

	switch {
	case in.Title == "":
		return nil, errs.New(errs.Validation, "Title is required")
	case in.Subject == "":
		return nil, errs.New(errs.Validation, "Subject is required")
	case in.Description == "":
		return nil, errs.New(errs.Validation, "Description is required")
	}

	limited := &limitedReader{r: content, max: s.rules.MaxSize}

	obj, err := s.blobs.Upload(ctx, limited, in.FileName, mimeType)
	if limited.exceeded {
		if err == nil {
			// The store swallowed the read error, don't keep the partial blob
			s.deleteBlob(ctx, obj.Key)
		}

		return nil, errs.Wrap(errs.Validation, validators.ErrFileTooLarge.Error(), errTooLarge)
	}
	if err != nil {
		return nil, err
	}

	note := &model.Note{
		Title:       in.Title,
		Description: in.Description,
		Subject:     in.Subject,
		FileName:    in.FileName,
		FileType:    mimeType,
		BlobName:    obj.Key,
		BlobURL:     obj.URL,
		FileSize:    obj.Size,
		UploadedBy:  in.UserID,
		IsApproved:  true,
	}

	if err := s.store.Create(ctx, note); err != nil {
		zap.L().Error("Blob orphaned, failed to save note metadata",
			zap.String("blobName", obj.Key),
			zap.String("userID", in.UserID),
			zap.Error(err),
		)
		return nil, err
	}

	return note, nil
}

// Download counts the download before the blob is opened, so a missing blob
// still bumps the counter
func (s *Notes) Download(ctx context.Context, id string) (*Download, error) {
	note, err := s.store.ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.store.IncrementDownloads(ctx, id); err != nil {
		return nil, err
	}
	note.Downloads++

	body, info, err := s.blobs.Download(ctx, note.BlobName)
	if err != nil {
		return nil, err
	}

	size := info.Size
	if size <= 0 {
		size = note.FileSize
	}

	return &Download{Note: note, Body: body, Size: size}, nil
}

func (s *Notes) ListPublic(ctx context.Context, f store.Filter) ([]model.Note, error) {
	return s.store.ListApproved(ctx, f)
}

func (s *Notes) ListMine(ctx context.Context, userID string) ([]model.Note, error) {
	return s.store.ListByOwner(ctx, userID)
}

// Delete removes the note record. The blob is removed afterwards on a best
// effort basis, failing to do so doesn't fail the delete.
func (s *Notes) Delete(ctx context.Context, id string) error {
	note, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}

	s.deleteBlob(ctx, note.BlobName)
	return nil
}

func (s *Notes) deleteBlob(ctx context.Context, key string) {
	ok, err := s.blobs.Delete(ctx, key)
	if err != nil || !ok {
		zap.L().Warn("Failed to delete blob", zap.String("blobName", key), zap.Error(err))
	}
}

// limitedReader fails as soon as more than max bytes have been read
type limitedReader struct {
	r        io.Reader
	max      int64
	n        int64
	exceeded bool
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.exceeded {
		return 0, errTooLarge
	}

	n, err := l.r.Read(p)
	l.n += int64(n)

	if l.max > 0 && l.n > l.max {
		l.exceeded = true
		return n, errTooLarge
	}

	return n, err
}
