package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"bitwise74/notes-api/internal/errs"
	"bitwise74/notes-api/internal/model"

	"gorm.io/gorm"
)

// Filter narrows the public listing. Both fields are optional,
// case-insensitive substring matches.
type Filter struct {
	Subject string
	Search  string // title or description
}

type Notes struct {
	db    *gorm.DB
	users *Users
}

func NewNotes(db *gorm.DB, users *Users) *Notes {
	return &Notes{db: db, users: users}
}

func (s *Notes) Create(ctx context.Context, n *model.Note) error {
	if n.ID == "" {
		id, err := newID()
		if err != nil {
			return fmt.Errorf("failed to generate note ID, %w", err)
		}
		n.ID = id
	}

	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("failed to create note, %w", err)
	}

	return nil
}

func (s *Notes) ByID(ctx context.Context, id string) (*model.Note, error) {
	var n model.Note

	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.Wrap(errs.NotFound, "Note not found", err)
		}

		return nil, fmt.Errorf("failed to fetch note, %w", err)
	}

	return &n, nil
}

// ListApproved is the public listing. Owners are joined without their email.
func (s *Notes) ListApproved(ctx context.Context, f Filter) ([]model.Note, error) {
	q := s.db.WithContext(ctx).Where("is_approved = ?", true)

	if f.Subject != "" {
		q = q.Where(`subject_fold LIKE ? ESCAPE '\'`, likePattern(f.Subject))
	}

	if f.Search != "" {
		p := likePattern(f.Search)
		q = q.Where(`(title_fold LIKE ? ESCAPE '\' OR description_fold LIKE ? ESCAPE '\')`, p, p)
	}

	var notes []model.Note
	if err := q.Find(&notes).Error; err != nil {
		return nil, fmt.Errorf("failed to list approved notes, %w", err)
	}

	if err := s.joinOwners(ctx, notes, false); err != nil {
		return nil, err
	}

	sortNewest(notes)
	return notes, nil
}

// ListByOwner returns approved and unapproved notes of one user
func (s *Notes) ListByOwner(ctx context.Context, userID string) ([]model.Note, error) {
	var notes []model.Note

	if err := s.db.WithContext(ctx).Where("uploaded_by = ?", userID).Find(&notes).Error; err != nil {
		return nil, fmt.Errorf("failed to list user notes, %w", err)
	}

	sortNewest(notes)
	return notes, nil
}

// ListAll is the admin listing, owners carry their email
func (s *Notes) ListAll(ctx context.Context) ([]model.Note, error) {
	var notes []model.Note

	if err := s.db.WithContext(ctx).Find(&notes).Error; err != nil {
		return nil, fmt.Errorf("failed to list notes, %w", err)
	}

	if err := s.joinOwners(ctx, notes, true); err != nil {
		return nil, err
	}

	sortNewest(notes)
	return notes, nil
}

func (s *Notes) IncrementDownloads(ctx context.Context, id string) error {
	r := s.db.WithContext(ctx).
		Model(&model.Note{}).
		Where("id = ?", id).
		Update("downloads", gorm.Expr("downloads + 1"))
	if r.Error != nil {
		return fmt.Errorf("failed to increment download counter, %w", r.Error)
	}

	if r.RowsAffected == 0 {
		return errs.New(errs.NotFound, "Note not found")
	}

	return nil
}

// ToggleApproval flips the flag in a single statement and returns the note
// as it is after the flip
func (s *Notes) ToggleApproval(ctx context.Context, id string) (*model.Note, error) {
	r := s.db.WithContext(ctx).
		Model(&model.Note{}).
		Where("id = ?", id).
		Update("is_approved", gorm.Expr("NOT is_approved"))
	if r.Error != nil {
		return nil, fmt.Errorf("failed to toggle approval, %w", r.Error)
	}

	if r.RowsAffected == 0 {
		return nil, errs.New(errs.NotFound, "Note not found")
	}

	return s.ByID(ctx, id)
}

// Delete removes the record and returns it so the caller can clean up the blob
func (s *Notes) Delete(ctx context.Context, id string) (*model.Note, error) {
	n, err := s.ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Note{})
	if r.Error != nil {
		return nil, fmt.Errorf("failed to delete note, %w", r.Error)
	}

	// Deleted concurrently between the fetch and the delete
	if r.RowsAffected == 0 {
		return nil, errs.New(errs.NotFound, "Note not found")
	}

	return n, nil
}

// BlobNames returns every blob key that is referenced by a note
func (s *Notes) BlobNames(ctx context.Context) (map[string]struct{}, error) {
	var names []string

	if err := s.db.WithContext(ctx).Model(&model.Note{}).Pluck("blob_name", &names).Error; err != nil {
		return nil, fmt.Errorf("failed to list blob names, %w", err)
	}

	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}

	return out, nil
}

func (s *Notes) Stats(ctx context.Context) (*model.Stats, error) {
	var st model.Stats
	db := s.db.WithContext(ctx)

	users, err := s.users.Count(ctx)
	if err != nil {
		return nil, err
	}
	st.TotalUsers = users

	if err := db.Model(&model.Note{}).Count(&st.TotalNotes).Error; err != nil {
		return nil, fmt.Errorf("failed to count notes, %w", err)
	}

	if err := db.Model(&model.Note{}).Where("is_approved = ?", true).Count(&st.ApprovedNotes).Error; err != nil {
		return nil, fmt.Errorf("failed to count approved notes, %w", err)
	}

	if err := db.Model(&model.Note{}).
		Select("COALESCE(SUM(downloads), 0)").
		Scan(&st.TotalDownloads).
		Error; err != nil {
		return nil, fmt.Errorf("failed to sum downloads, %w", err)
	}

	return &st, nil
}

func (s *Notes) joinOwners(ctx context.Context, notes []model.Note, withEmail bool) error {
	seen := make(map[string]struct{}, len(notes))
	ids := make([]string, 0, len(notes))
	for _, n := range notes {
		if _, ok := seen[n.UploadedBy]; !ok {
			seen[n.UploadedBy] = struct{}{}
			ids = append(ids, n.UploadedBy)
		}
	}

	owners, err := s.users.Owners(ctx, ids)
	if err != nil {
		return err
	}

	for i := range notes {
		u, ok := owners[notes[i].UploadedBy]
		if !ok {
			continue
		}

		o := &model.Owner{ID: u.ID, Name: u.Name}
		if withEmail {
			o.Email = u.Email
		}
		notes[i].Owner = o
	}

	return nil
}

// sortNewest orders by creation time, newest first. Notes created at the same
// instant keep the order the database returned them in.
func sortNewest(notes []model.Note) {
	slices.SortStableFunc(notes, func(a, b model.Note) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern turns user input into a case folded "contains" pattern with the
// LIKE wildcards escaped
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(model.Fold(s)) + "%"
}
