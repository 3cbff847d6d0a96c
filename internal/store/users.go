// Package store persists users and note metadata through gorm. List results
// are always ordered in Go after the fetch, never by the database.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"bitwise74/notes-api/internal/errs"
	"bitwise74/notes-api/internal/model"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"gorm.io/gorm"
)

const (
	idCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	idLength  = 16
)

func newID() (string, error) {
	return gonanoid.Generate(idCharset, idLength)
}

type Users struct {
	db *gorm.DB
}

func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

// Create assigns an ID when the user doesn't have one yet. A taken email
// gives errs.Conflict.
func (s *Users) Create(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		id, err := newID()
		if err != nil {
			return fmt.Errorf("failed to generate user ID, %w", err)
		}
		u.ID = id
	}

	var taken int64
	if err := s.db.WithContext(ctx).
		Model(&model.User{}).
		Where("email = ?", u.Email).
		Count(&taken).
		Error; err != nil {
		return fmt.Errorf("failed to check if user is registered, %w", err)
	}

	if taken > 0 {
		return errs.New(errs.Conflict, "User already exists")
	}

	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		// Lost a race against another registration for the same email
		if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
			return errs.Wrap(errs.Conflict, "User already exists", err)
		}

		return fmt.Errorf("failed to create user, %w", err)
	}

	return nil
}

func (s *Users) ByID(ctx context.Context, id string) (*model.User, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *Users) ByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.first(ctx, "email = ?", email)
}

func (s *Users) ByAdminID(ctx context.Context, adminID string) (*model.User, error) {
	return s.first(ctx, "admin_id = ?", adminID)
}

func (s *Users) first(ctx context.Context, query string, arg string) (*model.User, error) {
	var u model.User

	if err := s.db.WithContext(ctx).Where(query, arg).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.Wrap(errs.NotFound, "User not found", err)
		}

		return nil, fmt.Errorf("failed to fetch user, %w", err)
	}

	return &u, nil
}

// List returns every user, newest first
func (s *Users) List(ctx context.Context) ([]model.User, error) {
	var users []model.User

	if err := s.db.WithContext(ctx).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users, %w", err)
	}

	slices.SortStableFunc(users, func(a, b model.User) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return users, nil
}

// Owners loads the users with the given IDs keyed by ID. Missing users are
// simply absent from the map.
func (s *Users) Owners(ctx context.Context, ids []string) (map[string]model.User, error) {
	out := make(map[string]model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var users []model.User
	if err := s.db.WithContext(ctx).
		Select("id", "name", "email").
		Where("id IN ?", ids).
		Find(&users).
		Error; err != nil {
		return nil, fmt.Errorf("failed to fetch note owners, %w", err)
	}

	for _, u := range users {
		out[u.ID] = u
	}

	return out, nil
}

func (s *Users) Delete(ctx context.Context, id string) error {
	r := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.User{})
	if r.Error != nil {
		return fmt.Errorf("failed to delete user, %w", r.Error)
	}

	if r.RowsAffected == 0 {
		return errs.New(errs.NotFound, "User not found")
	}

	return nil
}

func (s *Users) Count(ctx context.Context) (int64, error) {
	var n int64

	if err := s.db.WithContext(ctx).Model(&model.User{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count users, %w", err)
	}

	return n, nil
}

// sqlite and postgres drivers don't translate unique violations unless
// TranslateError is enabled, so fall back to matching the message
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
