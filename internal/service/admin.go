package service

import (
	"context"
	"errors"
	"fmt"

	"bitwise74/notes-api/internal/errs"
	"bitwise74/notes-api/internal/model"
	"bitwise74/notes-api/internal/store"

	"go.uber.org/zap"
)

type Admin struct {
	users *store.Users
	notes *store.Notes
	svc   *Notes
}

func NewAdmin(users *store.Users, notes *store.Notes, svc *Notes) *Admin {
	return &Admin{users: users, notes: notes, svc: svc}
}

func (a *Admin) ListUsers(ctx context.Context) ([]model.User, error) {
	return a.users.List(ctx)
}

func (a *Admin) ListNotes(ctx context.Context) ([]model.Note, error) {
	return a.notes.ListAll(ctx)
}

func (a *Admin) DeleteNote(ctx context.Context, id string) error {
	return a.svc.Delete(ctx, id)
}

// DeleteUser removes the account and then every note it owned. The steps
// aren't transactional, a failure half way leaves the remaining notes behind.
func (a *Admin) DeleteUser(ctx context.Context, id string) error {
	if err := a.users.Delete(ctx, id); err != nil {
		return err
	}

	owned, err := a.notes.ListByOwner(ctx, id)
	if err != nil {
		return fmt.Errorf("user deleted but failed to list their notes, %w", err)
	}

	var failed []error
	for _, n := range owned {
		err := a.svc.Delete(ctx, n.ID)
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			zap.L().Error("Failed to delete note of deleted user",
				zap.String("userID", id),
				zap.String("noteID", n.ID),
				zap.Error(err),
			)
			failed = append(failed, err)
		}
	}

	return errors.Join(failed...)
}

func (a *Admin) ToggleApproval(ctx context.Context, id string) (*model.Note, error) {
	return a.notes.ToggleApproval(ctx, id)
}

func (a *Admin) Stats(ctx context.Context) (*model.Stats, error) {
	return a.notes.Stats(ctx)
}
