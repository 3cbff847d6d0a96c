package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitwise74/notes-api/internal/errs"
	"bitwise74/notes-api/internal/model"
	"bitwise74/notes-api/internal/store"
	"bitwise74/notes-api/pkg/security"
	"bitwise74/notes-api/pkg/validators"

	"go.uber.org/zap"
)

// Administrator accounts get an address on this domain. Public registration
// can't use it.
const systemDomain = "system.local"

type AuthConfig struct {
	AdminID       string
	AdminPassword string
	// A user registering with this email becomes an administrator
	AdminEmail string
}

type SessionUser struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	AdminID string `json:"adminId,omitempty"`
	IsAdmin bool   `json:"isAdmin"`
}

type Session struct {
	Token string      `json:"token"`
	User  SessionUser `json:"user"`
}

type Auth struct {
	users  *store.Users
	argon  *security.Argon
	tokens *security.Tokens
	cfg    AuthConfig
}

func NewAuth(users *store.Users, argon *security.Argon, tokens *security.Tokens, cfg AuthConfig) *Auth {
	cfg.AdminEmail = validators.NormalizeEmail(cfg.AdminEmail)
	return &Auth{users: users, argon: argon, tokens: tokens, cfg: cfg}
}

func (a *Auth) Register(ctx context.Context, name, email, password string) (*Session, error) {
	name = strings.TrimSpace(name)
	email = validators.NormalizeEmail(email)

	if err := validators.NameValidator(name); err != nil {
		return nil, errs.Wrap(errs.Validation, err.Error(), err)
	}

	if err := validators.EmailValidator(email); err != nil {
		return nil, errs.Wrap(errs.Validation, err.Error(), err)
	}

	if strings.HasSuffix(email, "@"+systemDomain) {
		return nil, errs.New(errs.Validation, "This email domain is reserved")
	}

	if err := validators.PasswordValidator(password); err != nil {
		return nil, errs.Wrap(errs.Validation, err.Error(), err)
	}

	hash, err := a.argon.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password, %w", err)
	}

	u := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      a.cfg.AdminEmail != "" && email == a.cfg.AdminEmail,
	}

	if err := a.users.Create(ctx, u); err != nil {
		return nil, err
	}

	if u.IsAdmin {
		zap.L().Info("Administrator registered", zap.String("userID", u.ID))
	}

	return a.session(u)
}

// Login answers the same way for an unknown email and a wrong password
func (a *Auth) Login(ctx context.Context, email, password string) (*Session, error) {
	invalid := errs.New(errs.Validation, "Invalid credentials")

	if email == "" || password == "" {
		return nil, invalid
	}

	u, err := a.users.ByEmail(ctx, validators.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, invalid
		}

		return nil, err
	}

	ok, err := a.argon.Verify(password, u.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password, %w", err)
	}

	if !ok {
		return nil, invalid
	}

	return a.session(u)
}

// AdminLogin checks the configured administrator pair. The matching account
// is created on the first successful login.
func (a *Auth) AdminLogin(ctx context.Context, adminID, password string) (*Session, error) {
	invalid := errs.New(errs.Validation, "Invalid admin credentials")

	if a.cfg.AdminID == "" || a.cfg.AdminPassword == "" {
		return nil, invalid
	}

	idOK := subtle.ConstantTimeCompare([]byte(adminID), []byte(a.cfg.AdminID))
	pwOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.cfg.AdminPassword))
	if idOK&pwOK != 1 {
		return nil, invalid
	}

	u, err := a.users.ByAdminID(ctx, adminID)
	if err == nil {
		return a.session(u)
	}

	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	hash, err := a.argon.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password, %w", err)
	}

	u = &model.User{
		Name:         "Admin",
		Email:        fmt.Sprintf("admin_%s@%s", adminID, systemDomain),
		PasswordHash: hash,
		IsAdmin:      true,
		AdminID:      &adminID,
	}

	err = a.users.Create(ctx, u)
	if errors.Is(err, errs.ErrConflict) {
		// Another request created it first
		if existing, err := a.users.ByAdminID(ctx, adminID); err == nil {
			return a.session(existing)
		}

		// The address is held by a regular account registered before the
		// domain was reserved
		zap.L().Warn("Administrator email is taken by another account", zap.String("email", u.Email))

		u.Email = fmt.Sprintf("admin_%s_%d@%s", adminID, time.Now().UnixMilli(), systemDomain)
		err = a.users.Create(ctx, u)
	}
	if err != nil {
		return nil, err
	}

	zap.L().Info("Administrator account created", zap.String("userID", u.ID))

	return a.session(u)
}

// Authenticate resolves a bearer token to the user it was issued for
func (a *Auth) Authenticate(ctx context.Context, token string) (*model.User, error) {
	userID, err := a.tokens.Verify(token)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, errs.Wrap(errs.Auth, "Authorization token expired. Please log in again", err)
		}

		return nil, errs.Wrap(errs.Auth, "Authorization token invalid", err)
	}

	u, err := a.users.ByID(ctx, userID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.Wrap(errs.Auth, "Authorization token invalid", err)
		}

		return nil, err
	}

	return u, nil
}

func (a *Auth) session(u *model.User) (*Session, error) {
	token, err := a.tokens.Issue(u.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token, %w", err)
	}

	s := &Session{
		Token: token,
		User: SessionUser{
			ID:      u.ID,
			Name:    u.Name,
			Email:   u.Email,
			IsAdmin: u.IsAdmin,
		},
	}
	if u.AdminID != nil {
		s.User.AdminID = *u.AdminID
	}

	return s, nil
}
