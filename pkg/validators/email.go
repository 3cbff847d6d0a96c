// Package validators contains validators found throughout the application
// that have been abstracted away from the main code
package validators

import (
	"errors"
	"net/mail"
	"strings"
)

var (
	ErrEmailEmpty   = errors.New("no email address provided")
	ErrEmailInvalid = errors.New("invalid email address provided")
	ErrNameEmpty    = errors.New("no name provided")
	ErrNameTooLong  = errors.New("name is too long")
)

const maxNameLength = 100

func EmailValidator(e string) error {
	if e == "" {
		return ErrEmailEmpty
	}

	addr, err := mail.ParseAddress(e)
	if err != nil || addr.Address != e {
		return ErrEmailInvalid
	}

	return nil
}

// NormalizeEmail is applied before storing and before every lookup so that
// uniqueness holds regardless of case.
func NormalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

func NameValidator(n string) error {
	n = strings.TrimSpace(n)
	if n == "" {
		return ErrNameEmpty
	}

	if len(n) > maxNameLength {
		return ErrNameTooLong
	}

	return nil
}
