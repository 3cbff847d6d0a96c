package validators

import "errors"

var (
	ErrPasswordTooLong = errors.New("password is too long")
	ErrPasswordEmpty   = errors.New("no password provided")
)

// No minimum length, accounts created with short passwords must keep working
func PasswordValidator(p string) error {
	if p == "" {
		return ErrPasswordEmpty
	}

	if len(p) > 255 {
		return ErrPasswordTooLong
	}

	return nil
}
