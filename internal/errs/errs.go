// Package errs defines the error kinds shared by the stores, the services and
// the HTTP layer. Every error that crosses a service boundary carries exactly
// one kind, and the HTTP layer maps kinds to status codes.
package errs

import "errors"

type Kind int

const (
	Internal Kind = iota
	Validation
	NotFound
	Auth
	Forbidden
	Conflict
	StorageWrite
	StorageRead
)

var kindNames = map[Kind]string{
	Internal:     "internal",
	Validation:   "validation",
	NotFound:     "not found",
	Auth:         "auth",
	Forbidden:    "forbidden",
	Conflict:     "conflict",
	StorageWrite: "storage write",
	StorageRead:  "storage read",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}

	return "unknown"
}

// Error is a kinded error. Msg is safe to show to API clients, Err is the
// underlying cause and is only ever logged.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ", " + e.Err.Error()
	}

	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, errs.ErrNotFound) and friends match any error of
// the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrValidation   = &Error{Kind: Validation}
	ErrNotFound     = &Error{Kind: NotFound}
	ErrAuth         = &Error{Kind: Auth}
	ErrForbidden    = &Error{Kind: Forbidden}
	ErrConflict     = &Error{Kind: Conflict}
	ErrStorageWrite = &Error{Kind: StorageWrite}
	ErrStorageRead  = &Error{Kind: StorageRead}
)

func New(k Kind, msg string) error {
	return &Error{Kind: k, Msg: msg}
}

func Wrap(k Kind, msg string, err error) error {
	return &Error{Kind: k, Msg: msg, Err: err}
}

// KindOf returns the kind of the outermost kinded error in the chain, or
// Internal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return Internal
}

// Message returns the client-facing message of a kinded error. Internal
// errors never leak their text.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal && e.Msg != "" {
		return e.Msg
	}

	return "Internal server error"
}
