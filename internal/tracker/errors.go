package tracker

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the service, the store and the transports.
var (
	ErrNotFound        = errors.New("application not found")
	ErrAlreadyExists   = errors.New("application already exists")
	ErrValidation      = errors.New("validation error")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	// ErrConflict means a concurrent writer changed the status first; retry.
	ErrConflict = errors.New("application was modified concurrently")
)

// ValidationError wraps a user-facing validation message.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}
