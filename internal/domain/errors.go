package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrNotFound            = errors.New("not found")
	ErrModeMismatch        = errors.New("input mode mismatch")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ValidationError reports a missing or malformed user-supplied field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid returns a ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
