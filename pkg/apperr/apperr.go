// Package apperr defines the error kinds shared by the services and the HTTP
// binding. Every error produced by a service wraps exactly one of the
// sentinels below, so callers classify with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a missing or malformed input field.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a lookup for a record that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStorage marks a failure of the underlying store.
	ErrStorage = errors.New("storage failure")
)

// Validation returns an ErrValidation with a formatted detail message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound returns an ErrNotFound with a formatted detail message.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Storage wraps a store error so that it matches both ErrStorage and err.
func Storage(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
