// Package apperr defines the error taxonomy shared across the service.
// Callers classify failures with errors.Is against the exported sentinels.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks a caller-supplied argument that violates a
	// precondition (empty symbol lists, mismatched sequence lengths).
	ErrInvalidInput = errors.New("invalid input")

	// ErrProvider marks a remote provider failure: unreachable after
	// exhausting retries, or reachable but returning a failure status.
	ErrProvider = errors.New("provider error")

	// ErrParse marks a response body or persisted record that does not
	// match the expected shape.
	ErrParse = errors.New("parse error")

	// ErrNotFound marks a requested factor, run, or time-series detail
	// that does not exist.
	ErrNotFound = errors.New("not found")
)

// InvalidInput wraps a formatted message with ErrInvalidInput identity.
func InvalidInput(format string, args ...interface{}) error {
	return wrap(ErrInvalidInput, format, args...)
}

// Provider wraps a formatted message with ErrProvider identity.
func Provider(format string, args ...interface{}) error {
	return wrap(ErrProvider, format, args...)
}

// Parse wraps a formatted message with ErrParse identity.
func Parse(format string, args ...interface{}) error {
	return wrap(ErrParse, format, args...)
}

// NotFound wraps a formatted message with ErrNotFound identity.
func NotFound(format string, args ...interface{}) error {
	return wrap(ErrNotFound, format, args...)
}

func wrap(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
