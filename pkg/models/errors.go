package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the discussion domain. Handlers map these to HTTP
// statuses in one place; everything below the API edge wraps them with
// fmt.Errorf("...: %w", ...) so errors.Is keeps working.
var (
	// ErrValidation covers bad request shapes and invariant violations:
	// cross-subject parents, feedback nesting beyond two levels, empty text.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized covers acting on someone else's node or notification.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound covers absent nodes, subjects, and notifications.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited is returned by a creation path before any write occurs.
	ErrRateLimited = errors.New("rate limited")
)

// Validationf wraps ErrValidation with a human-readable reason.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrValidation}, args...)...)
}
