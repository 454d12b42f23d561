/*
errors.go - Centralized error taxonomy for the core engine

PURPOSE:
  All core error categories in one place. Domain packages (receipt)
  wrap or extend these with additional context; the HTTP layer maps
  them to status codes with the Is* helpers.

ERROR CATEGORIES:
  1. Validation errors  - malformed input, rejected before any mutation
  2. Authorization errors - caller may not perform the action
  3. Not-found errors   - missing group/expense/session/item

USAGE:
  Check with errors.Is / errors.As:

    if errors.Is(err, ledger.ErrNotFound) { ... }

    var verr *ledger.ValidationError
    if errors.As(err, &verr) { ... }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is the base of all input validation failures.
	// Validation errors are rejected synchronously and never partially
	// applied.
	ErrValidation = errors.New("validation failed")

	// ErrNotAuthorized is returned when the caller is not allowed to
	// perform the action. Rejected before any mutation.
	ErrNotAuthorized = errors.New("not authorized")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError carries the offending field and a human message.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError identifies the missing record.
type NotFoundError struct {
	Resource string // "group", "expense", "session", "item", "settlement"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether err indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err is a client input error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsAuthorization reports whether err is an authorization failure.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrNotAuthorized)
}
