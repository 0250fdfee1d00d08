/*
errors.go - Centralized error types for the POS engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Store implementations and the day-close ledger wrap these with context.

ERROR CATEGORIES:
  1. Storage errors - connection/query failures, wrapped with %w
  2. Not-found conditions - missing store, no stores configured at all
  3. Client errors - invalid input, day already closed

USAGE:
  if errors.Is(err, pos.ErrNoStores) {
      // show "no stores found" instead of an empty screen
  }

SEE ALSO:
  - store.go: Interfaces returning these errors
  - dayclose/ledger.go: Converts errors into boolean results at its boundary
*/
package pos

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoStores is returned when no store exists at all. Distinct from an
	// empty result: callers surface it as a user-visible warning.
	ErrNoStores = errors.New("no stores found")

	// ErrStoreNotFound is returned when a referenced store doesn't exist.
	ErrStoreNotFound = errors.New("store not found")

	// ErrDayAlreadyClosed is returned by guarded closes when a record for the
	// store and working date already exists.
	ErrDayAlreadyClosed = errors.New("day already closed")

	// ErrInvalidDate is returned for dates not in YYYY-MM-DD form.
	ErrInvalidDate = errors.New("invalid date")

	// ErrValidation is returned when required fields are missing or malformed.
	ErrValidation = errors.New("validation failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DayAlreadyClosedError names the existing record that blocked a close.
type DayAlreadyClosedError struct {
	StoreID     string
	WorkingDate Date
	ExistingID  string
}

func (e *DayAlreadyClosedError) Error() string {
	return fmt.Sprintf("day already closed: store %s on %s (record: %s)",
		e.StoreID, e.WorkingDate, e.ExistingID)
}

func (e *DayAlreadyClosedError) Unwrap() error {
	return ErrDayAlreadyClosed
}

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDayAlreadyClosed) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStoreNotFound) ||
		errors.Is(err, ErrNoStores)
}
