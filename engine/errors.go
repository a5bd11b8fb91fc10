/*
errors.go - Centralized error types for the dose engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify with errors.Is/errors.As; nothing here is fatal to the
  process.

ERROR CATEGORIES:
  1. Validation errors - malformed recurrence/time/range, rejected before
     any persistence
  2. Not-found errors  - dose or medication absent or not owned by caller
  3. Too-late errors   - take action past the action cutoff
  4. Conflict errors   - conditional update lost a race (benign)
  5. Persistence errors - store unavailable (transient)

SEE ALSO:
  - engine.go: surfaces these from the operation facade
  - store.go: store implementations wrap driver errors into these
*/
package engine

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMedicationNotFound is returned when a medication is absent or not
	// owned by the caller. The two cases are deliberately indistinguishable.
	ErrMedicationNotFound = errors.New("medication not found")

	// ErrDoseNotFound is returned when a dose is absent or not owned by the
	// caller.
	ErrDoseNotFound = errors.New("dose not found")

	// ErrTooLate is returned when a take action arrives past the action
	// cutoff. The caller can no longer retroactively log the dose.
	ErrTooLate = errors.New("dose can no longer be taken")

	// ErrConflict is returned when a conditional status update lost the race
	// against a concurrent writer. Benign: re-read and no-op.
	ErrConflict = errors.New("dose was modified concurrently")

	// ErrValidation is the root of all input validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrPersistence wraps store-level failures. Transient from the
	// caller's point of view; the sweeper retries next tick.
	ErrPersistence = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes which field of the input was rejected.
// Fully recoverable: retry with corrected input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// TooLateError carries the computed lateness so the caller can explain the
// rejection to the user.
type TooLateError struct {
	DoseID        DoseID
	ScheduledTime time.Time
	Lateness      time.Duration
	Cutoff        time.Duration
}

func (e *TooLateError) Error() string {
	return fmt.Sprintf("dose %s is %s past its scheduled time (cutoff %s)",
		e.DoseID, e.Lateness.Round(time.Second), e.Cutoff)
}

func (e *TooLateError) Unwrap() error { return ErrTooLate }

// ConflictError reports the status observed when a conditional update failed.
type ConflictError struct {
	DoseID   DoseID
	Expected DoseStatus
	Actual   DoseStatus
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("dose %s changed from %s to %s during update",
		e.DoseID, e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// PersistenceError wraps an underlying store failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return ErrPersistence }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMedicationNotFound) || errors.Is(err, ErrDoseNotFound)
}

// IsRetryable returns true if the operation might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrPersistence)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrTooLate)
}
