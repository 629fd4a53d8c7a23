// Package errs defines the typed error taxonomy for the engine core.
// Validation and configuration errors surface immediately to callers;
// transient infrastructure errors are retried internally and only become
// visible once retries are exhausted.
package errs

import (
	"errors"
	"fmt"
)

// ErrNoVariantsAvailable is returned when an experiment has zero active
// variants at assignment time. No assignment is created.
var ErrNoVariantsAvailable = errors.New("no variants available")

// ErrSessionNotFound is returned on lookups for unknown session identifiers.
var ErrSessionNotFound = errors.New("session not found")

// ErrExperimentNotFound is returned on lookups for unknown experiments.
var ErrExperimentNotFound = errors.New("experiment not found")

// ValidationError reports a malformed event or session payload. It is
// rejected synchronously and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a validation error for a specific field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// DurableWriteFailure reports a storage error during a batch flush. The
// batch is retried with bounded backoff and dead-lettered once retries
// are exhausted.
type DurableWriteFailure struct {
	BatchID string
	Err     error
}

func (e *DurableWriteFailure) Error() string {
	return fmt.Sprintf("durable write failed for batch %s: %v", e.BatchID, e.Err)
}

func (e *DurableWriteFailure) Unwrap() error { return e.Err }

// MergeConflict reports an attempt to merge a session that no longer
// exists or was already merged away. Reported, not fatal.
type MergeConflict struct {
	SessionID string
	Reason    string
}

func (e *MergeConflict) Error() string {
	return fmt.Sprintf("merge conflict on session %s: %s", e.SessionID, e.Reason)
}

// IsMergeConflict reports whether err is a MergeConflict.
func IsMergeConflict(err error) bool {
	var mc *MergeConflict
	return errors.As(err, &mc)
}
