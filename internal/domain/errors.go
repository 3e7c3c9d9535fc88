package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the storage and workflow layer. Every typed error below
// matches exactly one of them through errors.Is.
var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation failed")
	ErrConflict       = errors.New("conflict")
	ErrTransport      = errors.New("store unavailable")
	ErrPartialFailure = errors.New("partial failure")
)

// NotFoundError reports a referenced record that does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError reports malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ConflictError reports an operation that is not allowed in the record's
// current state: an invalid transition, a duplicate conversion or a lost
// revision race.
type ConflictError struct {
	Kind    string
	ID      string
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Kind, e.ID, e.Message)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// TransportError wraps a failure to reach the underlying store.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

func (e *TransportError) Unwrap() error { return e.Err }

// PartialFailureError is returned by a chunked tenant deletion that committed
// some chunks before failing. Re-running the deletion is safe.
type PartialFailureError struct {
	TenantID        string
	CommittedChunks int
	TotalChunks     int
	Deleted         int
	Err             error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("tenant %s deletion stopped after %d/%d chunks (%d records deleted): %v",
		e.TenantID, e.CommittedChunks, e.TotalChunks, e.Deleted, e.Err)
}

func (e *PartialFailureError) Is(target error) bool { return target == ErrPartialFailure }

func (e *PartialFailureError) Unwrap() error { return e.Err }

// NewValidationError is shorthand for a field-level validation failure.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NewConflictError is shorthand for a state conflict on a record.
func NewConflictError(kind, id, message string) error {
	return &ConflictError{Kind: kind, ID: id, Message: message}
}
