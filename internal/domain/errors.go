package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed caller input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a session that is missing, deleted, or owned by someone else.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by versioned store writes when the session changed underneath.
	ErrConflict = errors.New("version conflict")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError identifies the resource that could not be resolved for the caller.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// SessionNotFound is shorthand for a missing session.
func SessionNotFound(sessionID string) *NotFoundError {
	return &NotFoundError{Resource: "session", ID: sessionID}
}

// StoreError represents a persistence failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
