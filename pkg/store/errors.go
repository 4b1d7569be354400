package store

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrNotInitialized is returned when an operation runs before Init
	ErrNotInitialized = errors.New("store not initialized")

	// ErrStoreClosed is returned when trying to use a closed store
	ErrStoreClosed = errors.New("store is closed")

	// ErrIdeaNotFound is returned when an update targets an unknown idea
	ErrIdeaNotFound = errors.New("idea not found")

	// ErrInvalidVector is returned when an embedding vector cannot be stored
	ErrInvalidVector = errors.New("invalid vector data")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")
)

// StoreError wraps errors with operation context
type StoreError struct {
	Op  string // Operation name
	Err error  // Underlying error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("store: %v", e.Err)
	}
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.Err
}

// wrapError wraps an error with operation context
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
