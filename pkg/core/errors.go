// Package core provides the memory store orchestrator and the Brain
// client that composes retrieval, scoring, caching, and hydration.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrNotFound indicates that a requested memory was not found in the
	// owner's partition. An id that exists under a different owner reports
	// the same error; owner mismatch is indistinguishable from
	// nonexistence.
	ErrNotFound = errors.New("memory not found")

	// ErrEmptyContent indicates that an add was attempted with no content.
	ErrEmptyContent = errors.New("content must not be empty")

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrDimensionMismatch indicates an embedding of the wrong dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrStorageOperation indicates that a durable-store operation failed.
	// AI-service failures never surface as errors; they degrade to
	// fallback values instead.
	ErrStorageOperation = errors.New("storage operation failed")
)

// MemoryError wraps errors with operation context.
//
// It records which operation failed, making error messages more
// informative for debugging.
//
// Example:
//
//	err := &MemoryError{
//	    Op:  "Add",
//	    Err: ErrEmptyContent,
//	}
//	// Error() returns: "newbrain: Add: content must not be empty"
type MemoryError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
//
// The format is: "newbrain: <Op>: <Err>"
func (e *MemoryError) Error() string {
	return fmt.Sprintf("newbrain: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
//
// This allows using errors.Is() and errors.As() with MemoryError.
func (e *MemoryError) Unwrap() error {
	return e.Err
}

// NewMemoryError creates a new MemoryError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	return NewMemoryError("Add", store.Insert(ctx, rec))
func NewMemoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &MemoryError{
		Op:  op,
		Err: err,
	}
}
