// Package domain defines core types, interfaces, and errors for the access ledger.
package domain

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// AccessDeniedError indicates insufficient permissions.
type AccessDeniedError struct {
	Message string
}

func (e *AccessDeniedError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// InvalidKeyError indicates a malformed principal identity key. It is
// rejected at the registry boundary and never persisted.
type InvalidKeyError struct {
	Message string
}

func (e *InvalidKeyError) Error() string { return e.Message }

// AdapterError indicates a source system could not be enumerated. The
// failure is isolated to that source system; the run continues with the
// remaining adapters and closes as partial.
type AdapterError struct {
	SourceSystemID string
	Err            error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("source system %s: %v", e.SourceSystemID, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrAccessDenied creates an AccessDeniedError with a formatted message.
func ErrAccessDenied(format string, args ...interface{}) *AccessDeniedError {
	return &AccessDeniedError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrInvalidKey creates an InvalidKeyError with a formatted message.
func ErrInvalidKey(format string, args ...interface{}) *InvalidKeyError {
	return &InvalidKeyError{Message: fmt.Sprintf(format, args...)}
}
