package errors

import "fmt"

// ErrorCode represents a Plinth error code.
type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"   // 400
	ErrNotFound         ErrorCode = "NOT_FOUND"         // 404
	ErrAlreadyExists    ErrorCode = "ALREADY_EXISTS"    // 409
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE" // 503
	ErrInternal         ErrorCode = "INTERNAL"          // 500
)

// PlinthError represents a structured error with code, status, and details.
type PlinthError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *PlinthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid caller arguments.
func NewInvalidRequest(msg string) *PlinthError {
	return &PlinthError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing knowledge item.
func NewNotFound(identifier string) *PlinthError {
	return &PlinthError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewAlreadyExists creates a 409 error for unique-key collisions.
func NewAlreadyExists(kind, key string) *PlinthError {
	return &PlinthError{
		Code:    ErrAlreadyExists,
		Status:  409,
		Message: fmt.Sprintf("%s %q already exists", kind, key),
		Details: map[string]any{"kind": kind, "key": key},
	}
}

// NewStoreUnavailable creates a 503 error for an unreachable knowledge store.
func NewStoreUnavailable(err error) *PlinthError {
	return &PlinthError{
		Code:    ErrStoreUnavailable,
		Status:  503,
		Message: "knowledge store unavailable",
		Details: map[string]any{"cause": err.Error()},
	}
}

// NewInternal creates a 500 error wrapping an unexpected failure.
func NewInternal(err error) *PlinthError {
	return &PlinthError{
		Code:    ErrInternal,
		Status:  500,
		Message: err.Error(),
	}
}

// IsCode reports whether err is a PlinthError with the given code.
func IsCode(err error, code ErrorCode) bool {
	pe, ok := err.(*PlinthError)
	return ok && pe.Code == code
}
