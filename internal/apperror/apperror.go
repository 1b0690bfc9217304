// Package apperror defines the error taxonomy shared by every layer.
//
// Services and repositories return *AppError values that wrap one of the
// sentinel errors below. The HTTP layer inspects the sentinel with errors.Is
// to choose a status code, and shows Message to the client.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	// Registration outcomes. Both are conflicts with the event's current state
	// but are kept distinct so callers can tell them apart.
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrAlreadyRegistered = errors.New("already registered")
)

type AppError struct {
	Err     error  // one of the sentinels above
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound builds the "<Resource> not found" error used across the API,
// e.g. NotFound("Event") → "Event not found".
func NotFound(resource string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized is returned when credentials are missing, wrong, or expired.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

func CapacityExceeded() *AppError {
	return &AppError{
		Err:     ErrCapacityExceeded,
		Message: "Event is at full capacity",
	}
}

func AlreadyRegistered() *AppError {
	return &AppError{
		Err:     ErrAlreadyRegistered,
		Message: "Already registered for this event",
	}
}
