// Package domain provides the core data types and canonical error types
// shared by the pipeline, the job subsystem, and the API layer.
package domain

import (
	"fmt"
	"net/http"
)

// ErrorType represents the category of an error.
type ErrorType string

const (
	// ErrorTypeValidation indicates bad or missing request inputs.
	// Never retried; surfaced immediately to the caller.
	ErrorTypeValidation ErrorType = "validation"

	// ErrorTypeRateLimit indicates the content-generation provider rate
	// limited the call. Retried locally with backoff before escalating.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeProvider indicates a permanent provider failure.
	ErrorTypeProvider ErrorType = "provider"

	// ErrorTypeMalformedOutput indicates the provider returned text that
	// could not be parsed into the expected structure.
	ErrorTypeMalformedOutput ErrorType = "malformed_output"

	// ErrorTypeNotFound indicates a resource was not found.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeAccessDenied indicates the source repository rejected our
	// credentials.
	ErrorTypeAccessDenied ErrorType = "access_denied"

	// ErrorTypeTimeout indicates a synchronous run exceeded its duration
	// budget. Distinct from a generic failure so callers can resubmit
	// asynchronously.
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeWrite indicates the output renderer failed to persist the
	// generated tutorial.
	ErrorTypeWrite ErrorType = "write"

	// ErrorTypeServer indicates an internal error.
	ErrorTypeServer ErrorType = "server"
)

// APIError is a canonical error that carries its category and a suggested
// HTTP status code, translated at the API boundary.
type APIError struct {
	// Type is the category of error.
	Type ErrorType `json:"type"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Param is the input field that caused the error (if applicable).
	Param string `json:"param,omitempty"`

	// StatusCode overrides the default HTTP status code when non-zero.
	StatusCode int `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// HTTPStatusCode returns the appropriate HTTP status code for this error.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeAccessDenied:
		return http.StatusForbidden
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// NewAPIError creates a new canonical error.
func NewAPIError(errType ErrorType, message string) *APIError {
	return &APIError{
		Type:    errType,
		Message: message,
	}
}

// WithParam adds a parameter name to the error.
func (e *APIError) WithParam(param string) *APIError {
	e.Param = param
	return e
}

// WithStatusCode sets a specific HTTP status code.
func (e *APIError) WithStatusCode(code int) *APIError {
	e.StatusCode = code
	return e
}

// Convenience constructors for common errors.

// ErrValidation creates a validation error.
func ErrValidation(message string) *APIError {
	return NewAPIError(ErrorTypeValidation, message)
}

// ErrRateLimited creates a rate-limit error.
func ErrRateLimited(message string) *APIError {
	return NewAPIError(ErrorTypeRateLimit, message)
}

// ErrProvider creates a permanent provider error.
func ErrProvider(message string) *APIError {
	return NewAPIError(ErrorTypeProvider, message)
}

// ErrMalformedOutput creates a malformed-output error.
func ErrMalformedOutput(message string) *APIError {
	return NewAPIError(ErrorTypeMalformedOutput, message)
}

// ErrNotFound creates a not-found error.
func ErrNotFound(message string) *APIError {
	return NewAPIError(ErrorTypeNotFound, message)
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *APIError {
	return NewAPIError(ErrorTypeTimeout, message)
}

// ErrWrite creates a write error.
func ErrWrite(message string) *APIError {
	return NewAPIError(ErrorTypeWrite, message)
}
