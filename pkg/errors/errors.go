package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode string

// Common error codes used across all packages
const (
	// Generic errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeConflict     ErrorCode = "CONFLICT"

	// Authentication errors
	ErrCodeNotAuthenticated        ErrorCode = "NOT_AUTHENTICATED"
	ErrCodeInvalidCredentialsShape ErrorCode = "INVALID_CREDENTIALS_SHAPE"

	// Device claim errors
	ErrCodeMalformedDeviceID ErrorCode = "MALFORMED_DEVICE_ID"
	ErrCodeAlreadyClaimed    ErrorCode = "ALREADY_CLAIMED"

	// Passthrough for identity-provider and store failures
	ErrCodeBackendFailure ErrorCode = "BACKEND_FAILURE"
)

// Error represents a structured error with code, message, and a wrapped cause
type Error struct {
	Code    ErrorCode // Unique error code
	Message string    // Human-readable error message
	Err     error     // Wrapped underlying error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *Error) HTTPStatusCode() int {
	return MapErrorCodeToHTTPStatus(e.Code)
}

// New creates a new Error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with code and message
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error
// Returns ErrCodeInternal if the error is not a structured Error
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// MapErrorCodeToHTTPStatus maps error codes to HTTP status codes
func MapErrorCodeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidInput, ErrCodeMalformedDeviceID, ErrCodeInvalidCredentialsShape:
		return http.StatusBadRequest
	case ErrCodeNotAuthenticated:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict, ErrCodeAlreadyClaimed:
		return http.StatusConflict
	case ErrCodeBackendFailure:
		return http.StatusBadGateway
	case ErrCodeInternal:
		fallthrough
	default:
		return http.StatusInternalServerError
	}
}

// NotAuthenticated creates a "not authenticated" error
func NotAuthenticated(message string) *Error {
	return New(ErrCodeNotAuthenticated, message)
}

// BackendFailure wraps an identity-provider or store error unchanged
func BackendFailure(err error, message string) *Error {
	return Wrap(err, ErrCodeBackendFailure, message)
}
