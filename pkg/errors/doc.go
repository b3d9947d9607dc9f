// Package errors provides structured error handling with error codes for simple-claim.
//
// This package standardizes error handling across all services with typed error codes,
// error wrapping, and automatic HTTP status code mapping.
//
// # Basic Usage
//
// Creating errors with codes:
//
//	import "github.com/tendant/simple-claim/pkg/errors"
//
//	err := errors.New(errors.ErrCodeAlreadyClaimed, "device has already been claimed")
//
// Wrapping an underlying store or provider error:
//
//	err := errors.BackendFailure(cause, "store write failed")
//
// Checking error codes:
//
//	if errors.IsCode(err, errors.ErrCodeNotAuthenticated) {
//		// ask the caller to log in
//	}
//
// Mapping to HTTP in an API handler:
//
//	status := errors.MapErrorCodeToHTTPStatus(errors.GetCode(err))
package errors
