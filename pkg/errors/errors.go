// Package errors provides structured error kinds for chainsat.
//
// Every failure that crosses a component boundary (registry clients, the
// graph store, the work queue, the SMT solver, the HTTP surface) is reported
// as an [*Error] carrying a machine-readable [Code]. Lower layers keep using
// plain sentinel errors wrapped with %w; the code is attached where the
// failure changes meaning for the caller.
//
// # Error Codes
//
//   - TRANSPORT_RETRY: network timeout or disconnect; retried indefinitely
//   - DECODE_FAILURE: malformed registry payload; cached as a sentinel
//   - PARSE_FAILURE: version or constraint could not be parsed
//   - NOT_FOUND: repository or package absent upstream
//   - MEMORY_EXHAUSTED: graph store out of memory or transaction timeout
//   - SMT_TIMEOUT: solver answered unknown
//   - NOT_AUTHENTICATED / INVALID_TOKEN / EXPIRED_TOKEN: auth failures
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidInput, "unknown ecosystem: %s", eco)
//	if errors.Is(err, errors.ErrCodeInvalidInput) {
//	    // Handle validation error
//	}
//
//	err := errors.Wrap(errors.ErrCodeMemoryExhausted, cause, "read subgraph %s", id)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for the failure kinds the system distinguishes.
const (
	// Registry and transport errors
	ErrCodeTransportRetry Code = "TRANSPORT_RETRY"
	ErrCodeDecodeFailure  Code = "DECODE_FAILURE"
	ErrCodeParseFailure   Code = "PARSE_FAILURE"

	// Resource not found errors
	ErrCodeNotFound Code = "NOT_FOUND"

	// Store and solver errors
	ErrCodeMemoryExhausted Code = "MEMORY_EXHAUSTED"
	ErrCodeSMTTimeout      Code = "SMT_TIMEOUT"

	// Authentication errors
	ErrCodeNotAuthenticated Code = "NOT_AUTHENTICATED"
	ErrCodeInvalidToken     Code = "INVALID_TOKEN"
	ErrCodeExpiredToken     Code = "EXPIRED_TOKEN"

	// Input validation errors
	ErrCodeInvalidInput     Code = "INVALID_INPUT"
	ErrCodeInvalidEcosystem Code = "INVALID_ECOSYSTEM"
	ErrCodeInvalidPackage   Code = "INVALID_PACKAGE"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode extracts the outermost error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
