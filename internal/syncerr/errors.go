// Package syncerr defines the call-level errors of the sync surface.
//
// Per-action failures are never errors at this level: they are recorded on
// the action and reported in drain results. A call-level error means the
// whole invocation did not happen (bad caller, bad input, or the store was
// unreachable).
package syncerr

import (
	"errors"
	"fmt"
)

// Code categorizes call-level errors.
type Code string

const (
	// CodeUnauthenticated means the call had no caller identity.
	CodeUnauthenticated Code = "unauthenticated"

	// CodeInvalidArgument means the request itself was malformed
	// (empty or oversized batch, missing action type).
	CodeInvalidArgument Code = "invalid-argument"

	// CodeNotFound means a referenced entity does not exist.
	CodeNotFound Code = "not-found"

	// CodeInternal means an infrastructure failure (store unreachable,
	// commit failed).
	CodeInternal Code = "internal"
)

// Error is a call-level error with a stable code.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around an underlying cause.
func Wrap(code Code, err error, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Unauthenticated creates a CodeUnauthenticated error.
func Unauthenticated(message string) *Error {
	return &Error{Code: CodeUnauthenticated, Message: message}
}

// InvalidArgument creates a CodeInvalidArgument error.
func InvalidArgument(format string, args ...any) *Error {
	return New(CodeInvalidArgument, format, args...)
}

// Internal wraps an infrastructure failure.
func Internal(err error, message string) *Error {
	return Wrap(CodeInternal, err, message)
}

// CodeOf returns the code of the first *Error in err's chain, or
// CodeInternal for any other non-nil error. Uses errors.As to handle
// wrapped errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// MessageOf returns the client-facing message: the *Error message when
// present, otherwise a generic text that does not leak internals.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return "internal error"
}
