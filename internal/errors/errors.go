// Package errors provides coded errors for the pagetrail batch commands.
//
// Usage:
//
//	// At startup - configuration problems are fatal
//	if cfg.GitHub.Token == "" {
//	    return errors.Config("GITHUB_TOKEN not set")
//	}
//
//	// At the command boundary - map the code to a process exit status
//	var coded *errors.Error
//	if errors.As(err, &coded) {
//	    os.Exit(coded.Code.ExitCode())
//	}
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
	New    = errors.New
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	CodeConfig     Code = "CONFIG"
	CodeValidation Code = "VALIDATION"
	CodeUpstream   Code = "UPSTREAM"
	CodeNotFound   Code = "NOT_FOUND"
	CodeInternal   Code = "INTERNAL"
)

// ExitCode returns the process exit status for an error code.
func (c Code) ExitCode() int {
	switch c {
	case CodeConfig:
		return 2
	case CodeValidation:
		return 3
	case CodeUpstream:
		return 4
	default:
		return 1
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		cause:   e.cause,
	}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		cause:   err,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrConfig     = &Error{Code: CodeConfig, Message: "configuration error"}
	ErrValidation = &Error{Code: CodeValidation, Message: "validation error"}
	ErrUpstream   = &Error{Code: CodeUpstream, Message: "upstream error"}
	ErrNotFound   = &Error{Code: CodeNotFound, Message: "not found"}
	ErrInternal   = &Error{Code: CodeInternal, Message: "internal error"}
)

// Config creates a configuration error.
func Config(msg string) *Error {
	return &Error{Code: CodeConfig, Message: msg}
}

// Configf creates a configuration error with formatted message.
func Configf(format string, args ...any) *Error {
	return &Error{Code: CodeConfig, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// ExitCode returns the exit status for any error: the code's status for
// coded errors, 1 for everything else and 0 for nil.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code.ExitCode()
	}
	return 1
}
