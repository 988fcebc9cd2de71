// Package domainerrors provides coded errors shared across services and
// stores. Codes classify failures for retry and acknowledgement decisions
// without string matching on messages.
package domainerrors

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeInternal         Code = "internal"
	CodeValidation       Code = "validation"
	CodeInvalidInput     Code = "invalid_input"
	CodeNotFound         Code = "not_found"
	CodeConflict         Code = "conflict"
	CodeTimeout          Code = "timeout"
	CodeRetryable        Code = "retryable"
	CodeAlreadyProcessed Code = "already_processed"
)

// Error carries a classification code alongside the message and an optional
// wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error with no cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an existing error. A nil cause yields
// nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	for errors.As(err, &e) {
		if e.Code == code {
			return true
		}
		err = e.Err
		e = nil
	}
	return false
}

// CodeOf returns the code of the outermost coded error, or CodeInternal when
// the chain carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Is defers to the standard library; kept so call sites can stay on one
// import.
func Is(err, target error) bool { return errors.Is(err, target) }
