package files

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures returned by the service layer.
//
// Every operation returns either nil or an error for which CodeOf yields one
// of these codes, so callers can handle each case explicitly.
type ErrorCode int

const (
	// CodeTransient is an I/O failure in a store. Compensation guarantees no
	// partial state survived, so the whole operation can be retried.
	CodeTransient ErrorCode = iota

	// CodeValidation is bad or missing input, rejected before any store is
	// touched.
	CodeValidation

	// CodeFilenameConflict means the owner already has a record with this
	// filename.
	CodeFilenameConflict

	// CodeContentConflict means the owner already has a record with
	// byte-identical content.
	CodeContentConflict

	// CodeNotFound is an unknown id or link id. PENDING records are reported
	// as not found.
	CodeNotFound

	// CodeForbidden is an ownership mismatch.
	CodeForbidden

	// CodeTooLarge means the content exceeded the configured upload limit.
	CodeTooLarge
)

func (c ErrorCode) String() string {
	switch c {
	case CodeTransient:
		return "TRANSIENT"
	case CodeValidation:
		return "VALIDATION"
	case CodeFilenameConflict:
		return "FILENAME_CONFLICT"
	case CodeContentConflict:
		return "CONTENT_CONFLICT"
	case CodeNotFound:
		return "NOT_FOUND"
	case CodeForbidden:
		return "FORBIDDEN"
	case CodeTooLarge:
		return "TOO_LARGE"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// IsConflict reports whether the code is one of the two uniqueness
// conflicts.
func (c ErrorCode) IsConflict() bool {
	return c == CodeFilenameConflict || c == CodeContentConflict
}

// Error is the typed error returned by service operations.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so the sentinels below work with
// errors.Is regardless of message or cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is matching.
var (
	ErrTransient        = &Error{Code: CodeTransient, Message: "transient storage failure"}
	ErrValidation       = &Error{Code: CodeValidation, Message: "invalid input"}
	ErrFilenameConflict = &Error{Code: CodeFilenameConflict, Message: "filename already in use"}
	ErrContentConflict  = &Error{Code: CodeContentConflict, Message: "identical content already uploaded"}
	ErrNotFound         = &Error{Code: CodeNotFound, Message: "file not found"}
	ErrForbidden        = &Error{Code: CodeForbidden, Message: "not the owner of this file"}
	ErrTooLarge         = &Error{Code: CodeTooLarge, Message: "content exceeds upload limit"}
)

// NewError builds an *Error.
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// Validationf builds a validation error from a format string.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Transient wraps a store failure.
func Transient(message string, cause error) *Error {
	return &Error{Code: CodeTransient, Message: message, Err: cause}
}

// CodeOf extracts the code of err. Errors that are not *Error are treated as
// transient.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeTransient
}
