// Package apperrors defines the stable error kinds surfaced by the fleet service.
package apperrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure independently of the transport that reports it
type Kind string

const (
	// KindNotFound means a referenced entity does not exist
	KindNotFound Kind = "NOT_FOUND"
	// KindInvalidArgument means an out-of-range or unrecognized value
	KindInvalidArgument Kind = "INVALID_ARGUMENT"
	// KindInvalidStateTransition means an illegal status edge was requested
	KindInvalidStateTransition Kind = "INVALID_STATE_TRANSITION"
	// KindUnavailable means a dependent store, cache or backend failed
	KindUnavailable Kind = "UNAVAILABLE"
	// KindConflict means a uniqueness violation reported by the store
	KindConflict Kind = "CONFLICT"
	// KindInternal is anything not classified above
	KindInternal Kind = "INTERNAL"
)

// Error is a classified error with a human-readable message
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, apperrors.ErrNotFound) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons
var (
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrInvalidArgument        = &Error{Kind: KindInvalidArgument}
	ErrInvalidStateTransition = &Error{Kind: KindInvalidStateTransition}
	ErrUnavailable            = &Error{Kind: KindUnavailable}
	ErrConflict               = &Error{Kind: KindConflict}
)

// NotFound builds a KindNotFound error
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// InvalidArgument builds a KindInvalidArgument error
func InvalidArgument(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// InvalidStateTransition builds a KindInvalidStateTransition error
func InvalidStateTransition(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidStateTransition, Message: fmt.Sprintf(format, args...)}
}

// Unavailable wraps a dependency failure
func Unavailable(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindUnavailable, Message: fmt.Sprintf(format, args...), Err: err}
}

// Conflict wraps a uniqueness violation
func Conflict(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// MessageOf returns the message of the first *Error in err's chain
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return "Internal server error"
}
