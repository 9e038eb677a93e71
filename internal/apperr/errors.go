// Package apperr defines the error taxonomy shared by every clinic operation.
// Services return *Error values; only the HTTP boundary translates them.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure. Each failure path signals exactly one kind.
type Kind string

const (
	KindUnauthorized      Kind = "unauthorized"
	KindForbidden         Kind = "forbidden"
	KindNotFound          Kind = "not_found"
	KindBadRequest        Kind = "bad_request"
	KindInvalidTransition Kind = "invalid_transition"
	KindConflict          Kind = "conflict"
	KindInternal          Kind = "internal"
)

// Error is a classified failure with a user-facing message. Err holds the
// internal cause, which is logged but never sent to clients.
type Error struct {
	Kind    Kind
	Message string
	Fields  []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(format string, args ...any) *Error {
	return newf(KindUnauthorized, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return newf(KindForbidden, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, format, args...)
}

func BadRequest(format string, args ...any) *Error {
	return newf(KindBadRequest, format, args...)
}

func InvalidTransition(format string, args ...any) *Error {
	return newf(KindInvalidTransition, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newf(KindConflict, format, args...)
}

// Validation reports field-level problems as a BadRequest carrying one message
// per failing field.
func Validation(fields ...string) *Error {
	return &Error{Kind: KindBadRequest, Message: "Validation failed", Fields: fields}
}

// Internal wraps an unexpected failure. The message stays generic.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "Internal Server Error", Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
