// Package apperr defines the typed failures returned by the booking workflow.
// Every operation returns either a result or exactly one *Error.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindValidation        Kind = "VALIDATION_FAILED"
	KindNotFound          Kind = "NOT_FOUND"
	KindForbidden         Kind = "FORBIDDEN"
	KindInvalidTransition Kind = "INVALID_STATE_TRANSITION"
	KindInvalidState      Kind = "INVALID_STATE"
	KindConflict          Kind = "CONFLICT"
	KindTimeout           Kind = "TIMEOUT"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrTimeout           = &Error{Kind: KindTimeout}
)

// FieldError names one offending input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	for i, f := range e.Fields {
		if i == 0 {
			b.WriteString(" [")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(f.Field)
		b.WriteString(": ")
		b.WriteString(f.Message)
		if i == len(e.Fields)-1 {
			b.WriteString("]")
		}
	}
	if e.Err != nil && e.Message == "" {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrConflict) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Retryable reports whether the caller may retry the same call unchanged.
func (e *Error) Retryable() bool { return e.Kind == KindTimeout }

// HasField reports whether the error lists the given field.
func (e *Error) HasField(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

func NotFound(resource, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", resource, id)}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func InvalidTransition(msg string) *Error {
	return &Error{Kind: KindInvalidTransition, Message: msg}
}

func InvalidState(msg string) *Error {
	return &Error{Kind: KindInvalidState, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Message: "invalid input", Fields: []FieldError{{Field: field, Message: msg}}}
}

// Fields accumulates field errors so validation can report every violation at once.
type Fields []FieldError

func (f *Fields) Add(field, msg string) {
	*f = append(*f, FieldError{Field: field, Message: msg})
}

// Err returns nil when nothing was added.
func (f Fields) Err() error {
	if len(f) == 0 {
		return nil
	}
	return &Error{Kind: KindValidation, Message: "invalid input", Fields: f}
}

// FromStore maps a record store failure onto the taxonomy. Typed errors pass through;
// deadline expiry becomes a retryable TimeoutError; anything else is returned unmodified.
func FromStore(err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "record store did not respond in time", Err: err}
	}
	return err
}

// KindOf returns the kind of a typed error, or "" for untyped failures.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

func IsValidation(err error) bool        { return errors.Is(err, ErrValidation) }
func IsNotFound(err error) bool          { return errors.Is(err, ErrNotFound) }
func IsForbidden(err error) bool         { return errors.Is(err, ErrForbidden) }
func IsInvalidTransition(err error) bool { return errors.Is(err, ErrInvalidTransition) }
func IsInvalidState(err error) bool      { return errors.Is(err, ErrInvalidState) }
func IsConflict(err error) bool          { return errors.Is(err, ErrConflict) }
func IsTimeout(err error) bool           { return errors.Is(err, ErrTimeout) }

// Label is the metrics label for err: "" on success, the kind for typed errors,
// INTERNAL otherwise.
func Label(err error) string {
	if err == nil {
		return ""
	}
	if k := KindOf(err); k != "" {
		return string(k)
	}
	return "INTERNAL"
}
