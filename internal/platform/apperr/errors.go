// Package apperr defines the error taxonomy shared by every component of the
// service and its mapping onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error. The zero value is KindInternal.
type Kind string

const (
	KindInternal                   Kind = "INTERNAL"
	KindNotFound                   Kind = "NOT_FOUND"
	KindUnresolvedForeignReference Kind = "UNRESOLVED_FOREIGN_REFERENCE"
	KindDependencyUnavailable      Kind = "DEPENDENCY_UNAVAILABLE"
	KindScheduleConflict           Kind = "SCHEDULE_CONFLICT"
	KindInvalidTransition          Kind = "INVALID_TRANSITION"
	KindUnauthenticated            Kind = "UNAUTHENTICATED"
	KindForbidden                  Kind = "FORBIDDEN"
	KindAccountLocked              Kind = "ACCOUNT_LOCKED"
	KindInvalidCredentials         Kind = "INVALID_CREDENTIALS"
	KindValidation                 Kind = "VALIDATION_ERROR"
)

var statusByKind = map[Kind]int{
	KindInternal:                   http.StatusInternalServerError,
	KindNotFound:                   http.StatusNotFound,
	KindUnresolvedForeignReference: http.StatusUnprocessableEntity,
	KindDependencyUnavailable:      http.StatusServiceUnavailable,
	KindScheduleConflict:           http.StatusConflict,
	KindInvalidTransition:          http.StatusConflict,
	KindUnauthenticated:            http.StatusUnauthorized,
	KindForbidden:                  http.StatusForbidden,
	KindAccountLocked:              http.StatusLocked,
	KindInvalidCredentials:         http.StatusUnauthorized,
	KindValidation:                 http.StatusBadRequest,
}

// HTTPStatus returns the status code a kind is rendered with.
func (k Kind) HTTPStatus() int {
	if s, ok := statusByKind[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error is the application error type. Details carries structured context
// that is safe to show to the caller.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so errors.Is(err, apperr.ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// WithDetail returns a copy of e with key set in Details.
func (e *Error) WithDetail(key string, value any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrDependencyUnavailable = &Error{Kind: KindDependencyUnavailable}
	ErrScheduleConflict      = &Error{Kind: KindScheduleConflict}
	ErrInvalidTransition     = &Error{Kind: KindInvalidTransition}
	ErrUnauthenticated       = &Error{Kind: KindUnauthenticated}
	ErrForbidden             = &Error{Kind: KindForbidden}
	ErrAccountLocked         = &Error{Kind: KindAccountLocked}
	ErrInvalidCredentials    = &Error{Kind: KindInvalidCredentials}
	ErrValidation            = &Error{Kind: KindValidation}
)

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func NotFound(entity string, id any) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s %v not found", entity, id),
		Details: map[string]any{"entity": entity, "id": id},
	}
}

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func Validationf(format string, args ...any) *Error {
	return Newf(KindValidation, format, args...)
}

// Unavailable reports that the named store could not be reached.
func Unavailable(store string, err error) *Error {
	return &Error{
		Kind:    KindDependencyUnavailable,
		Message: fmt.Sprintf("%s store unavailable", store),
		Details: map[string]any{"store": store},
		Err:     err,
	}
}

func InvalidTransition(machine, from, to string) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("%s cannot move from %s to %s", machine, from, to),
		Details: map[string]any{"from": from, "to": to},
	}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries kind k.
func IsKind(err error, k Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == k
}

// From converts any error into an *Error, preserving an existing one.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}
