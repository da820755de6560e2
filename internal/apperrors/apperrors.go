// Package apperrors defines the business error kinds returned by the lifecycle services.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the machine-readable error code.
type Kind string

const (
	KindValidation             Kind = "VALIDATION_ERROR"
	KindInvalidTransition      Kind = "INVALID_TRANSITION"
	KindMissingAssignment      Kind = "MISSING_ASSIGNMENT"
	KindConcurrentModification Kind = "CONCURRENT_MODIFICATION"
	KindNotFound               Kind = "NOT_FOUND"
	KindUnauthorized           Kind = "UNAUTHORIZED"
)

// Sentinels for errors.Is checks. Any *Error matches the sentinel of its kind.
var (
	ErrValidation             = &Error{Kind: KindValidation}
	ErrInvalidTransition      = &Error{Kind: KindInvalidTransition}
	ErrMissingAssignment      = &Error{Kind: KindMissingAssignment}
	ErrConcurrentModification = &Error{Kind: KindConcurrentModification}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrUnauthorized           = &Error{Kind: KindUnauthorized}
)

var defaultMessages = map[Kind]string{
	KindValidation:             "validation failed",
	KindInvalidTransition:      "transition not allowed",
	KindMissingAssignment:      "scheduled date and a team or collaborator are required",
	KindConcurrentModification: "this request changed, reload and retry",
	KindNotFound:               "resource not found",
	KindUnauthorized:           "actor identity missing or invalid",
}

var statusByKind = map[Kind]int{
	KindValidation:             http.StatusBadRequest,
	KindInvalidTransition:      http.StatusConflict,
	KindMissingAssignment:      http.StatusUnprocessableEntity,
	KindConcurrentModification: http.StatusConflict,
	KindNotFound:               http.StatusNotFound,
	KindUnauthorized:           http.StatusUnauthorized,
}

// Error is a business rule violation.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Kind, defaultMessages[e.Kind])
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

// HTTPStatus returns the status code used by the HTTP layer.
func (e *Error) HTTPStatus() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Text returns the message, falling back to the kind's default.
func (e *Error) Text() string {
	if e.Message != "" {
		return e.Message
	}
	return defaultMessages[e.Kind]
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return Newf(KindValidation, format, args...)
}

func InvalidTransition(format string, args ...any) *Error {
	return Newf(KindInvalidTransition, format, args...)
}

func NotFound(what string) *Error {
	return Newf(KindNotFound, "%s not found", what)
}

func ConcurrentModification() *Error {
	return &Error{Kind: KindConcurrentModification, Message: defaultMessages[KindConcurrentModification]}
}

func MissingAssignment(message string) *Error {
	return &Error{Kind: KindMissingAssignment, Message: message}
}

// As extracts the *Error from err, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
