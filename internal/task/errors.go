package task

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds, grouped by class. The kind is the machine-readable code
// surfaced to HTTP clients as {"error":{"kind","message","field"}}.
const (
	// Validation (400)
	KindMissingField    = "MissingField"
	KindBadField        = "BadField"
	KindBadCron         = "BadCron"
	KindBadTimezone     = "BadTimezone"
	KindBadToken        = "BadToken"
	KindPathNotAbsolute = "PathNotAbsolute"
	KindPromptTooLong   = "PromptTooLong"

	// Conflict (409)
	KindDuplicateName     = "DuplicateName"
	KindDuplicateToken    = "DuplicateToken"
	KindAlreadyRunning    = "AlreadyRunning"
	KindInvalidTransition = "InvalidTransition"
	KindDisabled          = "Disabled"

	// NotFound (404)
	KindNotFound = "NotFound"

	// Persistence (500)
	KindIOError      = "IOError"
	KindCorruptStore = "CorruptStore"
)

// Error is a typed scheduler error with an HTTP-mappable kind.
type Error struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// HTTPStatus maps the error kind to its response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindDuplicateName, KindDuplicateToken, KindAlreadyRunning,
		KindInvalidTransition, KindDisabled:
		return http.StatusConflict
	case KindIOError, KindCorruptStore:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// Errf builds a typed error without an offending field.
func Errf(kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// FieldErrf builds a typed validation error naming the offending field.
func FieldErrf(kind, field, format string, args ...any) *Error {
	return &Error{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts a typed *Error from err, wrapping unknown errors as
// IOError so every failure surfaced over HTTP has a kind.
func AsError(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return &Error{Kind: KindIOError, Message: err.Error()}
}
