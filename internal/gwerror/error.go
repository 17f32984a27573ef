// Package gwerror classifies gateway failures into the small set of
// kinds the dispatch core and HTTP surface need to distinguish, and
// maps each to an HTTP status.
package gwerror

import "net/http"

// Kind is one of the gateway's classified failure categories.
type Kind string

const (
	KindInvalidRequest Kind = "invalid_request"
	KindAuthentication Kind = "authentication"
	KindNoProviders    Kind = "no_providers"
	KindAllFailed      Kind = "all_failed"
	KindInternal       Kind = "internal"
)

// Error is a classified gateway failure. Message is safe to return to
// the caller; it never carries more than the last observed upstream
// error's message string.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Invalid(message string) *Error       { return New(KindInvalidRequest, message) }
func Unauthenticated(message string) *Error { return New(KindAuthentication, message) }
func NoProviders() *Error {
	return New(KindNoProviders, "No AI providers configured")
}
func AllFailed(cause error) *Error {
	msg := "all providers failed"
	if cause != nil {
		msg = cause.Error()
	}
	return New(KindAllFailed, msg)
}
func Internal(message string) *Error {
	if message == "" {
		message = "Internal server error"
	}
	return New(KindInternal, message)
}

// HTTPStatus maps a Kind to the status code the HTTP surface writes.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindNoProviders, KindAllFailed:
		return http.StatusServiceUnavailable
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
