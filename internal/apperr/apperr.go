// Package apperr defines the operational error carried from models and
// handlers to the HTTP error responder.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is an operational error with the HTTP status it maps to.
type Error struct {
	Status  int
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

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by status and message so that a wrapped copy
// still compares equal to the sentinel it was built from.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Status == t.Status && e.Message == t.Message
}

// New creates an operational error.
func New(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

// Wrap attaches a cause to an operational error.
func Wrap(status int, message string, err error) *Error {
	return &Error{Status: status, Message: message, Err: err}
}

func BadRequest(message string) *Error   { return New(http.StatusBadRequest, message) }
func Unauthorized(message string) *Error { return New(http.StatusUnauthorized, message) }
func Forbidden(message string) *Error    { return New(http.StatusForbidden, message) }
func NotFound(message string) *Error     { return New(http.StatusNotFound, message) }
func Conflict(message string) *Error     { return New(http.StatusConflict, message) }

// Internal wraps an unexpected failure. The message is what the client sees.
func Internal(message string, err error) *Error {
	return Wrap(http.StatusInternalServerError, message, err)
}

// StatusOf returns the HTTP status for err, defaulting to 500.
func StatusOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Status
	}
	return http.StatusInternalServerError
}

// IsOperational reports whether err carries a client-facing message.
func IsOperational(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Status < http.StatusInternalServerError
}
