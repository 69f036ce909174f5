package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies an error by how the caller can react to it.
type Kind int

const (
	KindUnexpected Kind = iota
	KindNotFound
	KindInvalid
	KindConflict
	KindUnauthorized
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid_input"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	default:
		return "unexpected"
	}
}

// Error is a classified, user-presentable error. Msg is safe to return to
// clients; Err carries the underlying cause and is only logged.
type Error struct {
	Kind Kind
	Msg  string
	// Status overrides the HTTP status derived from Kind when non-zero.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// WithStatus returns a copy of the error rendered with a fixed HTTP status.
func WithStatus(kind Kind, status int, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Status: status}
}

func NotFound(msg string) *Error     { return New(KindNotFound, msg) }
func Invalid(msg string) *Error      { return New(KindInvalid, msg) }
func Conflict(msg string) *Error     { return New(KindConflict, msg) }
func Unauthorized(msg string) *Error { return New(KindUnauthorized, msg) }
func Forbidden(msg string) *Error    { return New(KindForbidden, msg) }

// Unexpected wraps a storage or transport failure.
func Unexpected(err error) *Error {
	return &Error{Kind: KindUnexpected, Msg: "internal server error", Err: err}
}

// KindOf reports the classification of err. Unclassified errors are unexpected.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnexpected
}

// HTTPStatus maps err to the status code returned to clients.
func HTTPStatus(err error) int {
	var ae *Error
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError
	}
	if ae.Status != 0 {
		return ae.Status
	}
	switch ae.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalid:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// ToHTTP converts err into an echo error. Unexpected errors keep their cause
// as Internal so the request logger records it, but the client only sees a
// generic message.
func ToHTTP(err error) *echo.HTTPError {
	status := HTTPStatus(err)
	var ae *Error
	if status == http.StatusInternalServerError || !errors.As(err, &ae) {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
	return echo.NewHTTPError(status, ae.Msg)
}
