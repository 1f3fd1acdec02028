// Package errs carries a stable error code from the store up to the HTTP
// response and back into the client.
package errs

import (
	"errors"
	"net/http"
)

// Code identifies a class of failure. The string form is the "code" field
// of JSON error bodies.
type Code string

const (
	// Unauthenticated: credential missing, unknown or expired.
	Unauthenticated Code = "unauthenticated"
	// InvalidArgument: a field is out of bounds or malformed. Nothing was written.
	InvalidArgument Code = "invalid_argument"
	// NotFound: the id does not exist or belongs to another user. The two are
	// indistinguishable on purpose.
	NotFound Code = "not_found"
	// AlreadyExists: a uniqueness constraint, e.g. a registered email.
	AlreadyExists Code = "already_exists"
	RateLimited   Code = "rate_limited"
	// Unavailable: the store or an upstream failed; retrying may succeed.
	Unavailable Code = "unavailable"
	Internal    Code = "internal"
)

var statusOf = map[Code]int{
	Unauthenticated: http.StatusUnauthorized,
	InvalidArgument: http.StatusBadRequest,
	NotFound:        http.StatusNotFound,
	AlreadyExists:   http.StatusConflict,
	RateLimited:     http.StatusTooManyRequests,
	Unavailable:     http.StatusServiceUnavailable,
	Internal:        http.StatusInternalServerError,
}

// Error pairs a Code with a message that is safe to show the user.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap keeps cause for logs and errors.Is while exposing only message.
func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Err: cause}
}

func as(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// CodeOf is the outermost Code in err's chain. Uncoded errors are Internal.
func CodeOf(err error) Code {
	if e, ok := as(err); ok && e.Code != "" {
		return e.Code
	}
	return Internal
}

// MessageOf is the user-facing text of err. Uncoded errors become
// "internal error" so driver messages and paths never reach a response.
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	if e, ok := as(err); ok && e.Message != "" {
		return e.Message
	}
	return "internal error"
}

// Is reports whether err is non-nil and carries code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// HTTPStatus is the response status for code.
func HTTPStatus(code Code) int {
	if s, ok := statusOf[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// FromHTTPStatus is the inverse of HTTPStatus. Gateway failures count as
// Unavailable.
func FromHTTPStatus(status int) Code {
	switch status {
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return Unavailable
	}
	for code, s := range statusOf {
		if s == status {
			return code
		}
	}
	return Internal
}
