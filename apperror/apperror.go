package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNetwork    = errors.New("network error")
	ErrServer     = errors.New("server error")
	ErrParse      = errors.New("parse error")
)

type Error struct {
	Err        error  // one of the sentinels above
	Message    string // human-readable message, may be empty for server errors
	Field      string // validation only: field causing the error
	StatusCode int    // server only: HTTP status of the response
	Cause      error  // underlying error, if any
}

func (e *Error) Error() string {
	switch e.Err {
	case ErrServer:
		if e.Message != "" {
			return fmt.Sprintf("%s (%d, %s)", e.Err, e.StatusCode, e.Message)
		}
		return fmt.Sprintf("%s (%d)", e.Err, e.StatusCode)
	case ErrValidation:
		return e.Message
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Err, e.Cause)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err, e.Message)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// ValidationFailed is raised locally before any network call
func ValidationFailed(field, message string) *Error {
	return &Error{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// NetworkFailure wraps a transport level failure (timeout, DNS, refused, canceled)
func NetworkFailure(cause error) *Error {
	return &Error{
		Err:   ErrNetwork,
		Cause: cause,
	}
}

// ServerFailure describes a non-200 response. message is empty when the body
// carried no error message.
func ServerFailure(statusCode int, message string) *Error {
	return &Error{
		Err:        ErrServer,
		StatusCode: statusCode,
		Message:    message,
	}
}

// ParseFailure describes a response body that did not match the expected shape
func ParseFailure(cause error) *Error {
	return &Error{
		Err:   ErrParse,
		Cause: cause,
	}
}

// IsConnectivity reports whether err should be surfaced to the user as a
// generic connectivity problem rather than an input error.
func IsConnectivity(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrServer) || errors.Is(err, ErrParse)
}

// Kind returns a short label for metrics and logs
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrServer):
		return "server"
	case errors.Is(err, ErrParse):
		return "parse"
	}
	return "unknown"
}
