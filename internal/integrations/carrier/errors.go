package carrier

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Error kinds. Match them with errors.Is.
var (
	ErrAuth            = errors.New("carrier authentication failed")
	ErrPayloadRejected = errors.New("payload rejected by carrier")
	ErrPermission      = errors.New("carrier permission or contract error")
	ErrBusinessRule    = errors.New("carrier business rule rejection")
	ErrNotFound        = errors.New("not found at carrier")
	ErrNetwork         = errors.New("carrier network error")
	ErrUnavailable     = errors.New("carrier unavailable")
)

// Error is a failed carrier call.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Kind       error
	Retryable  bool
	Cause      error
}

func (e *Error) Error() string {
	var s string
	if e.StatusCode != 0 {
		s = fmt.Sprintf("%s: %v (http %d)", e.Op, e.Kind, e.StatusCode)
	} else {
		s = fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool { return e.Kind != nil && target == e.Kind }

// FromStatus classifies a non-2xx carrier response.
func FromStatus(op string, status int, message string) *Error {
	e := &Error{Op: op, StatusCode: status, Message: message}
	switch {
	case status == http.StatusBadRequest:
		e.Kind = ErrPayloadRejected
	case status == http.StatusUnauthorized:
		e.Kind = ErrAuth
	case status == http.StatusForbidden:
		e.Kind = ErrPermission
		if e.Message == "" {
			e.Message = "check contract, postage card and API permissions"
		}
	case status == http.StatusNotFound:
		e.Kind = ErrNotFound
	case status == http.StatusUnprocessableEntity:
		e.Kind = ErrBusinessRule
	case status == http.StatusTooManyRequests || status >= 500:
		e.Kind = ErrUnavailable
		e.Retryable = true
	default:
		e.Kind = ErrPayloadRejected
	}
	return e
}

// NetworkError wraps a transport failure (timeout, refused connection).
func NetworkError(op string, cause error) *Error {
	return &Error{Op: op, Kind: ErrNetwork, Retryable: true, Cause: cause}
}

// IsRetryable reports whether repeating an idempotent call may succeed.
func IsRetryable(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrUnavailable)
}
