// Package apierr defines the error taxonomy shared by the HTTP surface and
// the resource flows. Every failure that reaches a client is one of these kinds.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Kind int

const (
	KindInternal Kind = iota
	KindConfiguration
	KindValidation
	KindAuth
	KindRateLimit
	KindNotFound
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Status maps the kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a kind, a client-facing message and an optional cause.
type Error struct {
	Kind       Kind
	Message    string
	Err        error
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Configuration(msg string, err error) *Error {
	return &Error{Kind: KindConfiguration, Message: msg, Err: err}
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Auth(msg string, err error) *Error {
	return &Error{Kind: KindAuth, Message: msg, Err: err}
}

func RateLimited(retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimit, Message: "Rate limit exceeded", RetryAfter: retryAfter}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Upstream(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

// KindOf reports the kind of err, KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindInternal
}

// Status returns the HTTP status for err.
func Status(err error) int {
	return KindOf(err).Status()
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// Body renders the JSON body for err. Configuration failures never reveal
// their message, upstream causes are only attached when details is set.
func Body(err error, details bool) map[string]interface{} {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		body := map[string]interface{}{"error": "Internal server error"}
		if details && err != nil {
			body["details"] = err.Error()
		}
		return body
	}

	switch apiErr.Kind {
	case KindConfiguration:
		return map[string]interface{}{"error": "Server configuration error"}
	case KindRateLimit:
		return map[string]interface{}{
			"error":      apiErr.Message,
			"retryAfter": RetryAfterSeconds(apiErr.RetryAfter),
		}
	case KindUpstream, KindInternal:
		body := map[string]interface{}{"error": apiErr.Message}
		if details && apiErr.Err != nil {
			body["details"] = apiErr.Err.Error()
		}
		return body
	default:
		return map[string]interface{}{"error": apiErr.Message}
	}
}

// RetryAfterSeconds rounds d up to whole seconds.
func RetryAfterSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}
