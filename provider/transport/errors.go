// Package transport implements the HTTP/SSE plumbing and retry policy
// shared by every provider adapter: a closed error-kind taxonomy, an
// exponential-backoff-with-jitter retry policy, and a chunk-boundary-safe
// SSE frame parser.
package transport

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of unified error categories a provider
// adapter must map its native errors onto.
type ErrorKind string

const (
	KindAuthentication    ErrorKind = "authentication"
	KindAccessDenied      ErrorKind = "access_denied"
	KindNotFound          ErrorKind = "not_found"
	KindInvalidRequest    ErrorKind = "invalid_request"
	KindRateLimit         ErrorKind = "rate_limit"
	KindContextLength     ErrorKind = "context_length"
	KindQuotaExceeded     ErrorKind = "quota_exceeded"
	KindContentFilter     ErrorKind = "content_filter"
	KindServerError       ErrorKind = "server_error"
	KindRequestTimeout    ErrorKind = "request_timeout"
	KindAbort             ErrorKind = "abort"
	KindNetworkError      ErrorKind = "network_error"
	KindStreamError       ErrorKind = "stream_error"
	KindInvalidToolCall   ErrorKind = "invalid_tool_call"
	KindNoObjectGenerated ErrorKind = "no_object_generated"
	KindConfiguration     ErrorKind = "configuration"
)

// retryable is the subset of ErrorKind values that Do retries, whatever
// the RetryPolicy.
var retryable = map[ErrorKind]bool{
	KindRateLimit:      true,
	KindServerError:    true,
	KindRequestTimeout: true,
	KindNetworkError:   true,
	KindStreamError:    true,
}

// Error is the unified error type returned by every provider adapter.
type Error struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Message    string
	RetryAfter float64 // seconds; zero means unspecified
	Err        error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether an error of this kind should be retried by
// default. Callers needing custom classification should inspect Kind
// directly rather than call this on arbitrary errors.
func (e *Error) Retryable() bool { return retryable[e.Kind] }

// AsError extracts a *Error from err via errors.As, returning nil, false if
// err does not wrap one.
func AsError(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsRetryable reports whether err is (or wraps) a transport Error whose
// Kind is retryable by default.
func IsRetryable(err error) bool {
	te, ok := AsError(err)
	return ok && te.Retryable()
}
