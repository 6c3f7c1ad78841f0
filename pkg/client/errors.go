package client

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind classifies a failed CallRail request.
type Kind string

const (
	// KindUnauthenticated is a 401: bad or missing API token.
	KindUnauthenticated Kind = "unauthenticated"

	// KindForbidden is a 403.
	KindForbidden Kind = "forbidden"

	// KindNotFound is a 404.
	KindNotFound Kind = "not_found"

	// KindInvalid is a 400/422 with validation details.
	KindInvalid Kind = "invalid"

	// KindRateLimited is a 429, or a request refused by the local budget.
	KindRateLimited Kind = "rate_limited"

	// KindServerFailure is any 5xx.
	KindServerFailure Kind = "server_failure"

	// KindUnreachable covers network errors, timeouts and an open circuit breaker.
	KindUnreachable Kind = "unreachable"

	// KindUnexpected is any other non-success status.
	KindUnexpected Kind = "unexpected"
)

// Retryable reports whether a request failing with this kind may succeed on retry.
func (k Kind) Retryable() bool {
	switch k {
	case KindRateLimited, KindServerFailure, KindUnreachable:
		return true
	default:
		return false
	}
}

// Error is a CallRail API failure.
type Error struct {
	Kind       Kind
	StatusCode int
	// RetryAfter is set for KindRateLimited when the server or budget says how long to wait.
	RetryAfter time.Duration
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "callrail %s error", e.Kind)
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a CallRail error anywhere in err's chain,
// or "" when err is not one.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// RetryAfterOf returns the retry-after hint carried by err, if any.
func RetryAfterOf(err error) time.Duration {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Kind == KindRateLimited {
		return apiErr.RetryAfter
	}
	return 0
}

// kindForStatus maps an HTTP status to the error taxonomy. Success codes return "".
func kindForStatus(status int) Kind {
	switch {
	case status < 400:
		return ""
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return KindInvalid
	case status == http.StatusUnauthorized:
		return KindUnauthenticated
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServerFailure
	default:
		return KindUnexpected
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
