package github

import (
	"errors"
	"fmt"
	"time"
)

// ErrMissingCredential is returned when a client is built without a bearer token.
var ErrMissingCredential = errors.New("github token not configured")

// InvalidResponseFormatError reports a 2xx response whose body is not JSON.
// It signals a contract violation with the API and is never retried.
type InvalidResponseFormatError struct {
	URL         string
	ContentType string
	Reason      string
}

func (e *InvalidResponseFormatError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid response format from %s: %s", e.URL, e.Reason)
	}
	return fmt.Sprintf("invalid response format from %s: expected JSON, got content type %q", e.URL, e.ContentType)
}

// HTTPError is a non-2xx response other than 429.
type HTTPError struct {
	URL        string
	StatusCode int
	Message    string // "message" field of the GitHub error body, if any.
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("GET %s: HTTP %d: %s", e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
}

// RateLimitedError is a 429 response. RetryAfter is the advertised wait.
type RateLimitedError struct {
	URL        string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("GET %s: rate limited, retry after %s", e.URL, e.RetryAfter)
}

// TimeoutError is a request that did not complete within the per-attempt timeout.
type TimeoutError struct {
	URL string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("GET %s: timeout: %v", e.URL, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ConnectionError is any other transport-level failure (DNS, refused, reset).
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("GET %s: connection failure: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// RetriesExhaustedError is returned once the transient-failure budget or the
// rate-limit wait cap is spent. Err is the last underlying failure.
type RetriesExhaustedError struct {
	Attempts       int
	RateLimitWaits int
	Err            error
}

func (e *RetriesExhaustedError) Error() string {
	if e.RateLimitWaits > 0 {
		return fmt.Sprintf("request failed after %d attempts and %d rate limit waits: %v", e.Attempts, e.RateLimitWaits, e.Err)
	}
	return fmt.Sprintf("request failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a timeout or connection failure, the two
// outcomes that are retried with backoff.
func IsTransient(err error) bool {
	var timeoutErr *TimeoutError
	var connErr *ConnectionError
	return errors.As(err, &timeoutErr) || errors.As(err, &connErr)
}
