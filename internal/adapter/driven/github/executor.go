package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit/github_primary_ratelimit"
	gh "github.com/google/go-github/v82/github"
)

// Response is a validated 2xx JSON response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// executor issues exactly one authenticated GET per call and classifies the
// outcome. It keeps no state between calls.
type executor struct {
	gh                *gh.Client // Used for request construction only.
	httpClient        *http.Client
	timeout           time.Duration
	defaultRetryAfter time.Duration
	now               func() time.Time
}

// Execute performs a single GET. rawURL may be relative to the API base URL or
// absolute (a pagination cursor). params is merged into the query only when
// non-empty, so cursor URLs are used exactly as received.
func (e *executor) Execute(ctx context.Context, rawURL string, params url.Values) (*Response, error) {
	req, err := e.gh.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", rawURL, err)
	}

	if len(params) > 0 {
		q := req.URL.Query()
		for key, values := range params {
			q[key] = values
		}
		req.URL.RawQuery = q.Encode()
	}
	target := req.URL.String()

	attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.httpClient.Do(req.WithContext(attemptCtx))
	if err != nil {
		var limitErr *github_primary_ratelimit.RateLimitReachedError
		if errors.As(err, &limitErr) && ctx.Err() == nil {
			return nil, &RateLimitedError{URL: target, RetryAfter: e.primaryLimitWait(limitErr)}
		}
		return nil, classifyTransportError(ctx, target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(ctx, target, err)
	}

	if isRateLimited(resp) {
		return nil, &RateLimitedError{URL: target, RetryAfter: e.retryAfter(resp.Header)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{URL: target, StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	contentType := resp.Header.Get("Content-Type")
	if !isJSONContentType(contentType) {
		return nil, &InvalidResponseFormatError{URL: target, ContentType: contentType}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// classifyTransportError maps a failed round trip to the error taxonomy. A
// canceled parent context is returned as-is so the retry loop stops.
func classifyTransportError(ctx context.Context, target string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &TimeoutError{URL: target, Err: err}
	}

	return &ConnectionError{URL: target, Err: err}
}

// retryAfter parses the Retry-After header, which GitHub sends as a number of
// seconds. HTTP-date values are honoured too. Anything else yields the default.
func (e *executor) retryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return e.defaultRetryAfter
	}

	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}

	if at, err := http.ParseTime(v); err == nil {
		if wait := at.Sub(e.now()); wait > 0 {
			return wait
		}
		return 0
	}

	return e.defaultRetryAfter
}

// isRateLimited reports a 429, or a 403 carrying Retry-After (GitHub's
// secondary rate limit).
func isRateLimited(resp *http.Response) bool {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		return resp.Header.Get("Retry-After") != ""
	}
	return false
}

// primaryLimitWait derives the wait for a response the primary rate limiter
// intercepted: Retry-After if GitHub sent one, else the time until the limit
// resets, else the default.
func (e *executor) primaryLimitWait(limitErr *github_primary_ratelimit.RateLimitReachedError) time.Duration {
	if resp := limitErr.Response; resp != nil {
		if resp.Body != nil {
			resp.Body.Close()
		}
		if resp.Header.Get("Retry-After") != "" {
			return e.retryAfter(resp.Header)
		}
	}

	if limitErr.ResetTime != nil && limitErr.ResetTime.Unix() > 0 {
		if wait := limitErr.ResetTime.Sub(e.now()); wait > 0 {
			return wait
		}
		return 0
	}

	return e.defaultRetryAfter
}

func isJSONContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// errorMessage extracts the "message" field of a GitHub error body.
func errorMessage(body []byte) string {
	var errResp gh.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return ""
	}
	return errResp.Message
}
