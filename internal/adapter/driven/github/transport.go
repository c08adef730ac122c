package github

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// bearerTransport sets the fixed Authorization header on every request.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request.
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(r)
}

// loggingTransport logs each API call with its status, duration and the
// rate limit headers GitHub returns.
type loggingTransport struct {
	base http.RoundTripper
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		slog.Debug("github api call failed",
			"method", req.Method,
			"path", req.URL.Path,
			"duration", time.Since(start).Round(time.Millisecond),
			"error", err,
		)
		return nil, err
	}

	slog.Debug("github api call",
		"method", req.Method,
		"path", req.URL.Path,
		"query", req.URL.RawQuery,
		"status", resp.StatusCode,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	logRateLimit(resp.Header, req.URL.Path)

	return resp, nil
}

// logRateLimit warns when the primary rate limit is close to exhaustion.
func logRateLimit(h http.Header, endpoint string) {
	remaining, err := strconv.Atoi(h.Get("X-RateLimit-Remaining"))
	if err != nil {
		return
	}
	limit, _ := strconv.Atoi(h.Get("X-RateLimit-Limit"))

	slog.Debug("github rate limit",
		"endpoint", endpoint,
		"rate_remaining", remaining,
		"rate_limit", limit,
	)

	if remaining < 100 {
		attrs := []any{"remaining", remaining, "endpoint", endpoint}
		if reset, err := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64); err == nil {
			attrs = append(attrs, "reset_in", time.Until(time.Unix(reset, 0)).Round(time.Second))
		}
		slog.Warn("github rate limit low", attrs...)
	}
}

// transportOrDefault returns rt, or http.DefaultTransport when rt is nil.
func transportOrDefault(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		return http.DefaultTransport
	}
	return rt
}
