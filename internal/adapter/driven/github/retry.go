package github

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultMaxAttempts       = 3
	defaultMaxRateLimitWaits = 20
	defaultBaseBackoff       = time.Second
	maxBackoffInterval       = time.Hour
)

// sleepFunc blocks for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

// retryState is created fresh for every logical request.
type retryState struct {
	attempt        int // transient failures seen so far
	rateLimitWaits int
	lastErr        error
	wait           time.Duration
}

// retrier wraps a single request with the resilience policy:
//   - 429: wait for Retry-After, retry, do not consume an attempt
//   - timeout / connection failure: back off 1s, 2s, 4s ... up to maxAttempts
//   - anything else: fail immediately
type retrier struct {
	maxAttempts       int
	maxRateLimitWaits int // 0 means unbounded
	baseBackoff       time.Duration
	sleep             sleepFunc
}

// Do runs op until it succeeds, fails permanently, or the budget is spent.
func (r *retrier) Do(ctx context.Context, op func(context.Context) (*Response, error)) (*Response, error) {
	var state retryState
	schedule := r.newBackOff()

	for {
		resp, err := op(ctx)
		if err == nil {
			return resp, nil
		}
		state.lastErr = err

		var rateLimited *RateLimitedError
		switch {
		case errors.As(err, &rateLimited):
			state.rateLimitWaits++
			if r.maxRateLimitWaits > 0 && state.rateLimitWaits > r.maxRateLimitWaits {
				return nil, r.exhausted(state)
			}
			state.wait = rateLimited.RetryAfter
			slog.Warn("rate limit hit, waiting before retrying",
				"url", rateLimited.URL,
				"wait", state.wait,
				"rate_limit_waits", state.rateLimitWaits,
			)

		case IsTransient(err):
			state.attempt++
			if state.attempt >= r.maxAttempts {
				return nil, r.exhausted(state)
			}
			state.wait = schedule.NextBackOff()
			slog.Warn("request failed, retrying",
				"attempt", state.attempt,
				"max_attempts", r.maxAttempts,
				"wait", state.wait,
				"error", err,
			)

		default:
			return nil, err
		}

		if err := r.sleep(ctx, state.wait); err != nil {
			return nil, err
		}
	}
}

func (r *retrier) exhausted(state retryState) error {
	slog.Error("giving up on request",
		"attempts", state.attempt,
		"rate_limit_waits", state.rateLimitWaits,
		"error", state.lastErr,
	)
	return &RetriesExhaustedError{
		Attempts:       state.attempt,
		RateLimitWaits: state.rateLimitWaits,
		Err:            state.lastErr,
	}
}

// newBackOff returns a jitter-free doubling schedule starting at baseBackoff.
func (r *retrier) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.baseBackoff
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = maxBackoffInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// sleepContext is the production sleepFunc.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
