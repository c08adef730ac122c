// Package github implements the GitHubClient port: a sequential, retrying,
// paginating reader of the GitHub REST API.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit/github_primary_ratelimit"
	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit/github_secondary_ratelimit"

	"github.com/ericfisherdev/prcompliance/internal/domain/port/driven"
)

// DefaultBaseURL is the public GitHub REST API.
const DefaultBaseURL = "https://api.github.com/"

// Compile-time interface satisfaction check.
var _ driven.GitHubClient = (*Client)(nil)

// Client implements the driven.GitHubClient port. One Client is built per run
// and reused for every call so connections are pooled.
type Client struct {
	exec    *executor
	retry   *retrier
	perPage int
}

type options struct {
	baseURL           string
	httpClient        *http.Client
	maxAttempts       int
	maxRateLimitWaits int
	requestTimeout    time.Duration
	defaultRetryAfter time.Duration
	baseBackoff       time.Duration
	perPage           int
	sleep             sleepFunc
	now               func() time.Time
}

// Option configures the client.
type Option func(*options)

// WithBaseURL sets the API base URL (GitHub Enterprise, or a test server).
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = baseURL }
}

// WithHTTPClient replaces the default caching, rate-limit-aware HTTP client.
// The bearer and logging transports are still layered on top of it.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithMaxAttempts sets the transient-failure retry budget.
func WithMaxAttempts(n int) Option {
	return func(o *options) { o.maxAttempts = n }
}

// WithMaxRateLimitWaits caps consecutive 429 waits per request; 0 is unbounded.
func WithMaxRateLimitWaits(n int) Option {
	return func(o *options) { o.maxRateLimitWaits = n }
}

// WithRequestTimeout sets the per-attempt timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithDefaultRetryAfter sets the wait used when a 429 carries no Retry-After.
func WithDefaultRetryAfter(d time.Duration) Option {
	return func(o *options) { o.defaultRetryAfter = d }
}

// WithBaseBackoff sets the first transient-failure backoff; later ones double.
func WithBaseBackoff(d time.Duration) Option {
	return func(o *options) { o.baseBackoff = d }
}

// WithPerPage sets the page size for listings (1-100).
func WithPerPage(n int) Option {
	return func(o *options) { o.perPage = n }
}

// WithSleep replaces the blocking sleep used for backoff and rate-limit waits.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) { o.sleep = sleep }
}

// WithClock replaces the time source used to interpret HTTP-date Retry-After values.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewClient creates a GitHub API client with the following transport stack:
//  1. bearer token + request logging
//  2. go-github-ratelimit (primary/secondary rate limit detection)
//  3. httpcache (in-memory ETag caching, lives as long as the process)
//
// Request URLs and headers are built by go-github; execution, classification,
// retry and pagination are done here.
func NewClient(token string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingCredential
	}

	o := options{
		baseURL:           DefaultBaseURL,
		maxAttempts:       defaultMaxAttempts,
		maxRateLimitWaits: defaultMaxRateLimitWaits,
		requestTimeout:    30 * time.Second,
		defaultRetryAfter: 60 * time.Second,
		baseBackoff:       defaultBaseBackoff,
		perPage:           100,
		sleep:             sleepContext,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := o.validate(); err != nil {
		return nil, err
	}

	base := o.httpClient
	if base == nil {
		base = newCachingRateLimitedClient()
	}
	httpClient := &http.Client{
		Transport: &bearerTransport{
			token: token,
			base:  &loggingTransport{base: transportOrDefault(base.Transport)},
		},
		CheckRedirect: base.CheckRedirect,
		Jar:           base.Jar,
		Timeout:       base.Timeout,
	}

	ghClient := gh.NewClient(httpClient)
	u, err := url.Parse(o.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	ghClient.BaseURL = u

	return &Client{
		exec: &executor{
			gh:                ghClient,
			httpClient:        httpClient,
			timeout:           o.requestTimeout,
			defaultRetryAfter: o.defaultRetryAfter,
			now:               o.now,
		},
		retry: &retrier{
			maxAttempts:       o.maxAttempts,
			maxRateLimitWaits: o.maxRateLimitWaits,
			baseBackoff:       o.baseBackoff,
			sleep:             o.sleep,
		},
		perPage: o.perPage,
	}, nil
}

func (o options) validate() error {
	switch {
	case o.maxAttempts < 1:
		return fmt.Errorf("max attempts must be at least 1, got %d", o.maxAttempts)
	case o.maxRateLimitWaits < 0:
		return fmt.Errorf("max rate limit waits must not be negative, got %d", o.maxRateLimitWaits)
	case o.requestTimeout <= 0:
		return fmt.Errorf("request timeout must be positive, got %s", o.requestTimeout)
	case o.perPage < 1 || o.perPage > 100:
		return fmt.Errorf("per page must be between 1 and 100, got %d", o.perPage)
	case o.sleep == nil || o.now == nil:
		return fmt.Errorf("sleep and clock functions must not be nil")
	}
	return nil
}

// newCachingRateLimitedClient builds the production HTTP client. The limiters
// only detect limits; waiting is left to the retrier.
func newCachingRateLimitedClient() *http.Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	return github_ratelimit.NewClient(cacheTransport,
		github_primary_ratelimit.WithBypassLimit(),
		github_secondary_ratelimit.WithSingleSleepLimit(0, nil),
	)
}

// get performs one logical GET: a single executor call wrapped in the retry policy.
func (c *Client) get(ctx context.Context, target string, params url.Values) (*Response, error) {
	return c.retry.Do(ctx, func(ctx context.Context) (*Response, error) {
		return c.exec.Execute(ctx, target, params)
	})
}

// splitRepo splits a "owner/repo" string into its two components.
func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}
