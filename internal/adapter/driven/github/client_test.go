package github_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ghAdapter "github.com/ericfisherdev/prcompliance/internal/adapter/driven/github"
	"github.com/ericfisherdev/prcompliance/internal/domain/model"
)

// sleepRecorder records requested waits instead of sleeping.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

// newTestClient creates a Client backed by the given httptest handler.
func newTestClient(t *testing.T, handler http.Handler) (*ghAdapter.Client, *httptest.Server, *sleepRecorder) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	rec := &sleepRecorder{}
	client, err := ghAdapter.NewClient("test-token",
		ghAdapter.WithHTTPClient(server.Client()),
		ghAdapter.WithBaseURL(server.URL+"/"),
		ghAdapter.WithSleep(rec.sleep),
		ghAdapter.WithRequestTimeout(5*time.Second),
	)
	require.NoError(t, err)

	return client, server, rec
}

// prJSON is a helper struct for building GitHub API pull request responses.
type prJSON struct {
	Number   int      `json:"number"`
	Title    string   `json:"title"`
	State    string   `json:"state"`
	HTMLURL  string   `json:"html_url"`
	User     userJSON `json:"user"`
	Head     refJSON  `json:"head"`
	MergedAt *string  `json:"merged_at"`
}

type userJSON struct {
	Login string `json:"login"`
}

type refJSON struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

func strPtr(s string) *string { return &s }

func mergedPR(number int) prJSON {
	return prJSON{
		Number:   number,
		Title:    fmt.Sprintf("PR %d", number),
		State:    "closed",
		HTMLURL:  fmt.Sprintf("https://github.com/owner/repo/pull/%d", number),
		User:     userJSON{Login: fmt.Sprintf("dev%d", number)},
		Head:     refJSON{Ref: "branch", SHA: fmt.Sprintf("%040d", number)},
		MergedAt: strPtr("2026-01-02T03:04:05Z"),
	}
}

func closedPR(number int) prJSON {
	pr := mergedPR(number)
	pr.MergedAt = nil
	return pr
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

// pagedHandler serves pages[i] for ?page=i+1 and links each page to the next.
func pagedHandler(t *testing.T, pages [][]prJSON, queries *[]string) http.HandlerFunc {
	var mu sync.Mutex
	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		*queries = append(*queries, r.URL.RawQuery)
		mu.Unlock()

		page := 1
		if p := r.URL.Query().Get("page"); p != "" {
			_, err := fmt.Sscanf(p, "%d", &page)
			require.NoError(t, err)
		}

		if page < len(pages) {
			w.Header().Set("Link", fmt.Sprintf(
				`<http://%s%s?state=closed&per_page=100&page=%d>; rel="next", <http://%s%s?state=closed&per_page=100&page=%d>; rel="last"`,
				r.Host, r.URL.Path, page+1, r.Host, r.URL.Path, len(pages)))
		}
		writeJSON(t, w, pages[page-1])
	}
}

func TestFetchMergedPullRequests_SinglePage(t *testing.T) {
	var queries []string
	client, _, _ := newTestClient(t, pagedHandler(t, [][]prJSON{{mergedPR(42), closedPR(43), mergedPR(44)}}, &queries))

	result, err := client.FetchMergedPullRequests(context.Background(), "owner/repo")

	require.NoError(t, err)
	require.Len(t, result, 2)

	assert.Equal(t, 42, result[0].Number)
	assert.Equal(t, "PR 42", result[0].Title)
	assert.Equal(t, "dev42", result[0].Author)
	assert.Equal(t, fmt.Sprintf("%040d", 42), result[0].HeadSHA)
	assert.Equal(t, "https://github.com/owner/repo/pull/42", result[0].URL)
	require.NotNil(t, result[0].MergedAt)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), *result[0].MergedAt)
	assert.Contains(t, string(result[0].Raw), `"number":42`)

	assert.Equal(t, 44, result[1].Number)

	require.Len(t, queries, 1)
	assert.Equal(t, "per_page=100&state=closed", queries[0])
}

func TestFetchMergedPullRequests_Pagination(t *testing.T) {
	pages := [][]prJSON{
		{mergedPR(1), closedPR(2)},
		{mergedPR(3)},
		{closedPR(4), mergedPR(5), mergedPR(6)},
	}
	var queries []string
	client, _, _ := newTestClient(t, pagedHandler(t, pages, &queries))

	result, err := client.FetchMergedPullRequests(context.Background(), "owner/repo")

	require.NoError(t, err)

	numbers := make([]int, 0, len(result))
	for _, pr := range result {
		numbers = append(numbers, pr.Number)
		assert.True(t, pr.IsMerged())
	}
	assert.Equal(t, []int{1, 3, 5, 6}, numbers)

	// Cursor URLs are followed verbatim, without re-applying the initial params.
	assert.Equal(t, []string{
		"per_page=100&state=closed",
		"state=closed&per_page=100&page=2",
		"state=closed&per_page=100&page=3",
	}, queries)
}

func TestFetchMergedPullRequests_StopsOnEmptyPage(t *testing.T) {
	var calls int32
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		// Every page advertises a next link, but the second one is empty.
		w.Header().Set("Link", fmt.Sprintf(`<http://%s%s?page=%d>; rel="next"`, r.Host, r.URL.Path, atomic.LoadInt32(&calls)+1))
		if r.URL.Query().Get("page") == "" {
			writeJSON(t, w, []prJSON{mergedPR(1)})
			return
		}
		writeJSON(t, w, []prJSON{})
	}))

	result, err := client.FetchMergedPullRequests(context.Background(), "owner/repo")

	require.NoError(t, err)
	assert.Len(t, result, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchMergedPullRequests_ErrorDiscardsPartialResults(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "" {
			w.Header().Set("Link", fmt.Sprintf(`<http://%s%s?page=2>; rel="next"`, r.Host, r.URL.Path))
			writeJSON(t, w, []prJSON{mergedPR(1)})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"message":"upstream"}`))
	}))

	result, err := client.FetchMergedPullRequests(context.Background(), "owner/repo")

	assert.Nil(t, result)
	var httpErr *ghAdapter.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.Contains(t, err.Error(), "page 2")
}

func TestFetchMergedPullRequests_InvalidContentTypeIsFatal(t *testing.T) {
	var calls int32
	client, _, rec := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html></html>`))
	}))

	_, err := client.FetchMergedPullRequests(context.Background(), "owner/repo")

	var formatErr *ghAdapter.InvalidResponseFormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, rec.waits)
}

func TestFetchMergedPullRequests_NonListBodyIsInvalidFormat(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]string{"message": "not a list"})
	}))

	_, err := client.FetchMergedPullRequests(context.Background(), "owner/repo")

	var formatErr *ghAdapter.InvalidResponseFormatError
	require.ErrorAs(t, err, &formatErr)
}

func TestFetchMergedPullRequests_CursorNeverReused(t *testing.T) {
	var calls int32
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		// The server keeps pointing at the same next page.
		w.Header().Set("Link", fmt.Sprintf(`<http://%s%s?page=2>; rel="next"`, r.Host, r.URL.Path))
		writeJSON(t, w, []prJSON{mergedPR(1)})
	}))

	_, err := client.FetchMergedPullRequests(context.Background(), "owner/repo")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "already followed")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchMergedPullRequests_RateLimitedPageIsRetried(t *testing.T) {
	var calls int32
	client, _, rec := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(t, w, []prJSON{mergedPR(7)})
	}))

	result, err := client.FetchMergedPullRequests(context.Background(), "owner/repo")

	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, 7, result[0].Number)
	assert.Equal(t, []time.Duration{2 * time.Second}, rec.waits)
}

func TestFetchMergedPullRequests_InvalidRepoName(t *testing.T) {
	client, _, _ := newTestClient(t, http.NotFoundHandler())

	_, err := client.FetchMergedPullRequests(context.Background(), "no-slash")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected owner/repo")
}

type reviewJSON struct {
	State string   `json:"state"`
	User  userJSON `json:"user"`
}

func TestApprovalStatus(t *testing.T) {
	tests := []struct {
		name    string
		reviews []reviewJSON
		want    model.ApprovalStatus
	}{
		{
			name:    "approved after changes requested",
			reviews: []reviewJSON{{State: "CHANGES_REQUESTED"}, {State: "APPROVED", User: userJSON{Login: "alice"}}},
			want:    model.ApprovalApproved,
		},
		{
			name:    "only changes requested",
			reviews: []reviewJSON{{State: "CHANGES_REQUESTED"}},
			want:    model.ApprovalNotApproved,
		},
		{
			name:    "no reviews",
			reviews: []reviewJSON{},
			want:    model.ApprovalNotApproved,
		},
		{
			name:    "comments and dismissed",
			reviews: []reviewJSON{{State: "COMMENTED"}, {State: "DISMISSED"}},
			want:    model.ApprovalNotApproved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var path string
			client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				path = r.URL.Path
				writeJSON(t, w, tt.reviews)
			}))

			got := client.ApprovalStatus(context.Background(), "owner/repo", 12)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, "/repos/owner/repo/pulls/12/reviews", path)
		})
	}
}

func TestApprovalStatus_ReviewsSpanPages(t *testing.T) {
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "" {
			w.Header().Set("Link", fmt.Sprintf(`<http://%s%s?per_page=100&page=2>; rel="next"`, r.Host, r.URL.Path))
			writeJSON(t, w, []reviewJSON{{State: "COMMENTED"}})
			return
		}
		writeJSON(t, w, []reviewJSON{{State: "APPROVED"}})
	}))

	assert.Equal(t, model.ApprovalApproved, client.ApprovalStatus(context.Background(), "owner/repo", 3))
}

func TestApprovalStatus_FailuresAreUnknown(t *testing.T) {
	t.Run("network failure", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		baseURL := server.URL + "/"
		server.Close()

		rec := &sleepRecorder{}
		client, err := ghAdapter.NewClient("test-token",
			ghAdapter.WithBaseURL(baseURL),
			ghAdapter.WithHTTPClient(&http.Client{}),
			ghAdapter.WithSleep(rec.sleep),
		)
		require.NoError(t, err)

		assert.Equal(t, model.ApprovalUnknown, client.ApprovalStatus(context.Background(), "owner/repo", 1))
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.waits)
	})

	t.Run("not found", func(t *testing.T) {
		client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		assert.Equal(t, model.ApprovalUnknown, client.ApprovalStatus(context.Background(), "owner/repo", 1))
	})

	t.Run("malformed body", func(t *testing.T) {
		client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"state":`))
		}))

		assert.Equal(t, model.ApprovalUnknown, client.ApprovalStatus(context.Background(), "owner/repo", 1))
	})
}

func TestChecksStatus(t *testing.T) {
	tests := []struct {
		name  string
		state string
		want  model.ChecksStatus
	}{
		{name: "success", state: "success", want: model.ChecksPassed},
		{name: "failure", state: "failure", want: model.ChecksFailed},
		{name: "pending", state: "pending", want: model.ChecksFailed},
		{name: "error", state: "error", want: model.ChecksFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var path string
			client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				path = r.URL.Path
				writeJSON(t, w, map[string]any{"state": tt.state, "statuses": []any{}})
			}))

			got := client.ChecksStatus(context.Background(), "owner/repo", "abc123def456")

			assert.Equal(t, tt.want, got)
			assert.Equal(t, "/repos/owner/repo/commits/abc123def456/status", path)
		})
	}
}

func TestChecksStatus_FailuresAreUnknown(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))

		assert.Equal(t, model.ChecksUnknown, client.ChecksStatus(context.Background(), "owner/repo", "abc"))
	})

	t.Run("empty sha", func(t *testing.T) {
		var calls int32
		client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
		}))

		assert.Equal(t, model.ChecksUnknown, client.ChecksStatus(context.Background(), "owner/repo", ""))
		assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	})
}

// newProductionTransportClient creates a Client on the default caching,
// rate-limit-aware transport instead of the test server's client.
func newProductionTransportClient(t *testing.T, handler http.Handler, opts ...ghAdapter.Option) (*ghAdapter.Client, *sleepRecorder) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	rec := &sleepRecorder{}
	opts = append([]ghAdapter.Option{
		ghAdapter.WithBaseURL(server.URL + "/"),
		ghAdapter.WithSleep(rec.sleep),
		ghAdapter.WithRequestTimeout(5 * time.Second),
	}, opts...)

	client, err := ghAdapter.NewClient("test-token", opts...)
	require.NoError(t, err)

	return client, rec
}

func TestChecksStatus_PrimaryRateLimitOnDefaultTransport(t *testing.T) {
	var calls int32
	client, rec := newProductionTransportClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Resource", "core")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"message":"API rate limit exceeded"}`))
			return
		}
		writeJSON(t, w, map[string]any{"state": "success", "statuses": []any{}})
	}))

	got := client.ChecksStatus(context.Background(), "owner/repo", "abc123")

	assert.Equal(t, model.ChecksPassed, got)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{2 * time.Second}, rec.waits)
}

func TestChecksStatus_PrimaryRateLimitWaitsUntilReset(t *testing.T) {
	fixedNow := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var calls int32
	client, rec := newProductionTransportClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Resource", "core")
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(fixedNow.Add(time.Minute).Unix(), 10))
			w.WriteHeader(http.StatusForbidden)
			return
		}
		writeJSON(t, w, map[string]any{"state": "failure", "statuses": []any{}})
	}), ghAdapter.WithClock(func() time.Time { return fixedNow }))

	got := client.ChecksStatus(context.Background(), "owner/repo", "abc123")

	assert.Equal(t, model.ChecksFailed, got)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{time.Minute}, rec.waits)
}

func TestApprovalStatus_SecondaryRateLimitOnDefaultTransport(t *testing.T) {
	var calls int32
	client, rec := newProductionTransportClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "45")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"message":"You have exceeded a secondary rate limit. Please wait a few minutes before you try again.","documentation_url":"https://docs.github.com/rest/overview/rate-limits-for-the-rest-api#about-secondary-rate-limits"}`))
			return
		}
		writeJSON(t, w, []reviewJSON{{State: "APPROVED"}})
	}))

	start := time.Now()
	got := client.ApprovalStatus(context.Background(), "owner/repo", 3)

	assert.Equal(t, model.ApprovalApproved, got)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{45 * time.Second}, rec.waits)
	assert.Less(t, time.Since(start), 5*time.Second, "the transport must not sleep on its own")
}
