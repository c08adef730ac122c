package github

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/prcompliance/internal/domain/model"
)

// walkPages fetches every page of a listing and returns the concatenated
// elements in page order. The first request is endpoint+params; every further
// request uses the rel="next" cursor verbatim. It stops on an empty page or a
// missing next link. Any error discards what was fetched so far.
func walkPages[T any](ctx context.Context, c *Client, endpoint string, params url.Values) ([]T, error) {
	var all []T
	target, query := endpoint, params
	consumed := make(map[Cursor]bool)

	for page := 1; ; page++ {
		resp, err := c.get(ctx, target, query)
		if err != nil {
			return nil, fmt.Errorf("fetching page %d of %s: %w", page, endpoint, err)
		}

		var items []T
		if err := json.Unmarshal(resp.Body, &items); err != nil {
			return nil, fmt.Errorf("decoding page %d of %s: %w", page, endpoint,
				&InvalidResponseFormatError{URL: target, Reason: err.Error()})
		}

		slog.Debug("fetched page", "endpoint", endpoint, "page", page, "count", len(items))

		if len(items) == 0 {
			break
		}
		all = append(all, items...)

		next, ok := ParseNextLink(resp.Header.Get("Link"))
		if !ok {
			break
		}
		if consumed[next] {
			return nil, fmt.Errorf("paginating %s: next link %s was already followed", endpoint, next)
		}
		consumed[next] = true

		target, query = string(next), nil
	}

	return all, nil
}

// FetchMergedPullRequests lists every closed pull request of the repository and
// keeps the ones with a merge timestamp. The merged filter runs once, after the
// whole listing has been fetched.
func (c *Client) FetchMergedPullRequests(ctx context.Context, repoFullName string) ([]model.PullRequest, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("repos/%s/%s/pulls", url.PathEscape(owner), url.PathEscape(repo))
	params := url.Values{
		"state":    {"closed"},
		"per_page": {strconv.Itoa(c.perPage)},
	}

	raw, err := walkPages[json.RawMessage](ctx, c, endpoint, params)
	if err != nil {
		return nil, fmt.Errorf("listing closed pull requests for %s: %w", repoFullName, err)
	}
	slog.Info("fetched closed pull requests", "repo", repoFullName, "closed", len(raw))

	merged := make([]model.PullRequest, 0, len(raw))
	for i, item := range raw {
		var pr gh.PullRequest
		if err := json.Unmarshal(item, &pr); err != nil {
			return nil, fmt.Errorf("decoding pull request %d of %s: %w", i, repoFullName,
				&InvalidResponseFormatError{URL: endpoint, Reason: err.Error()})
		}

		mapped := mapPullRequest(&pr, item)
		if mapped.IsMerged() {
			merged = append(merged, mapped)
		}
	}

	slog.Info("filtered merged pull requests", "repo", repoFullName, "merged", len(merged))

	return merged, nil
}

// mapPullRequest converts a go-github PullRequest to a domain model PullRequest.
// It uses GetXxx() helper methods to avoid nil pointer panics.
func mapPullRequest(pr *gh.PullRequest, raw json.RawMessage) model.PullRequest {
	var mergedAt *time.Time
	if pr.MergedAt != nil {
		t := pr.GetMergedAt().UTC()
		mergedAt = &t
	}

	return model.PullRequest{
		Number:   pr.GetNumber(),
		Title:    pr.GetTitle(),
		Author:   pr.GetUser().GetLogin(),
		MergedAt: mergedAt,
		HeadSHA:  pr.GetHead().GetSHA(),
		URL:      pr.GetHTMLURL(),
		Raw:      raw,
	}
}
