package github

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/prcompliance/internal/domain/model"
)

// ApprovalStatus reports whether any review on the pull request is APPROVED.
// Failures are logged and reported as model.ApprovalUnknown; they never abort
// the caller.
func (c *Client) ApprovalStatus(ctx context.Context, repoFullName string, prNumber int) model.ApprovalStatus {
	reviews, err := c.fetchReviews(ctx, repoFullName, prNumber)
	if err != nil {
		slog.Error("fetching reviews failed, approval unknown",
			"repo", repoFullName,
			"pr_number", prNumber,
			"error", err,
		)
		return model.ApprovalUnknown
	}

	for _, r := range reviews {
		if model.ReviewState(r.GetState()) == model.ReviewStateApproved {
			slog.Debug("pull request approved", "pr_number", prNumber, "reviewer", r.GetUser().GetLogin())
			return model.ApprovalApproved
		}
	}

	slog.Debug("pull request has no approving review", "pr_number", prNumber, "reviews", len(reviews))
	return model.ApprovalNotApproved
}

// ChecksStatus reports whether the combined commit status of sha is "success".
// Failures are logged and reported as model.ChecksUnknown.
func (c *Client) ChecksStatus(ctx context.Context, repoFullName string, sha string) model.ChecksStatus {
	state, err := c.fetchCombinedState(ctx, repoFullName, sha)
	if err != nil {
		slog.Error("fetching combined status failed, checks unknown",
			"repo", repoFullName,
			"commit", model.ShortSHA(sha),
			"error", err,
		)
		return model.ChecksUnknown
	}

	slog.Debug("combined commit status", "commit", model.ShortSHA(sha), "state", state)

	if state == model.CombinedStateSuccess {
		return model.ChecksPassed
	}
	return model.ChecksFailed
}

func (c *Client) fetchReviews(ctx context.Context, repoFullName string, prNumber int) ([]*gh.PullRequestReview, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("repos/%s/%s/pulls/%d/reviews", url.PathEscape(owner), url.PathEscape(repo), prNumber)
	params := url.Values{"per_page": {strconv.Itoa(c.perPage)}}

	reviews, err := walkPages[*gh.PullRequestReview](ctx, c, endpoint, params)
	if err != nil {
		return nil, fmt.Errorf("listing reviews for %s#%d: %w", repoFullName, prNumber, err)
	}

	return reviews, nil
}

func (c *Client) fetchCombinedState(ctx context.Context, repoFullName string, sha string) (string, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return "", err
	}
	if sha == "" {
		return "", fmt.Errorf("fetching combined status for %s: empty commit SHA", repoFullName)
	}

	endpoint := fmt.Sprintf("repos/%s/%s/commits/%s/status", url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(sha))

	resp, err := c.get(ctx, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("fetching combined status for %s@%s: %w", repoFullName, model.ShortSHA(sha), err)
	}

	var cs gh.CombinedStatus
	if err := json.Unmarshal(resp.Body, &cs); err != nil {
		return "", &InvalidResponseFormatError{URL: endpoint, Reason: err.Error()}
	}

	return cs.GetState(), nil
}
