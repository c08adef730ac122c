package driven

import (
	"context"

	"github.com/ericfisherdev/prcompliance/internal/domain/model"
)

// PullRequestSource fetches the merged pull requests of a repository.
// Implementations must return all-or-nothing: a failure on any page discards
// whatever was already fetched.
type PullRequestSource interface {
	FetchMergedPullRequests(ctx context.Context, repoFullName string) ([]model.PullRequest, error)
}

// Enricher resolves the per-PR review and check outcomes. Lookups never fail;
// problems are reported as the unknown sentinel of each status type.
type Enricher interface {
	ApprovalStatus(ctx context.Context, repoFullName string, prNumber int) model.ApprovalStatus
	ChecksStatus(ctx context.Context, repoFullName string, sha string) model.ChecksStatus
}

// GitHubClient defines the driven port for the read-only GitHub API access the
// compliance report needs.
type GitHubClient interface {
	PullRequestSource
	Enricher
}
