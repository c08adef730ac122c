package model

import (
	"encoding/json"
	"time"
)

// PullRequest is a closed pull request as returned by the repository listing.
type PullRequest struct {
	Number   int
	Title    string
	Author   string
	MergedAt *time.Time // nil when the pull request was closed without merging.
	HeadSHA  string
	URL      string

	// Raw is the listing element exactly as received; written to the raw snapshot.
	Raw json.RawMessage
}

// IsMerged reports whether the pull request carries a merge timestamp.
func (pr PullRequest) IsMerged() bool {
	return pr.MergedAt != nil
}

// ShortSHA returns the first seven characters of the head commit SHA.
func ShortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
