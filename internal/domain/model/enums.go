package model

// ApprovalStatus is the code-review outcome recorded for a merged pull request.
type ApprovalStatus string

const (
	ApprovalApproved    ApprovalStatus = "approved"
	ApprovalNotApproved ApprovalStatus = "not_approved"
	ApprovalUnknown     ApprovalStatus = "unknown" // Lookup failed or enrichment was skipped.
)

// ChecksStatus is the combined commit-status outcome of a pull request's head commit.
type ChecksStatus string

const (
	ChecksPassed  ChecksStatus = "passed"
	ChecksFailed  ChecksStatus = "failed" // Any combined state other than "success".
	ChecksUnknown ChecksStatus = "unknown"
)

// ReviewState represents the state of a submitted review as reported by GitHub.
type ReviewState string

const (
	ReviewStateApproved         ReviewState = "APPROVED"
	ReviewStateChangesRequested ReviewState = "CHANGES_REQUESTED"
	ReviewStateCommented        ReviewState = "COMMENTED"
	ReviewStatePending          ReviewState = "PENDING"
	ReviewStateDismissed        ReviewState = "DISMISSED"
)

// CombinedStateSuccess is the only combined commit state counted as passing.
const CombinedStateSuccess = "success"

// Flag renders a tri-state value the way the CSV report expects it.
func (s ApprovalStatus) Flag() string {
	switch s {
	case ApprovalApproved:
		return "true"
	case ApprovalNotApproved:
		return "false"
	default:
		return "unknown"
	}
}

// Flag renders a tri-state value the way the CSV report expects it.
func (s ChecksStatus) Flag() string {
	switch s {
	case ChecksPassed:
		return "true"
	case ChecksFailed:
		return "false"
	default:
		return "unknown"
	}
}
