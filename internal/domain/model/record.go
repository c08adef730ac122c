package model

import "time"

// ComplianceRecord is one row of the compliance report. Records are built once
// from a merged PullRequest and its enrichment results and never modified.
type ComplianceRecord struct {
	Number   int
	Title    string
	Author   string
	MergedAt *time.Time
	HeadSHA  string
	Approval ApprovalStatus
	Checks   ChecksStatus
}

// NewComplianceRecord combines a merged pull request with its enrichment results.
func NewComplianceRecord(pr PullRequest, approval ApprovalStatus, checks ChecksStatus) ComplianceRecord {
	return ComplianceRecord{
		Number:   pr.Number,
		Title:    pr.Title,
		Author:   pr.Author,
		MergedAt: pr.MergedAt,
		HeadSHA:  pr.HeadSHA,
		Approval: approval,
		Checks:   checks,
	}
}

// Compliant returns true when the pull request was approved and its checks passed.
func (r ComplianceRecord) Compliant() bool {
	return r.Approval == ApprovalApproved && r.Checks == ChecksPassed
}

// HasUnknown returns true when either enrichment lookup could not be resolved.
func (r ComplianceRecord) HasUnknown() bool {
	return r.Approval == ApprovalUnknown || r.Checks == ChecksUnknown
}
