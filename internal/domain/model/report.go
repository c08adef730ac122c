package model

import "time"

// Report is the outcome of one compliance run over a single repository.
type Report struct {
	ID           string // UUID assigned when the run starts.
	RepoFullName string
	GeneratedAt  time.Time
	Range        DateRange
	Records      []ComplianceRecord

	// PullRequests holds the merged listing records the report was built from.
	PullRequests []PullRequest
}

// ReportSummary aggregates the per-record statuses of a report.
type ReportSummary struct {
	Total        int
	Approved     int
	ChecksPassed int
	Compliant    int
	Unknown      int
}

// Summary counts records by status.
func (r Report) Summary() ReportSummary {
	s := ReportSummary{Total: len(r.Records)}
	for _, rec := range r.Records {
		if rec.Approval == ApprovalApproved {
			s.Approved++
		}
		if rec.Checks == ChecksPassed {
			s.ChecksPassed++
		}
		if rec.Compliant() {
			s.Compliant++
		}
		if rec.HasUnknown() {
			s.Unknown++
		}
	}
	return s
}

// ReportRun is the archived metadata of a completed report.
type ReportRun struct {
	ID           string
	RepoFullName string
	GeneratedAt  time.Time
	Summary      ReportSummary
}
