package driven

import (
	"context"

	"github.com/ericfisherdev/prcompliance/internal/domain/model"
)

// ReportStore defines the driven port for archiving completed reports.
type ReportStore interface {
	Save(ctx context.Context, report model.Report) error
	// GetRecords returns the records of a stored run in report order.
	// Returns nil, nil if the run does not exist and an empty slice if it has no records.
	GetRecords(ctx context.Context, runID string) ([]model.ComplianceRecord, error)
	// ListRuns returns the most recent runs for a repository, newest first.
	ListRuns(ctx context.Context, repoFullName string, limit int) ([]model.ReportRun, error)
}
