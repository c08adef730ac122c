package driven

import (
	"context"

	"github.com/ericfisherdev/prcompliance/internal/domain/model"
)

// ReportWriter renders a finished report to some output (CSV, JSON, HTML).
type ReportWriter interface {
	// Name identifies the writer in logs.
	Name() string
	Write(ctx context.Context, report model.Report) error
}
