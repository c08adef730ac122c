package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/ericfisherdev/prcompliance/internal/domain/model"
	"github.com/ericfisherdev/prcompliance/internal/domain/port/driven"
)

var _ driven.ReportWriter = (*CSVWriter)(nil)

// MergeDateLayout is the merge_date column format. Times are rendered in UTC.
const MergeDateLayout = "2006-01-02 15:04:05"

var csvHeader = []string{"pr_number", "pr_title", "author", "merge_date", "head_sha", "CR_Passed", "CHECK_PASSED"}

// CSVWriter writes one row per compliance record.
type CSVWriter struct {
	path string
}

// NewCSVWriter creates a CSVWriter that writes under outputDir.
func NewCSVWriter(outputDir string) *CSVWriter {
	return &CSVWriter{path: filepath.Join(outputDir, CSVReportPath)}
}

func (w *CSVWriter) Name() string { return "csv" }

// Path returns the file the writer produces.
func (w *CSVWriter) Path() string { return w.path }

func (w *CSVWriter) Write(_ context.Context, report model.Report) error {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	for _, rec := range report.Records {
		row := []string{
			strconv.Itoa(rec.Number),
			rec.Title,
			rec.Author,
			formatMergeDate(rec),
			rec.HeadSHA,
			rec.Approval.Flag(),
			rec.Checks.Flag(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row for PR #%d: %w", rec.Number, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}

	return writeFile(w.path, buf.Bytes())
}

func formatMergeDate(rec model.ComplianceRecord) string {
	if rec.MergedAt == nil {
		return ""
	}
	return rec.MergedAt.UTC().Format(MergeDateLayout)
}
