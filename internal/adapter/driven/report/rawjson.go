package report

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/ericfisherdev/prcompliance/internal/domain/model"
	"github.com/ericfisherdev/prcompliance/internal/domain/port/driven"
)

var _ driven.ReportWriter = (*RawJSONWriter)(nil)

// RawJSONWriter writes the merged listing records exactly as GitHub returned
// them, as an indented JSON array.
type RawJSONWriter struct {
	path string
}

// NewRawJSONWriter creates a RawJSONWriter that writes under outputDir.
func NewRawJSONWriter(outputDir string) *RawJSONWriter {
	return &RawJSONWriter{path: filepath.Join(outputDir, RawSnapshotPath)}
}

func (w *RawJSONWriter) Name() string { return "raw-json" }

// Path returns the file the writer produces.
func (w *RawJSONWriter) Path() string { return w.path }

func (w *RawJSONWriter) Write(_ context.Context, report model.Report) error {
	raws := make([]json.RawMessage, 0, len(report.PullRequests))
	for _, pr := range report.PullRequests {
		if len(pr.Raw) == 0 {
			return fmt.Errorf("pull request #%d has no raw listing record", pr.Number)
		}
		raws = append(raws, pr.Raw)
	}

	data, err := json.MarshalIndent(raws, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding raw snapshot: %w", err)
	}

	return writeFile(w.path, append(data, '\n'))
}
