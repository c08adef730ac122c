package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/prcompliance/internal/domain/model"
	"github.com/ericfisherdev/prcompliance/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ReportStore = (*ReportRepo)(nil)

// ReportRepo is the SQLite implementation of the ReportStore port interface.
type ReportRepo struct {
	db *DB
}

// NewReportRepo creates a new ReportRepo backed by the given DB.
func NewReportRepo(db *DB) *ReportRepo {
	return &ReportRepo{db: db}
}

// Save stores the run summary and every record in a single transaction.
func (r *ReportRepo) Save(ctx context.Context, report model.Report) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op.

	summary := report.Summary()

	const runQuery = `
		INSERT INTO report_runs (id, repo_full_name, generated_at, merged_since, merged_until,
			total, approved, checks_passed, compliant, unknown)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, runQuery,
		report.ID, report.RepoFullName, formatTime(report.GeneratedAt),
		nullableTime(report.Range.Since), nullableTime(report.Range.Until),
		summary.Total, summary.Approved, summary.ChecksPassed, summary.Compliant, summary.Unknown,
	); err != nil {
		return fmt.Errorf("insert report run %s: %w", report.ID, err)
	}

	const recordQuery = `
		INSERT INTO report_records (run_id, position, pr_number, title, author, merged_at, head_sha, approval, checks)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i, rec := range report.Records {
		if _, err := tx.ExecContext(ctx, recordQuery,
			report.ID, i, rec.Number, rec.Title, rec.Author,
			nullableTime(rec.MergedAt), rec.HeadSHA, string(rec.Approval), string(rec.Checks),
		); err != nil {
			return fmt.Errorf("insert record for PR #%d: %w", rec.Number, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit report run %s: %w", report.ID, err)
	}

	return nil
}

// GetRecords returns the records of a stored run in report order.
// Returns nil, nil if the run does not exist and an empty slice if it has no records.
func (r *ReportRepo) GetRecords(ctx context.Context, runID string) ([]model.ComplianceRecord, error) {
	var exists int
	err := r.db.Reader.QueryRowContext(ctx, `SELECT 1 FROM report_runs WHERE id = ?`, runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up run %s: %w", runID, err)
	}

	const query = `
		SELECT pr_number, title, author, merged_at, head_sha, approval, checks
		FROM report_records
		WHERE run_id = ?
		ORDER BY position
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query records for run %s: %w", runID, err)
	}
	defer rows.Close()

	records := []model.ComplianceRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return records, nil
}

// ListRuns returns up to limit runs for the repository, newest first.
func (r *ReportRepo) ListRuns(ctx context.Context, repoFullName string, limit int) ([]model.ReportRun, error) {
	const query = `
		SELECT id, repo_full_name, generated_at, total, approved, checks_passed, compliant, unknown
		FROM report_runs
		WHERE repo_full_name = ?
		ORDER BY generated_at DESC
		LIMIT ?
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, repoFullName, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs for %s: %w", repoFullName, err)
	}
	defer rows.Close()

	var runs []model.ReportRun
	for rows.Next() {
		var run model.ReportRun
		var generatedAt string

		if err := rows.Scan(
			&run.ID, &run.RepoFullName, &generatedAt,
			&run.Summary.Total, &run.Summary.Approved, &run.Summary.ChecksPassed,
			&run.Summary.Compliant, &run.Summary.Unknown,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}

		run.GeneratedAt, err = parseTime(generatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse generated_at: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*model.ComplianceRecord, error) {
	var rec model.ComplianceRecord
	var mergedAt sql.NullString
	var approval, checks string

	err := s.Scan(&rec.Number, &rec.Title, &rec.Author, &mergedAt, &rec.HeadSHA, &approval, &checks)
	if err != nil {
		return nil, err
	}

	rec.Approval = model.ApprovalStatus(approval)
	rec.Checks = model.ChecksStatus(checks)

	if mergedAt.Valid {
		t, err := parseTime(mergedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse merged_at: %w", err)
		}
		rec.MergedAt = &t
	}

	return &rec, nil
}

// Timestamps are stored as fixed-width UTC RFC 3339 text so ORDER BY sorts chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{timeLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format: %q", s)
}
