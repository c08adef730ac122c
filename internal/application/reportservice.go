// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/prcompliance/internal/domain/model"
	"github.com/ericfisherdev/prcompliance/internal/domain/port/driven"
)

const defaultEnrichDelay = 100 * time.Millisecond

// ReportService builds the merged-PR compliance report for a repository:
// fetch, filter by merge date, enrich each PR sequentially, then hand the
// finished report to every writer and the optional archive.
type ReportService struct {
	source   driven.PullRequestSource
	enricher driven.Enricher
	writers  []driven.ReportWriter
	archive  driven.ReportStore

	dateRange      model.DateRange
	enrichDelay    time.Duration
	skipEnrichment bool
	sleep          func(ctx context.Context, d time.Duration) error
	now            func() time.Time
	newID          func() string
}

// ReportOption configures a ReportService.
type ReportOption func(*ReportService)

// WithDateRange limits the report to PRs merged inside r.
func WithDateRange(r model.DateRange) ReportOption {
	return func(s *ReportService) { s.dateRange = r }
}

// WithEnrichDelay sets the pause between enriching consecutive PRs.
func WithEnrichDelay(d time.Duration) ReportOption {
	return func(s *ReportService) { s.enrichDelay = d }
}

// WithSkipEnrichment records every PR as unknown without calling the enricher.
func WithSkipEnrichment(skip bool) ReportOption {
	return func(s *ReportService) { s.skipEnrichment = skip }
}

// WithArchive stores each completed report in store.
func WithArchive(store driven.ReportStore) ReportOption {
	return func(s *ReportService) { s.archive = store }
}

// WithSleep replaces the context-aware sleep used between enrichments.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ReportOption {
	return func(s *ReportService) { s.sleep = sleep }
}

// WithClock replaces the clock used to stamp reports.
func WithClock(now func() time.Time) ReportOption {
	return func(s *ReportService) { s.now = now }
}

// WithIDGenerator replaces the run ID generator.
func WithIDGenerator(newID func() string) ReportOption {
	return func(s *ReportService) { s.newID = newID }
}

// NewReportService creates a new ReportService. The enricher may be nil only
// when enrichment is skipped.
func NewReportService(
	source driven.PullRequestSource,
	enricher driven.Enricher,
	writers []driven.ReportWriter,
	opts ...ReportOption,
) *ReportService {
	s := &ReportService{
		source:      source,
		enricher:    enricher,
		writers:     writers,
		enrichDelay: defaultEnrichDelay,
		sleep:       sleepContext,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate runs one report for repoFullName. Outputs are written only after
// fetching and enrichment complete; any error before that leaves no files.
func (s *ReportService) Generate(ctx context.Context, repoFullName string) (*model.Report, error) {
	if s.enricher == nil && !s.skipEnrichment {
		return nil, errors.New("report service has no enricher and enrichment is not skipped")
	}

	prs, err := s.source.FetchMergedPullRequests(ctx, repoFullName)
	if err != nil {
		return nil, fmt.Errorf("fetching merged pull requests: %w", err)
	}

	prs = s.inRange(prs)
	slog.Info("enriching merged pull requests", "repo", repoFullName, "count", len(prs), "skip_enrichment", s.skipEnrichment)

	records, err := s.enrich(ctx, repoFullName, prs)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("generating report: %w", err)
	}

	report := model.Report{
		ID:           s.newID(),
		RepoFullName: repoFullName,
		GeneratedAt:  s.now().UTC(),
		Range:        s.dateRange,
		Records:      records,
		PullRequests: prs,
	}

	for _, w := range s.writers {
		if err := w.Write(ctx, report); err != nil {
			return nil, fmt.Errorf("writing %s report: %w", w.Name(), err)
		}
		slog.Debug("report written", "writer", w.Name())
	}

	if s.archive != nil {
		if err := s.archive.Save(ctx, report); err != nil {
			return nil, fmt.Errorf("archiving report %s: %w", report.ID, err)
		}
	}

	summary := report.Summary()
	slog.Info("report generated",
		"repo", repoFullName,
		"run_id", report.ID,
		"total", summary.Total,
		"approved", summary.Approved,
		"checks_passed", summary.ChecksPassed,
		"compliant", summary.Compliant,
		"unknown", summary.Unknown,
	)

	return &report, nil
}

func (s *ReportService) inRange(prs []model.PullRequest) []model.PullRequest {
	if s.dateRange.IsZero() {
		return prs
	}

	kept := make([]model.PullRequest, 0, len(prs))
	for _, pr := range prs {
		if pr.MergedAt != nil && s.dateRange.Contains(*pr.MergedAt) {
			kept = append(kept, pr)
		}
	}
	return kept
}

// enrich resolves approval and checks for each PR in listing order. The
// enricher never fails; only cancellation stops the loop.
func (s *ReportService) enrich(ctx context.Context, repoFullName string, prs []model.PullRequest) ([]model.ComplianceRecord, error) {
	records := make([]model.ComplianceRecord, 0, len(prs))

	for i, pr := range prs {
		if s.skipEnrichment {
			records = append(records, model.NewComplianceRecord(pr, model.ApprovalUnknown, model.ChecksUnknown))
			continue
		}

		if i > 0 && s.enrichDelay > 0 {
			if err := s.sleep(ctx, s.enrichDelay); err != nil {
				return nil, fmt.Errorf("enriching pull requests: %w", err)
			}
		}

		approval := s.enricher.ApprovalStatus(ctx, repoFullName, pr.Number)
		checks := s.enricher.ChecksStatus(ctx, repoFullName, pr.HeadSHA)

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("enriching pull request #%d: %w", pr.Number, err)
		}

		records = append(records, model.NewComplianceRecord(pr, approval, checks))
	}

	return records, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
