package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/ericfisherdev/prcompliance/internal/adapter/driven/github"
	reportadapter "github.com/ericfisherdev/prcompliance/internal/adapter/driven/report"
	sqliteadapter "github.com/ericfisherdev/prcompliance/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/prcompliance/internal/application"
	"github.com/ericfisherdev/prcompliance/internal/config"
	"github.com/ericfisherdev/prcompliance/internal/domain/model"
	"github.com/ericfisherdev/prcompliance/internal/domain/port/driven"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := flag.NewFlagSet("prcompliance", flag.ContinueOnError)
	configPath := flags.String("config", "", "path to YAML config file")
	envFile := flags.String("env-file", ".env", "path to .env file (ignored if missing)")
	showVersion := flags.Bool("version", false, "print version and exit")
	listRuns := flags.Int("list-runs", 0, "print the N most recent archived runs for the repository and exit")
	showRun := flags.String("show-run", "", "print the records of an archived run and exit")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	if *showVersion {
		fmt.Println("prcompliance", version)
		return nil
	}

	// 1. Load .env, then configuration (fail fast on missing token or repo).
	if err := loadEnvFile(*envFile); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	setupLogger(os.Stderr, cfg)
	slog.Info("config loaded",
		"repo", cfg.Repo,
		"api_url", cfg.APIURL,
		"output_dir", cfg.OutputDir,
		"db_path", cfg.DBPath,
		"skip_enrichment", cfg.SkipEnrichment,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *listRuns > 0 || *showRun != "" {
		return queryArchive(ctx, os.Stdout, cfg, *listRuns, *showRun)
	}

	// 3. Create GitHub client.
	ghClient, err := githubadapter.NewClient(cfg.GitHubToken,
		githubadapter.WithBaseURL(cfg.APIURL),
		githubadapter.WithMaxAttempts(cfg.MaxAttempts),
		githubadapter.WithMaxRateLimitWaits(cfg.MaxRateLimitWaits),
		githubadapter.WithRequestTimeout(cfg.RequestTimeout),
		githubadapter.WithDefaultRetryAfter(cfg.DefaultRetryAfter),
		githubadapter.WithPerPage(cfg.PerPage),
	)
	if err != nil {
		return err
	}

	// 4. Wire report writers.
	writers := []driven.ReportWriter{
		reportadapter.NewRawJSONWriter(cfg.OutputDir),
		reportadapter.NewCSVWriter(cfg.OutputDir),
	}
	if cfg.HTMLReport {
		writers = append(writers, reportadapter.NewHTMLWriter(cfg.OutputDir))
	}

	opts := []application.ReportOption{
		application.WithDateRange(model.DateRange{Since: cfg.MergedSince, Until: cfg.MergedUntil}),
		application.WithEnrichDelay(cfg.EnrichDelay),
		application.WithSkipEnrichment(cfg.SkipEnrichment),
	}

	// 5. Open the report archive (dual reader/writer with WAL mode, migrated on open).
	if cfg.ArchiveEnabled() {
		db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		slog.Info("report archive opened", "path", db.Path(), "schema_version", db.SchemaVersion())
		opts = append(opts, application.WithArchive(sqliteadapter.NewReportRepo(db)))
	}

	// 6. Generate the report.
	svc := application.NewReportService(ghClient, ghClient, writers, opts...)
	report, err := svc.Generate(ctx, cfg.Repo)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Warn("run interrupted, no outputs written")
		}
		return err
	}

	summary := report.Summary()
	slog.Info("prcompliance finished",
		"run_id", report.ID,
		"merged_prs", summary.Total,
		"compliant", summary.Compliant,
		"unknown", summary.Unknown,
	)
	return nil
}

// queryArchive prints archived runs or the records of one run.
func queryArchive(ctx context.Context, w io.Writer, cfg *config.Config, listRuns int, runID string) error {
	if !cfg.ArchiveEnabled() {
		return errors.New("report archive is disabled: set PRCOMPLIANCE_DB_PATH")
	}

	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	store := sqliteadapter.NewReportRepo(db)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	if runID != "" {
		records, err := store.GetRecords(ctx, runID)
		if err != nil {
			return err
		}
		if records == nil {
			return fmt.Errorf("run %s not found in %s", runID, cfg.DBPath)
		}
		fmt.Fprintln(tw, "PR\tAUTHOR\tMERGED\tAPPROVAL\tCHECKS\tTITLE")
		for _, rec := range records {
			merged := ""
			if rec.MergedAt != nil {
				merged = rec.MergedAt.UTC().Format(reportadapter.MergeDateLayout)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", rec.Number, rec.Author, merged, rec.Approval, rec.Checks, rec.Title)
		}
		return tw.Flush()
	}

	runs, err := store.ListRuns(ctx, cfg.Repo, listRuns)
	if err != nil {
		return err
	}
	fmt.Fprintln(tw, "RUN\tGENERATED\tTOTAL\tAPPROVED\tCHECKS PASSED\tCOMPLIANT\tUNKNOWN")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			run.ID, run.GeneratedAt.Format(reportadapter.MergeDateLayout),
			run.Summary.Total, run.Summary.Approved, run.Summary.ChecksPassed, run.Summary.Compliant, run.Summary.Unknown)
	}
	return tw.Flush()
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

func setupLogger(w io.Writer, cfg *config.Config) {
	handlerOpts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	slog.SetDefault(slog.New(handler))
}
