// Command sentinel runs the education-sector threat intelligence pipeline:
// phase 1 ingests incidents from the configured sources, phase 2 enriches
// them through the LLM gateway, and the scheduler keeps both running.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/eduthreat/sentinel/pkg/config"
	"github.com/eduthreat/sentinel/pkg/dedup"
	"github.com/eduthreat/sentinel/pkg/enrich"
	"github.com/eduthreat/sentinel/pkg/extract"
	"github.com/eduthreat/sentinel/pkg/fetch"
	"github.com/eduthreat/sentinel/pkg/ingest"
	"github.com/eduthreat/sentinel/pkg/llm"
	"github.com/eduthreat/sentinel/pkg/metrics"
	"github.com/eduthreat/sentinel/pkg/schedule"
	"github.com/eduthreat/sentinel/pkg/store"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

const usage = `Usage: sentinel <command> [flags]

Commands:
  phase1      run ingestion once
  phase2      run enrichment once
  scheduler   start the recurring job loop, or run a single job
`

// Run is the entrypoint, split out for testing. Exit codes: 0 success,
// 1 runtime failure, 2 argument error.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}

	switch args[1] {
	case "phase1":
		return runPhase1(args[2:], stdout, stderr)
	case "phase2":
		return runPhase2(args[2:], stdout, stderr)
	case "scheduler":
		return runScheduler(args[2:], stdout, stderr)
	case "help", "-h", "--help":
		_, _ = fmt.Fprint(stdout, usage)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", args[1])
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
}

// env assembles the shared runtime pieces every command needs.
type env struct {
	cfg     *config.Config
	catalog *config.Catalog
	store   *store.Store
	fetcher *fetch.Fetcher
	reg     *metrics.Registry
	logger  *slog.Logger
}

func setup(stderr io.Writer) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := setupLogging(cfg, stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	cat, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.StorePath())
	if err != nil {
		return nil, err
	}
	browser := fetch.NewChromeBrowser(cfg.HTTPTimeout * 2)
	return &env{
		cfg:     cfg,
		catalog: cat,
		store:   st,
		fetcher: fetch.New(cfg.HTTPTimeout, browser),
		reg:     metrics.NewRegistry(),
		logger:  logger,
	}, nil
}

func (e *env) close() {
	e.reg.LogSummary(e.logger)
	if err := e.store.Close(); err != nil {
		e.logger.Error("close store", "error", err)
	}
}

func setupLogging(cfg *config.Config, stderr io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	out := stderr
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(stderr, f)
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), nil
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runPhase1(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("phase1", flag.ContinueOnError)
	fs.SetOutput(stderr)
	full := fs.Bool("full-historical", false, "walk full archives instead of resuming from watermarks")
	sourceList := fs.String("sources", "", "comma-separated source names (default: all enabled)")
	maxPages := fs.Int("max-pages", 0, "cap paginated walks at N pages")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	e, err := setup(stderr)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "setup:", err)
		return 1
	}
	defer e.close()

	ctx, cancel := signalContext()
	defer cancel()

	opts := ingest.Options{
		Incremental: !*full,
		MaxPages:    *maxPages,
		Sources:     splitList(*sourceList),
	}
	o := ingest.New(e.catalog, e.fetcher, e.store, e.reg)
	sum, err := o.IngestAll(ctx, opts)
	if err != nil {
		e.logger.Error("ingestion failed", "error", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "ingestion complete: %d sources, %d inserted, %d skipped, %d errors\n",
		sum.Sources, sum.Inserted, sum.Skipped, sum.Errors)
	return 0
}

func runPhase2(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("phase2", flag.ContinueOnError)
	fs.SetOutput(stderr)
	limit := fs.Int("limit", 0, "enrich at most N incidents (default: config batch size)")
	skipNonEdu := fs.Bool("skip-non-education", false, "mark incidents the model classifies as non-education as skipped")
	rateDelay := fs.Duration("rate-limit-delay", 0, "pause between LLM calls (default: config)")
	runDedup := fs.Bool("dedup", false, "run the duplicate sweep after enrichment")
	dedupDry := fs.Bool("dedup-dry-run", false, "report duplicate groups without deleting anything")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	e, err := setup(stderr)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "setup:", err)
		return 1
	}
	defer e.close()

	if err := e.cfg.RequireLLM(); err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	batch := *limit
	if batch <= 0 {
		batch = e.cfg.EnrichBatchSize
	}
	pipeline := buildPipeline(e, *skipNonEdu, *rateDelay)
	sum, err := pipeline.Run(ctx, batch)
	if err != nil {
		if errors.Is(err, llm.ErrRateLimited) {
			e.logger.Error("enrichment aborted: LLM rate limited", "processed", sum.Processed)
		} else {
			e.logger.Error("enrichment failed", "error", err)
		}
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "enrichment complete: %d processed, %d enriched, %d skipped, %d failed\n",
		sum.Processed, sum.Enriched, sum.Skipped, sum.Failed)

	if *runDedup || *dedupDry {
		d := dedup.New(e.store, e.reg)
		d.DryRun = *dedupDry
		res, err := d.Run(ctx)
		if err != nil {
			e.logger.Error("dedup failed", "error", err)
			return 1
		}
		if d.DryRun {
			_, _ = fmt.Fprintf(stdout, "dedup dry run: %d groups, %d would be removed\n", res.Groups, res.Removed)
		} else {
			_, _ = fmt.Fprintf(stdout, "dedup complete: %d groups, %d removed\n", res.Groups, res.Removed)
		}
	}
	return 0
}

func runScheduler(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("scheduler", flag.ContinueOnError)
	fs.SetOutput(stderr)
	mode := fs.String("mode", "scheduler", "scheduler | historical | rss-once | weekly-once | enrich-once")
	rssInterval := fs.Int("rss-interval", 2, "hours between RSS runs")
	weeklyDay := fs.String("weekly-day", "sunday", "weekday of the full sweep")
	weeklyTime := fs.String("weekly-time", "03:00", "HH:MM of the full sweep")
	noEnrich := fs.Bool("no-enrichment", false, "ingest only, never enrich")
	initialRSS := fs.Bool("run-initial-rss", false, "run the RSS job immediately on start")
	initialWeekly := fs.Bool("run-initial-weekly", false, "run the weekly job immediately on start")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	day, ok := parseWeekday(*weeklyDay)
	if !ok {
		_, _ = fmt.Fprintf(stderr, "invalid --weekly-day %q\n", *weeklyDay)
		return 2
	}
	if !validClockTime(*weeklyTime) {
		_, _ = fmt.Fprintf(stderr, "invalid --weekly-time %q, want HH:MM\n", *weeklyTime)
		return 2
	}

	e, err := setup(stderr)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "setup:", err)
		return 1
	}
	defer e.close()

	if !*noEnrich {
		if err := e.cfg.RequireLLM(); err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	orchestrator := ingest.New(e.catalog, e.fetcher, e.store, e.reg)
	pipeline := buildPipeline(e, true, 0)
	deduper := dedup.New(e.store, e.reg)
	sched := schedule.New(orchestrator, pipeline, deduper, e.reg, schedule.Config{
		RSSInterval:  time.Duration(*rssInterval) * time.Hour,
		WeeklyDay:    day,
		WeeklyTime:   *weeklyTime,
		BatchSize:    e.cfg.EnrichBatchSize,
		NoEnrichment: *noEnrich,
	})

	switch *mode {
	case "scheduler":
		if *initialRSS {
			_ = sched.Trigger(schedule.JobRSS)
		}
		if *initialWeekly {
			_ = sched.Trigger(schedule.JobWeekly)
		}
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return 1
		}
		return 0
	case "historical":
		sum, err := orchestrator.IngestAll(ctx, ingest.Options{})
		if err != nil {
			e.logger.Error("historical ingestion failed", "error", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "historical ingestion complete: %d inserted\n", sum.Inserted)
		if *noEnrich {
			return 0
		}
		return runOnce(ctx, sched, schedule.JobEnrich, stderr)
	case "rss-once":
		return runOnce(ctx, sched, schedule.JobRSS, stderr)
	case "weekly-once":
		return runOnce(ctx, sched, schedule.JobWeekly, stderr)
	case "enrich-once":
		return runOnce(ctx, sched, schedule.JobEnrich, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown --mode %q\n", *mode)
		return 2
	}
}

func runOnce(ctx context.Context, sched *schedule.Scheduler, job string, stderr io.Writer) int {
	if err := sched.RunJob(ctx, job); err != nil {
		_, _ = fmt.Fprintf(stderr, "job %s failed: %v\n", job, err)
		return 1
	}
	return 0
}

func buildPipeline(e *env, skipNonEdu bool, rateDelay time.Duration) *enrich.Pipeline {
	if rateDelay <= 0 {
		rateDelay = e.cfg.EnrichRateLimitDelay
	}
	client := llm.NewOpenAIClient(e.cfg.LLMHost, e.cfg.LLMAPIKey, e.cfg.LLMModel)
	gateway := llm.NewGateway(client, e.cfg.EnrichMaxRetries)
	enricher := enrich.New(gateway, e.store, e.reg, enrich.Options{
		SkipIfNotEducation: skipNonEdu,
		RateLimitDelay:     rateDelay,
	})
	return enrich.NewPipeline(e.store, extract.New(e.fetcher), enricher, e.reg)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseWeekday(s string) (time.Weekday, bool) {
	days := map[string]time.Weekday{
		"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
		"wednesday": time.Wednesday, "thursday": time.Thursday,
		"friday": time.Friday, "saturday": time.Saturday,
	}
	d, ok := days[strings.ToLower(strings.TrimSpace(s))]
	return d, ok
}

func validClockTime(s string) bool {
	_, err := time.Parse("15:04", s)
	return err == nil
}
