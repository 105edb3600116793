// Package schedule runs the recurring pipeline jobs: incremental RSS
// ingestion every few hours, a weekly full sweep of the curated and news
// sources, and the enrichment pass that follows both. One cooperative loop,
// one job at a time.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eduthreat/sentinel/pkg/dedup"
	"github.com/eduthreat/sentinel/pkg/enrich"
	"github.com/eduthreat/sentinel/pkg/ingest"
	"github.com/eduthreat/sentinel/pkg/metrics"
	"github.com/eduthreat/sentinel/pkg/model"
)

// tickInterval is how often the loop checks for due jobs.
const tickInterval = time.Minute

// Job names accepted by Trigger and RunJob.
const (
	JobRSS    = "rss"
	JobWeekly = "weekly"
	JobEnrich = "enrich"
)

// Clock abstracts time for the loop so tests can drive it.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Ingester runs one ingestion group. Implemented by ingest.Orchestrator.
type Ingester interface {
	IngestGroup(ctx context.Context, group model.Group, opts ingest.Options) (ingest.Summary, error)
}

// EnrichRunner runs one enrichment pass. Implemented by enrich.Pipeline.
type EnrichRunner interface {
	Run(ctx context.Context, batchSize int) (enrich.PassSummary, error)
}

// DedupRunner runs the duplicate sweep. Implemented by dedup.Deduper.
type DedupRunner interface {
	Run(ctx context.Context) (dedup.Result, error)
}

// Config tunes the recurring jobs.
type Config struct {
	RSSInterval time.Duration // default 2h
	WeeklyDay   time.Weekday  // default Sunday
	WeeklyTime  string        // "HH:MM", default "03:00"
	BatchSize   int           // enrichment batch, default 50
	// NoEnrichment skips the enrichment pass after ingestion jobs.
	NoEnrichment bool
}

func (c *Config) defaults() {
	if c.RSSInterval <= 0 {
		c.RSSInterval = 2 * time.Hour
	}
	if c.WeeklyTime == "" {
		c.WeeklyTime = "03:00"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
}

// Scheduler owns the cooperative job loop.
type Scheduler struct {
	clock    Clock
	ingester Ingester
	enricher EnrichRunner
	deduper  DedupRunner
	reg      *metrics.Registry
	logger   *slog.Logger
	cfg      Config

	mu         sync.Mutex
	active     string // name of the running job, "" when idle
	lastRSS    time.Time
	lastWeekly time.Time

	triggers chan string
}

func New(ing Ingester, enr EnrichRunner, ded DedupRunner, reg *metrics.Registry, cfg Config) *Scheduler {
	cfg.defaults()
	return &Scheduler{
		clock:    realClock{},
		ingester: ing,
		enricher: enr,
		deduper:  ded,
		reg:      reg,
		logger:   slog.Default().With("component", "schedule"),
		cfg:      cfg,
		triggers: make(chan string, 4),
	}
}

// SetClock replaces the wall clock. Call before Run.
func (s *Scheduler) SetClock(c Clock) { s.clock = c }

// Trigger queues a named job for immediate execution on the loop. Returns
// an error for unknown names; a full queue drops the request silently, the
// periodic schedule will catch up.
func (s *Scheduler) Trigger(name string) error {
	switch name {
	case JobRSS, JobWeekly, JobEnrich:
	default:
		return fmt.Errorf("unknown job %q", name)
	}
	select {
	case s.triggers <- name:
	default:
	}
	return nil
}

// Run drives the loop until the context is cancelled. Jobs are serialized:
// the loop is single-threaded and RunJob refuses reentry.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler starting",
		"rss_interval", s.cfg.RSSInterval.String(),
		"weekly", fmt.Sprintf("%s %s", s.cfg.WeeklyDay, s.cfg.WeeklyTime),
		"batch_size", s.cfg.BatchSize)

	// Slots that passed before startup are not owed a run; use the initial
	// trigger flags to force one.
	s.mu.Lock()
	if s.lastWeekly.IsZero() {
		s.lastWeekly = s.clock.Now()
	}
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return ctx.Err()
		case name := <-s.triggers:
			s.runDue(ctx, name)
		case <-s.clock.After(tickInterval):
			now := s.clock.Now()
			if s.weeklyDue(now) {
				s.runDue(ctx, JobWeekly)
			} else if s.rssDue(now) {
				s.runDue(ctx, JobRSS)
			}
		}
	}
}

func (s *Scheduler) rssDue(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRSS.IsZero() || now.Sub(s.lastRSS) >= s.cfg.RSSInterval
}

// weeklyDue reports whether the configured weekly slot has passed since the
// last weekly run. Ticks rarely land on the slot minute itself (a long job
// delays the next tick), so the check is catch-up tolerant: any tick at or
// after the slot fires the job once.
func (s *Scheduler) weeklyDue(now time.Time) bool {
	slot := s.lastWeeklySlot(now)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastWeekly.Before(slot)
}

// lastWeeklySlot returns the most recent configured weekday+time at or
// before now.
func (s *Scheduler) lastWeeklySlot(now time.Time) time.Time {
	hh, mm := parseClockTime(s.cfg.WeeklyTime)
	slot := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, now.Location())
	daysBack := (int(now.Weekday()) - int(s.cfg.WeeklyDay) + 7) % 7
	slot = slot.AddDate(0, 0, -daysBack)
	if slot.After(now) {
		slot = slot.AddDate(0, 0, -7)
	}
	return slot
}

func parseClockTime(hhmm string) (int, int) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 3, 0
	}
	return t.Hour(), t.Minute()
}

func (s *Scheduler) runDue(ctx context.Context, name string) {
	if err := s.RunJob(ctx, name); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.logger.Error("job failed", "job", name, "error", err)
	}
}

// RunJob executes one named job synchronously. Refuses to start while
// another job is running.
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	s.mu.Lock()
	if s.active != "" {
		s.mu.Unlock()
		return fmt.Errorf("job %s already running", s.active)
	}
	s.active = name
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.active = ""
		s.mu.Unlock()
	}()

	runID := uuid.NewString()
	labels := map[string]string{"job": name}
	logger := s.logger.With("job", name, "run_id", runID)
	logger.Info("job starting")
	started := s.clock.Now()

	var err error
	switch name {
	case JobRSS:
		err = s.runRSS(ctx, logger)
	case JobWeekly:
		err = s.runWeekly(ctx, logger)
	case JobEnrich:
		err = s.runEnrich(ctx, logger)
	default:
		err = fmt.Errorf("unknown job %q", name)
	}

	s.reg.Observe("job_seconds", labels, s.clock.Now().Sub(started).Seconds())
	if err != nil {
		s.reg.Inc("job_errors", labels)
		return err
	}
	s.reg.Inc("job_success", labels)
	logger.Info("job complete", "elapsed", s.clock.Now().Sub(started).Round(time.Millisecond).String())
	return nil
}

func (s *Scheduler) runRSS(ctx context.Context, logger *slog.Logger) error {
	s.mu.Lock()
	s.lastRSS = s.clock.Now()
	s.mu.Unlock()

	sum, err := s.ingester.IngestGroup(ctx, model.GroupRSS, ingest.Options{Incremental: true})
	s.reg.Add("job_incidents", map[string]string{"job": JobRSS}, float64(sum.Inserted))
	if err != nil {
		return err
	}
	logger.Info("rss ingestion done", "inserted", sum.Inserted, "skipped", sum.Skipped)
	return s.enrichAfterIngest(ctx, logger, sum.Inserted)
}

func (s *Scheduler) runWeekly(ctx context.Context, logger *slog.Logger) error {
	s.mu.Lock()
	s.lastWeekly = s.clock.Now()
	s.mu.Unlock()

	var total int
	for _, group := range []model.Group{model.GroupCurated, model.GroupNews} {
		sum, err := s.ingester.IngestGroup(ctx, group, ingest.Options{Incremental: true})
		total += sum.Inserted
		if err != nil {
			return err
		}
	}
	s.reg.Add("job_incidents", map[string]string{"job": JobWeekly}, float64(total))
	logger.Info("weekly ingestion done", "inserted", total)
	return s.enrichAfterIngest(ctx, logger, total)
}

func (s *Scheduler) enrichAfterIngest(ctx context.Context, logger *slog.Logger, inserted int) error {
	if s.cfg.NoEnrichment {
		return nil
	}
	if inserted == 0 {
		logger.Info("nothing new, skipping enrichment")
		return nil
	}
	return s.enrichPass(ctx, logger)
}

func (s *Scheduler) runEnrich(ctx context.Context, logger *slog.Logger) error {
	return s.enrichPass(ctx, logger)
}

// enrichPass runs one pipeline batch and, when it fully succeeds, the
// duplicate sweep over the enriched set.
func (s *Scheduler) enrichPass(ctx context.Context, logger *slog.Logger) error {
	sum, err := s.enricher.Run(ctx, s.cfg.BatchSize)
	s.reg.Add("job_incidents", map[string]string{"job": JobEnrich}, float64(sum.Processed))
	if err != nil {
		return fmt.Errorf("enrichment pass: %w", err)
	}
	logger.Info("enrichment done", "processed", sum.Processed,
		"enriched", sum.Enriched, "skipped", sum.Skipped, "failed", sum.Failed)

	if s.deduper != nil && sum.Enriched > 0 {
		res, err := s.deduper.Run(ctx)
		if err != nil {
			return fmt.Errorf("dedup pass: %w", err)
		}
		logger.Info("dedup done", "removed", res.Removed)
	}
	return nil
}
