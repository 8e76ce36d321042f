package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"clearskies/internal/holds"
	"clearskies/internal/types"
)

// SiteLister reads the sites to evaluate.
type SiteLister interface {
	ListActive(ctx context.Context) ([]types.Site, error)
}

// SiteRunner evaluates one site. *SiteEvaluator implements it.
type SiteRunner interface {
	Evaluate(ctx context.Context, site types.Site) (SiteResult, error)
}

// Authenticator performs the startup fleet login.
type Authenticator interface {
	Authenticate(ctx context.Context) (types.Session, error)
}

// Metrics receives scheduler instrumentation.
type Metrics interface {
	RecordCycle(report CycleReport)
	RecordSiteFailure(err error)
	RecordSiteSkipped()
}

type noopMetrics struct{}

func (noopMetrics) RecordCycle(CycleReport) {}
func (noopMetrics) RecordSiteFailure(error) {}
func (noopMetrics) RecordSiteSkipped() {}

// ErrAlreadyStarted is returned by Start when the timer loop is running.
var ErrAlreadyStarted = errors.New("scheduler already started")

// SchedulerConfig holds the configuration for creating a Scheduler.
type SchedulerConfig struct {
	Sites     SiteLister
	Evaluator SiteRunner
	// Auth is optional. When set, Start performs one login before the first cycle.
	Auth Authenticator

	// MaxConcurrentSites bounds per-cycle fan-out. Zero means unlimited.
	MaxConcurrentSites int

	Logger  *slog.Logger
	Clock   types.Clock
	Metrics Metrics
}

// Scheduler fires poll cycles. Timer-fired and manually triggered cycles may
// overlap; the persistence layer keeps per-site writes safe when they do.
// No cycle is ever cancelled once started.
type Scheduler struct {
	sites     SiteLister
	evaluator SiteRunner
	auth      Authenticator
	limit     int
	logger    *slog.Logger
	clock     types.Clock
	metrics   Metrics

	mu      sync.Mutex
	stop    chan struct{}
	loop    sync.WaitGroup
	running bool

	cycles sync.WaitGroup
}

// NewScheduler creates a Scheduler. It does nothing until Start or TriggerNow.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Scheduler{
		sites:     cfg.Sites,
		evaluator: cfg.Evaluator,
		auth:      cfg.Auth,
		limit:     cfg.MaxConcurrentSites,
		logger:    logger,
		clock:     clock,
		metrics:   metrics,
	}
}

// Start performs the authentication bootstrap and begins the timer loop. A
// failed bootstrap is logged; the session is retried lazily by the first
// cycle that needs it. Start returns once the loop is running.
//
// ctx supplies values for cycle contexts; its cancellation does not stop
// the scheduler. Use Stop.
func (s *Scheduler) Start(ctx context.Context, opts StartOptions) error {
	if opts.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", opts.Interval)
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.running = true
	stop := make(chan struct{})
	s.stop = stop
	s.loop.Add(1)
	s.mu.Unlock()

	base := context.WithoutCancel(ctx)

	s.logger.InfoContext(ctx, "scheduler starting",
		"interval", opts.Interval.String(),
		"run_immediately", opts.RunImmediately,
		"max_concurrent_sites", s.limit,
	)

	if s.auth != nil {
		if _, err := s.auth.Authenticate(base); err != nil {
			s.logger.ErrorContext(ctx, "initial fleet authentication failed, will retry on next poll",
				"error", err,
			)
		}
	}

	go s.run(base, opts, stop)
	return nil
}

func (s *Scheduler) run(ctx context.Context, opts StartOptions, stop <-chan struct{}) {
	defer s.loop.Done()

	if opts.RunImmediately {
		s.RunCycle(ctx, types.CycleTriggerStartup)
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			s.logger.InfoContext(ctx, "scheduler stopped")
			return
		case <-ticker.C:
			// Ticks that arrive while a timer cycle is running are dropped.
			s.RunCycle(ctx, types.CycleTriggerTimer)
		}
	}
}

// Stop halts future timer-fired cycles. A cycle already in flight runs to
// completion; use Wait to block until it has.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stop)
	s.running = false
}

// Wait blocks until the timer loop has exited and every in-flight cycle,
// timer-fired or manual, has finished.
func (s *Scheduler) Wait() {
	s.loop.Wait()
	s.cycles.Wait()
}

// TriggerNow runs one cycle immediately and returns its report after every
// site has settled. It is independent of the timer and may overlap with a
// timer-fired cycle.
func (s *Scheduler) TriggerNow(ctx context.Context) CycleReport {
	return s.RunCycle(context.WithoutCancel(ctx), types.CycleTriggerManual)
}

// RunCycle executes a single poll cycle and reports its outcome.
func (s *Scheduler) RunCycle(ctx context.Context, trigger types.CycleTrigger) CycleReport {
	s.cycles.Add(1)
	defer s.cycles.Done()

	cycleID := uuid.NewString()
	ctx = types.WithCycle(ctx, cycleID, trigger)
	report := CycleReport{
		CycleID:   cycleID,
		Trigger:   trigger,
		StartedAt: s.clock.Now(),
	}

	s.logger.InfoContext(ctx, "poll started",
		"cycle_id", cycleID,
		"trigger", string(trigger),
	)

	sites, err := s.sites.ListActive(ctx)
	if err != nil {
		report.ListError = err.Error()
		report.FinishedAt = s.clock.Now()
		s.logger.ErrorContext(ctx, "failed to fetch active sites",
			"cycle_id", cycleID,
			"error", err,
		)
		s.metrics.RecordCycle(report)
		return report
	}

	report.Sites = len(sites)
	report.Results = make([]SiteResult, len(sites))

	s.logger.InfoContext(ctx, "monitoring active sites",
		"cycle_id", cycleID,
		"sites", len(sites),
	)

	// Site tasks never return an error to the group, so one failing site
	// cannot cancel or short-circuit the others.
	var g errgroup.Group
	if s.limit > 0 {
		g.SetLimit(s.limit)
	}
	for i, site := range sites {
		g.Go(func() error {
			report.Results[i] = s.evaluateSite(ctx, site)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range report.Results {
		switch {
		case r.Error != "":
			report.Failed++
		case r.Skipped:
			report.Skipped++
		case r.Transition == holds.TransitionOpened:
			report.Opened++
		case r.Transition == holds.TransitionCleared:
			report.Cleared++
		}
	}
	report.FinishedAt = s.clock.Now()
	s.metrics.RecordCycle(report)

	s.logger.InfoContext(ctx, "poll complete",
		"cycle_id", cycleID,
		"trigger", string(trigger),
		"sites", report.Sites,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"opened", report.Opened,
		"cleared", report.Cleared,
		"duration_ms", report.Duration().Milliseconds(),
	)
	return report
}

// evaluateSite runs one site and converts any failure, including a panic,
// into the site's result.
func (s *Scheduler) evaluateSite(ctx context.Context, site types.Site) (result SiteResult) {
	defer func() {
		if rvr := recover(); rvr != nil {
			err := types.NewAppErrorWithDetails(types.ErrCodeInternalPanic,
				fmt.Sprintf("panic evaluating site: %v", rvr), nil,
				map[string]any{"stack": string(debug.Stack())})
			result = s.siteFailed(ctx, site, err)
		}
	}()

	res, err := s.evaluator.Evaluate(ctx, site)
	if err != nil {
		return s.siteFailed(ctx, site, err)
	}
	if res.Skipped {
		s.metrics.RecordSiteSkipped()
	}
	return res
}

func (s *Scheduler) siteFailed(ctx context.Context, site types.Site, err error) SiteResult {
	s.metrics.RecordSiteFailure(err)

	attrs := []any{
		"site_id", site.ID,
		"site_name", site.Name,
		"error_code", string(types.CodeOf(err)),
		"error", err,
	}
	if types.IsConfigurationError(err) {
		s.logger.ErrorContext(ctx, "site evaluation failed: configuration error, fleet capability disabled until fixed", attrs...)
	} else {
		s.logger.ErrorContext(ctx, "site evaluation failed", attrs...)
	}
	return SiteResult{
		SiteID:     site.ID,
		SiteName:   site.Name,
		Transition: holds.TransitionNone,
		Error:      err.Error(),
	}
}
