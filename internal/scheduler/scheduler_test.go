package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"clearskies/internal/holds"
	"clearskies/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Evaluator mocks ---

type mockWeather struct {
	snap    types.WeatherSnapshot
	err     error
	started chan struct{}
	release chan struct{}
}

func (m *mockWeather) Current(context.Context, float64, float64) (types.WeatherSnapshot, error) {
	if m.started != nil {
		close(m.started)
	}
	if m.release != nil {
		<-m.release
	}
	return m.snap, m.err
}

type mockHoldReader struct {
	hold    *types.Hold
	err     error
	started chan struct{}
}

func (m *mockHoldReader) GetActive(context.Context, string) (*types.Hold, error) {
	if m.started != nil {
		close(m.started)
	}
	return m.hold, m.err
}

type mockAdvancer struct {
	calls      int
	gotActive  *types.Hold
	transition holds.Transition
	err        error
}

func (m *mockAdvancer) Advance(_ context.Context, _ types.Site, _ types.WeatherSnapshot, active *types.Hold) (holds.Transition, error) {
	m.calls++
	m.gotActive = active
	if m.transition == "" {
		return holds.TransitionNone, m.err
	}
	return m.transition, m.err
}

var site1 = types.Site{ID: "s1", Name: "North Yard", ZoneID: "z1", Active: true}

func newEvaluator(w WeatherProvider, h HoldReader, a HoldAdvancer) *SiteEvaluator {
	return NewSiteEvaluator(w, h, a, SiteEvaluatorConfig{Logger: discardLogger()})
}

// ============================================================
// SiteEvaluator
// ============================================================

func TestEvaluate_FetchesRunConcurrently(t *testing.T) {
	holdStarted := make(chan struct{})
	release := make(chan struct{})
	weather := &mockWeather{release: release}
	reader := &mockHoldReader{started: holdStarted}
	adv := &mockAdvancer{}

	done := make(chan error, 1)
	go func() {
		_, err := newEvaluator(weather, reader, adv).Evaluate(context.Background(), site1)
		done <- err
	}()

	// The hold read must start while the weather fetch is still blocked.
	select {
	case <-holdStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("hold fetch did not start while weather fetch was in flight")
	}
	if adv.calls != 0 {
		t.Fatal("lifecycle must wait for both fetches")
	}
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if adv.calls != 1 {
		t.Errorf("Advance calls = %d, want 1", adv.calls)
	}
}

func TestEvaluate_WeatherFailureSkipsSite(t *testing.T) {
	weather := &mockWeather{err: types.NewAppError(types.ErrCodeUpstreamWeather, "timeout", nil)}
	adv := &mockAdvancer{}

	res, err := newEvaluator(weather, &mockHoldReader{}, adv).Evaluate(context.Background(), site1)
	if err != nil {
		t.Fatalf("weather failure must not be a site error: %v", err)
	}
	if !res.Skipped {
		t.Error("expected Skipped")
	}
	if adv.calls != 0 {
		t.Error("no state change when weather is unavailable")
	}
}

func TestEvaluate_HoldReadFailurePropagates(t *testing.T) {
	reader := &mockHoldReader{err: types.NewAppError(types.ErrCodeInternalDB, "select failed", nil)}
	adv := &mockAdvancer{}

	_, err := newEvaluator(&mockWeather{}, reader, adv).Evaluate(context.Background(), site1)
	if !types.IsPersistenceError(err) {
		t.Fatalf("err = %v, want persistence error", err)
	}
	if adv.calls != 0 {
		t.Error("must not guess no-hold when the read failed")
	}
}

func TestEvaluate_PassesActiveHold(t *testing.T) {
	hold := &types.Hold{ID: "h1", SiteID: "s1"}
	adv := &mockAdvancer{transition: holds.TransitionHeld}

	res, err := newEvaluator(&mockWeather{}, &mockHoldReader{hold: hold}, adv).Evaluate(context.Background(), site1)
	if err != nil {
		t.Fatal(err)
	}
	if adv.gotActive != hold {
		t.Error("active hold was not passed to the lifecycle")
	}
	if res.Transition != holds.TransitionHeld || res.SiteID != "s1" {
		t.Errorf("result = %+v", res)
	}
}

func TestEvaluate_LifecycleErrorPropagates(t *testing.T) {
	adv := &mockAdvancer{err: errors.New("boom")}
	if _, err := newEvaluator(&mockWeather{}, &mockHoldReader{}, adv).Evaluate(context.Background(), site1); err == nil {
		t.Fatal("expected error")
	}
}

// --- Scheduler mocks ---

type mockSites struct {
	sites []types.Site
	err   error
	calls atomic.Int32
}

func (m *mockSites) ListActive(context.Context) ([]types.Site, error) {
	m.calls.Add(1)
	return m.sites, m.err
}

// funcRunner adapts a function to SiteRunner.
type funcRunner func(ctx context.Context, site types.Site) (SiteResult, error)

func (f funcRunner) Evaluate(ctx context.Context, site types.Site) (SiteResult, error) {
	return f(ctx, site)
}

type mockAuth struct {
	calls atomic.Int32
	err   error
}

func (m *mockAuth) Authenticate(context.Context) (types.Session, error) {
	m.calls.Add(1)
	return types.Session{}, m.err
}

type recordingMetrics struct {
	mu       sync.Mutex
	cycles   []CycleReport
	failures int
	skipped  int
}

func (m *recordingMetrics) RecordCycle(r CycleReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles = append(m.cycles, r)
}

func (m *recordingMetrics) RecordSiteFailure(error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *recordingMetrics) RecordSiteSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped++
}

func sitesN(n int) []types.Site {
	out := make([]types.Site, n)
	for i := range out {
		out[i] = types.Site{ID: string(rune('a' + i)), Name: "Site " + string(rune('A'+i))}
	}
	return out
}

func newTestScheduler(sites SiteLister, runner SiteRunner, cfg SchedulerConfig) *Scheduler {
	cfg.Sites = sites
	cfg.Evaluator = runner
	cfg.Logger = discardLogger()
	return NewScheduler(cfg)
}

// ============================================================
// Scheduler
// ============================================================

func TestRunCycle_ReportsOutcomes(t *testing.T) {
	sites := &mockSites{sites: sitesN(5)}
	metrics := &recordingMetrics{}
	runner := funcRunner(func(_ context.Context, s types.Site) (SiteResult, error) {
		switch s.ID {
		case "a":
			return SiteResult{SiteID: s.ID, Transition: holds.TransitionOpened}, nil
		case "b":
			return SiteResult{SiteID: s.ID, Transition: holds.TransitionCleared}, nil
		case "c":
			return SiteResult{SiteID: s.ID, Skipped: true, Transition: holds.TransitionNone}, nil
		case "d":
			return SiteResult{}, types.NewAppError(types.ErrCodeInternalDB, "down", nil)
		}
		return SiteResult{SiteID: s.ID, Transition: holds.TransitionNone}, nil
	})
	s := newTestScheduler(sites, runner, SchedulerConfig{Metrics: metrics})

	r := s.TriggerNow(context.Background())

	if r.Sites != 5 || r.Opened != 1 || r.Cleared != 1 || r.Skipped != 1 || r.Failed != 1 {
		t.Errorf("report = %+v", r)
	}
	if r.Trigger != types.CycleTriggerManual || r.CycleID == "" {
		t.Errorf("trigger = %q, id = %q", r.Trigger, r.CycleID)
	}
	if r.Results[3].Error == "" || r.Results[3].SiteID != "d" {
		t.Errorf("failed site result = %+v", r.Results[3])
	}
	if len(metrics.cycles) != 1 || metrics.failures != 1 || metrics.skipped != 1 {
		t.Errorf("metrics: cycles=%d failures=%d skipped=%d", len(metrics.cycles), metrics.failures, metrics.skipped)
	}
}

func TestRunCycle_PanicIsolatedToSite(t *testing.T) {
	var completed atomic.Int32
	runner := funcRunner(func(_ context.Context, s types.Site) (SiteResult, error) {
		if s.ID == "b" {
			panic("nil map write")
		}
		completed.Add(1)
		return SiteResult{SiteID: s.ID, Transition: holds.TransitionNone}, nil
	})
	s := newTestScheduler(&mockSites{sites: sitesN(4)}, runner, SchedulerConfig{})

	r := s.TriggerNow(context.Background())

	if completed.Load() != 3 {
		t.Errorf("completed = %d, want 3", completed.Load())
	}
	if r.Failed != 1 {
		t.Errorf("Failed = %d, want 1", r.Failed)
	}
}

func TestRunCycle_ListFailureEndsCycle(t *testing.T) {
	var evaluated atomic.Int32
	runner := funcRunner(func(context.Context, types.Site) (SiteResult, error) {
		evaluated.Add(1)
		return SiteResult{}, nil
	})
	s := newTestScheduler(&mockSites{err: errors.New("db down")}, runner, SchedulerConfig{})

	r := s.TriggerNow(context.Background())
	if r.ListError == "" || r.Sites != 0 {
		t.Errorf("report = %+v", r)
	}
	if evaluated.Load() != 0 {
		t.Error("no site may be evaluated without a site list")
	}
}

func TestRunCycle_SitesRunConcurrently(t *testing.T) {
	const n = 4
	var arrived sync.WaitGroup
	arrived.Add(n)
	runner := funcRunner(func(_ context.Context, s types.Site) (SiteResult, error) {
		arrived.Done()
		arrived.Wait() // deadlocks unless every site is in flight at once
		return SiteResult{SiteID: s.ID, Transition: holds.TransitionNone}, nil
	})
	s := newTestScheduler(&mockSites{sites: sitesN(n)}, runner, SchedulerConfig{})

	done := make(chan CycleReport, 1)
	go func() { done <- s.TriggerNow(context.Background()) }()
	select {
	case r := <-done:
		if r.Failed != 0 {
			t.Errorf("Failed = %d", r.Failed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sites were not evaluated concurrently")
	}
}

func TestRunCycle_RespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	runner := funcRunner(func(_ context.Context, s types.Site) (SiteResult, error) {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return SiteResult{SiteID: s.ID, Transition: holds.TransitionNone}, nil
	})
	s := newTestScheduler(&mockSites{sites: sitesN(8)}, runner, SchedulerConfig{MaxConcurrentSites: 2})

	r := s.TriggerNow(context.Background())
	if r.Sites != 8 {
		t.Fatalf("Sites = %d", r.Sites)
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
}

func TestTriggerNow_OverlappingCyclesBothComplete(t *testing.T) {
	gate := make(chan struct{})
	var entered atomic.Int32
	runner := funcRunner(func(_ context.Context, s types.Site) (SiteResult, error) {
		entered.Add(1)
		<-gate
		return SiteResult{SiteID: s.ID, Transition: holds.TransitionNone}, nil
	})
	s := newTestScheduler(&mockSites{sites: sitesN(1)}, runner, SchedulerConfig{})

	reports := make(chan CycleReport, 2)
	for i := 0; i < 2; i++ {
		go func() { reports <- s.TriggerNow(context.Background()) }()
	}

	deadline := time.Now().Add(2 * time.Second)
	for entered.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("second cycle did not start while the first was in flight")
		}
		time.Sleep(time.Millisecond)
	}
	close(gate)

	a, b := <-reports, <-reports
	if a.CycleID == b.CycleID {
		t.Error("overlapping cycles must have distinct ids")
	}
}

func TestTriggerNow_CallerCancellationDoesNotCancelCycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := funcRunner(func(ctx context.Context, s types.Site) (SiteResult, error) {
		cancel()
		if ctx.Err() != nil {
			return SiteResult{}, ctx.Err()
		}
		return SiteResult{SiteID: s.ID, Transition: holds.TransitionNone}, nil
	})
	s := newTestScheduler(&mockSites{sites: sitesN(1)}, runner, SchedulerConfig{})

	if r := s.TriggerNow(ctx); r.Failed != 0 {
		t.Errorf("cycle observed caller cancellation: %+v", r.Results)
	}
}

func TestRunCycle_ContextCarriesCycleID(t *testing.T) {
	var seen atomic.Value
	runner := funcRunner(func(ctx context.Context, s types.Site) (SiteResult, error) {
		seen.Store(types.GetCycleID(ctx))
		return SiteResult{SiteID: s.ID, Transition: holds.TransitionNone}, nil
	})
	s := newTestScheduler(&mockSites{sites: sitesN(1)}, runner, SchedulerConfig{})

	r := s.TriggerNow(context.Background())
	if seen.Load() != r.CycleID {
		t.Errorf("site ctx cycle id = %v, want %s", seen.Load(), r.CycleID)
	}
}

func TestStart_BootstrapFailureIsNotFatal(t *testing.T) {
	sites := &mockSites{}
	auth := &mockAuth{err: types.NewAppError(types.ErrCodeConfigMissingCredentials, "no creds", nil)}
	metrics := &recordingMetrics{}
	s := newTestScheduler(sites, funcRunner(nil), SchedulerConfig{Auth: auth, Metrics: metrics})

	if err := s.Start(context.Background(), StartOptions{Interval: time.Hour, RunImmediately: true}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
	s.Wait()

	if auth.calls.Load() != 1 {
		t.Errorf("auth calls = %d, want 1", auth.calls.Load())
	}
	if sites.calls.Load() != 1 {
		t.Errorf("startup cycle ran %d times, want 1", sites.calls.Load())
	}
	if metrics.cycles[0].Trigger != types.CycleTriggerStartup {
		t.Errorf("trigger = %q, want startup", metrics.cycles[0].Trigger)
	}
}

func TestStart_WithoutRunImmediately(t *testing.T) {
	sites := &mockSites{}
	s := newTestScheduler(sites, funcRunner(nil), SchedulerConfig{})

	if err := s.Start(context.Background(), StartOptions{Interval: time.Hour}); err != nil {
		t.Fatal(err)
	}
	s.Stop()
	s.Wait()
	if sites.calls.Load() != 0 {
		t.Errorf("cycles = %d, want 0 before the first tick", sites.calls.Load())
	}
}

func TestStart_TimerFiresCycles(t *testing.T) {
	sites := &mockSites{}
	s := newTestScheduler(sites, funcRunner(nil), SchedulerConfig{})

	if err := s.Start(context.Background(), StartOptions{Interval: 10 * time.Millisecond}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for sites.calls.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("timer did not fire")
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	s.Wait()
}

func TestStart_Twice(t *testing.T) {
	s := newTestScheduler(&mockSites{}, funcRunner(nil), SchedulerConfig{})
	if err := s.Start(context.Background(), StartOptions{Interval: time.Hour}); err != nil {
		t.Fatal(err)
	}
	defer func() { s.Stop(); s.Wait() }()

	if err := s.Start(context.Background(), StartOptions{Interval: time.Hour}); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("err = %v, want ErrAlreadyStarted", err)
	}
}

func TestStart_RejectsZeroInterval(t *testing.T) {
	s := newTestScheduler(&mockSites{}, funcRunner(nil), SchedulerConfig{})
	if err := s.Start(context.Background(), StartOptions{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestStop_DoesNotCancelInFlightCycle(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{})
	var finished atomic.Bool
	runner := funcRunner(func(ctx context.Context, s types.Site) (SiteResult, error) {
		close(started)
		<-gate
		if ctx.Err() == nil {
			finished.Store(true)
		}
		return SiteResult{SiteID: s.ID, Transition: holds.TransitionNone}, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	s := newTestScheduler(&mockSites{sites: sitesN(1)}, runner, SchedulerConfig{})

	if err := s.Start(ctx, StartOptions{Interval: time.Hour, RunImmediately: true}); err != nil {
		t.Fatal(err)
	}
	<-started
	cancel()
	s.Stop()

	waited := make(chan struct{})
	go func() { s.Wait(); close(waited) }()

	select {
	case <-waited:
		t.Fatal("Wait returned before the in-flight cycle finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(gate)
	<-waited
	if !finished.Load() {
		t.Error("in-flight cycle was cancelled")
	}
}
