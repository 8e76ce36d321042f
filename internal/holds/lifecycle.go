// Package holds drives the per-site hold state machine.
//
// A site is either without an open hold or has exactly one. Each poll cycle
// re-reads that state from storage and calls Advance once; there are no
// timers, so a fixed-duration hold clears on the first cycle after its
// duration has elapsed.
package holds

import (
	"context"
	"log/slog"
	"time"

	"clearskies/internal/alerts"
	"clearskies/internal/types"

	"github.com/google/uuid"
)

// Transition is the outcome of one Advance call.
type Transition string

const (
	// TransitionNone means no hold was open and none was opened.
	TransitionNone Transition = "none"
	// TransitionOpened means a new hold was persisted and alerts dispatched.
	TransitionOpened Transition = "opened"
	// TransitionHeld means an open hold stays open.
	TransitionHeld Transition = "held"
	// TransitionCleared means an open hold was closed.
	TransitionCleared Transition = "cleared"
)

// RuleEvaluator decides breaches and clears. *thresholds.Engine implements it.
type RuleEvaluator interface {
	Evaluate(w types.WeatherSnapshot) *types.Breach
	ShouldClear(rule types.Rule, w types.WeatherSnapshot, triggeredAt time.Time, durationMinutes *int) bool
}

// PresenceResolver lists the vehicles currently inside a zone.
type PresenceResolver interface {
	VehiclesInZone(ctx context.Context, zoneID string) ([]types.VehiclePresence, error)
}

// AlertDispatcher sends hold and all-clear notices.
type AlertDispatcher interface {
	SendHoldAlerts(ctx context.Context, a alerts.Alert) []types.NotificationOutcome
	SendAllClearAlerts(ctx context.Context, a alerts.Alert) []types.NotificationOutcome
}

// HoldRepository persists holds. Create must fail with
// types.ErrCodeConflictOpenHold when the site already has an open hold.
// Close reports false when the hold was already closed.
type HoldRepository interface {
	Create(ctx context.Context, hold *types.Hold) error
	Close(ctx context.Context, holdID string, closedAt time.Time, summary types.NotificationSummary) (bool, error)
}

// Metrics receives lifecycle instrumentation.
type Metrics interface {
	RecordHoldOpened(rule types.Rule)
	RecordHoldCleared(rule types.Rule, heldFor time.Duration)
	RecordOpenConflict()
}

type noopMetrics struct{}

func (noopMetrics) RecordHoldOpened(types.Rule) {}
func (noopMetrics) RecordHoldCleared(types.Rule, time.Duration) {}
func (noopMetrics) RecordOpenConflict() {}

// LifecycleConfig holds the configuration for creating a Lifecycle.
type LifecycleConfig struct {
	Logger  *slog.Logger
	Clock   types.Clock
	Metrics Metrics
}

// Lifecycle opens and clears holds.
type Lifecycle struct {
	rules    RuleEvaluator
	presence PresenceResolver
	alerts   AlertDispatcher
	repo     HoldRepository
	clock    types.Clock
	metrics  Metrics
	logger   *slog.Logger
}

// NewLifecycle creates a Lifecycle.
func NewLifecycle(rules RuleEvaluator, presence PresenceResolver, dispatcher AlertDispatcher, repo HoldRepository, cfg LifecycleConfig) *Lifecycle {
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
	return &Lifecycle{
		rules:    rules,
		presence: presence,
		alerts:   dispatcher,
		repo:     repo,
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
	}
}

// Advance applies one cycle's snapshot to the site. active is the site's
// open hold as read from storage this cycle, or nil.
//
// Alert delivery failures never fail Advance. Presence and persistence
// failures do, and leave storage as it was so the next cycle retries.
func (l *Lifecycle) Advance(ctx context.Context, site types.Site, snapshot types.WeatherSnapshot, active *types.Hold) (Transition, error) {
	if active != nil {
		return l.advanceOpen(ctx, site, snapshot, active)
	}

	breach := l.rules.Evaluate(snapshot)
	if breach == nil {
		return TransitionNone, nil
	}
	return l.open(ctx, site, snapshot, breach)
}

func (l *Lifecycle) open(ctx context.Context, site types.Site, snapshot types.WeatherSnapshot, breach *types.Breach) (Transition, error) {
	l.logger.InfoContext(ctx, "threshold breached",
		"site_id", site.ID,
		"site_name", site.Name,
		"rule", string(breach.Rule),
		"value", breach.Value,
		"threshold", breach.Threshold,
	)

	vehicles, err := l.presence.VehiclesInZone(ctx, site.ZoneID)
	if err != nil {
		return TransitionNone, err
	}

	hold := &types.Hold{
		ID:              uuid.NewString(),
		SiteID:          site.ID,
		SiteName:        site.Name,
		TriggeredAt:     l.clock.Now(),
		TriggerRule:     breach.Rule,
		WeatherSnapshot: snapshot,
		VehiclesOnSite:  vehicles,
		DurationMinutes: breach.DurationMinutes,
		IssuedBy:        types.IssuedByAuto,
	}
	if err := l.repo.Create(ctx, hold); err != nil {
		if types.HasCode(err, types.ErrCodeConflictOpenHold) {
			// An overlapping cycle opened a hold for this site first.
			l.metrics.RecordOpenConflict()
			l.logger.InfoContext(ctx, "site already has an open hold, skipping",
				"site_id", site.ID,
				"site_name", site.Name,
				"rule", string(breach.Rule),
			)
			return TransitionNone, nil
		}
		return TransitionNone, err
	}
	l.metrics.RecordHoldOpened(hold.TriggerRule)

	outcomes := l.alerts.SendHoldAlerts(ctx, alerts.Alert{
		HoldID:          hold.ID,
		SiteID:          site.ID,
		SiteName:        site.Name,
		Rule:            hold.TriggerRule,
		Vehicles:        vehicles,
		DurationMinutes: hold.DurationMinutes,
	})

	l.logger.InfoContext(ctx, "hold opened",
		"site_id", site.ID,
		"site_name", site.Name,
		"hold_id", hold.ID,
		"rule", string(hold.TriggerRule),
		"vehicles", len(vehicles),
		"sent", types.NotificationSummary(outcomes).SentCount(),
	)
	return TransitionOpened, nil
}

func (l *Lifecycle) advanceOpen(ctx context.Context, site types.Site, snapshot types.WeatherSnapshot, hold *types.Hold) (Transition, error) {
	if !l.rules.ShouldClear(hold.TriggerRule, snapshot, hold.TriggeredAt, hold.DurationMinutes) {
		l.logger.InfoContext(ctx, "hold remains active",
			"site_id", site.ID,
			"site_name", site.Name,
			"hold_id", hold.ID,
			"rule", string(hold.TriggerRule),
			"triggered_at", hold.TriggeredAt,
		)
		return TransitionHeld, nil
	}

	// All-clear goes to the vehicles frozen at trigger time, not a fresh lookup.
	outcomes := l.alerts.SendAllClearAlerts(ctx, alerts.Alert{
		HoldID:   hold.ID,
		SiteID:   site.ID,
		SiteName: site.Name,
		Rule:     hold.TriggerRule,
		Vehicles: hold.VehiclesOnSite,
	})

	closedAt := l.clock.Now()
	closed, err := l.repo.Close(ctx, hold.ID, closedAt, outcomes)
	if err != nil {
		return TransitionHeld, err
	}
	if !closed {
		l.logger.InfoContext(ctx, "hold already closed by another cycle",
			"site_id", site.ID,
			"site_name", site.Name,
			"hold_id", hold.ID,
		)
		return TransitionNone, nil
	}

	l.metrics.RecordHoldCleared(hold.TriggerRule, closedAt.Sub(hold.TriggeredAt))
	l.logger.InfoContext(ctx, "hold cleared",
		"site_id", site.ID,
		"site_name", site.Name,
		"hold_id", hold.ID,
		"rule", string(hold.TriggerRule),
		"sent", types.NotificationSummary(outcomes).SentCount(),
	)
	return TransitionCleared, nil
}
