// Package app assembles the hold engine from configuration. Both the
// long-running process and the one-shot poll entry build the same graph.
package app

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"clearskies/internal/alerts"
	"clearskies/internal/config"
	"clearskies/internal/db"
	"clearskies/internal/external"
	"clearskies/internal/fleet"
	"clearskies/internal/holds"
	"clearskies/internal/metrics"
	"clearskies/internal/scheduler"
	"clearskies/internal/thresholds"
	"clearskies/internal/types"
)

// Dependencies are the outer collaborators of the engine.
type Dependencies struct {
	DB      db.DBTX
	Fleet   external.FleetAPI
	Weather external.WeatherProvider

	// Registry receives the engine's collectors. Nil uses a private one.
	Registry *prometheus.Registry
	Clock    types.Clock
	Logger   *slog.Logger
}

// Engine is the wired component graph.
type Engine struct {
	Scheduler *scheduler.Scheduler
	Sessions  *fleet.SessionManager
	Holds     *db.HoldRepository
	Metrics   *metrics.Recorder
	Rules     *thresholds.Engine
}

// NewEngine wires every component on top of deps. It fails only when the
// configured threshold mode is unknown.
func NewEngine(cfg *config.Config, deps Dependencies) (*Engine, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = types.RealClock{}
	}

	set, err := thresholds.ForMode(cfg.Thresholds.Selected())
	if err != nil {
		return nil, err
	}
	rules := thresholds.NewEngine(set, clock)
	recorder := metrics.NewRecorder(deps.Registry)

	sessions := fleet.NewSessionManager(deps.Fleet, fleet.SessionManagerConfig{
		Credentials: cfg.Fleet.Credentials(),
		Logger:      logger.With("component", "session_manager"),
		Metrics:     recorder,
	})
	presence := fleet.NewPresenceResolver(sessions, deps.Fleet, fleet.PresenceResolverConfig{
		Logger: logger.With("component", "presence_resolver"),
	})

	dispatcherCfg := alerts.DispatcherConfig{
		Logger:  logger.With("component", "alert_dispatcher"),
		Clock:   clock,
		Metrics: recorder,
	}
	if mailer := alerts.NewSupervisorMailer(cfg.Supervisor, logger.With("component", "supervisor_mailer")); mailer != nil {
		dispatcherCfg.Supervisors = mailer
	}
	dispatcher := alerts.NewDispatcher(
		fleet.NewGeotabMessenger(sessions, deps.Fleet),
		db.NewNotificationRepository(deps.DB),
		dispatcherCfg,
	)

	holdRepo := db.NewHoldRepository(deps.DB)
	lifecycle := holds.NewLifecycle(rules, presence, dispatcher, holdRepo, holds.LifecycleConfig{
		Logger:  logger.With("component", "hold_lifecycle"),
		Clock:   clock,
		Metrics: recorder,
	})
	evaluator := scheduler.NewSiteEvaluator(deps.Weather, holdRepo, lifecycle, scheduler.SiteEvaluatorConfig{
		Logger: logger.With("component", "site_evaluator"),
	})
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Sites:              db.NewSiteRepository(deps.DB),
		Evaluator:          evaluator,
		Auth:               sessions,
		MaxConcurrentSites: cfg.Poll.MaxConcurrentSites,
		Logger:             logger.With("component", "scheduler"),
		Clock:              clock,
		Metrics:            recorder,
	})

	logger.Info("engine wired",
		"threshold_mode", cfg.Thresholds.Selected(),
		"fleet_stub", cfg.Fleet.StubMode,
		"supervisor_copy", cfg.Supervisor.Enabled(),
		"max_concurrent_sites", cfg.Poll.MaxConcurrentSites,
	)

	return &Engine{
		Scheduler: sched,
		Sessions:  sessions,
		Holds:     holdRepo,
		Metrics:   recorder,
		Rules:     rules,
	}, nil
}

// OpenDatabase connects the pool and applies the schema when configured to.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("database schema applied")
	}
	return pool, nil
}
