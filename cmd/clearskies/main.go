// Package main is the long-running ClearSkies process.
//
// It loads configuration, opens the database, wires the hold engine, starts
// the poll scheduler and serves the HTTP surface until SIGINT or SIGTERM.
// Shutdown stops the timer, drains HTTP, then waits for an in-flight cycle
// within the same deadline.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"clearskies/internal/api"
	"clearskies/internal/app"
	"clearskies/internal/config"
	"clearskies/internal/external"
	"clearskies/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := app.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("clearskies starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"poll_interval", cfg.Poll.Interval().String(),
	)

	ctx := context.Background()
	pool, err := app.OpenDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer pool.Close()

	clients := external.NewClientRegistry(cfg, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine, err := app.NewEngine(cfg, app.Dependencies{
		DB:       pool,
		Fleet:    clients.Fleet,
		Weather:  clients.Weather,
		Registry: registry,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("wiring engine: %w", err)
	}

	if err := engine.Scheduler.Start(ctx, scheduler.StartOptions{
		Interval:       cfg.Poll.Interval(),
		RunImmediately: cfg.Poll.RunImmediately,
	}); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	srv := api.NewServer(engine.Scheduler, engine.Holds, api.ServerConfig{
		Logger:  logger,
		APIKey:  cfg.Server.APIKey.Unmask(),
		Probes:  []api.HealthProbe{api.PingProbe{ProbeName: "database", Ping: pool.Ping}},
		Metrics: engine.Metrics.Handler(),
		Version: cfg.Build.Version,
	})

	return serve(srv.Handler(), engine.Scheduler, cfg, logger)
}

// serve runs the HTTP server until a shutdown signal or a listener error.
func serve(handler http.Handler, sched *scheduler.Scheduler, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// A manual poll answers only after every site settles.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	drained := make(chan struct{})
	go func() {
		sched.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		logger.Info("scheduler stopped")
	case <-ctx.Done():
		logger.Warn("shutdown deadline reached with a poll cycle still running")
	}

	logger.Info("clearskies stopped")
	return runErr
}
