// Package main runs exactly one ClearSkies poll cycle per invocation.
//
// Under AWS Lambda (an EventBridge schedule) the engine is wired once at
// cold start and each invocation runs one cycle. Outside Lambda it runs a
// single cycle, prints the report as JSON and exits, which suits cron.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"clearskies/internal/app"
	"clearskies/internal/config"
	"clearskies/internal/external"
	"clearskies/internal/scheduler"
	"clearskies/internal/types"
)

// PollEvent is the invocation payload. Every field is optional.
type PollEvent struct {
	// Trigger labels the cycle in logs and metrics. Defaults to "timer".
	Trigger types.CycleTrigger `json:"trigger,omitempty"`
}

// CycleRunner is the slice of the scheduler the handler needs.
type CycleRunner interface {
	RunCycle(ctx context.Context, trigger types.CycleTrigger) scheduler.CycleReport
}

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

	ctx := context.Background()
	pool, err := app.OpenDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer pool.Close()

	clients := external.NewClientRegistry(cfg, logger)
	engine, err := app.NewEngine(cfg, app.Dependencies{
		DB:      pool,
		Fleet:   clients.Fleet,
		Weather: clients.Weather,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("wiring engine: %w", err)
	}

	handler := newHandler(engine.Scheduler, logger)

	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		lambda.Start(handler)
		return nil
	}

	report, err := handler(ctx, PollEvent{Trigger: types.CycleTriggerManual})
	if encErr := json.NewEncoder(os.Stdout).Encode(report); encErr != nil {
		logger.Warn("failed to print cycle report", "error", encErr)
	}
	return err
}

// newHandler returns the invocation handler. A cycle that could not list
// sites is reported as an error so the invocation is marked failed; site
// level failures are only counted in the report.
func newHandler(runner CycleRunner, logger *slog.Logger) func(ctx context.Context, event PollEvent) (scheduler.CycleReport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, event PollEvent) (scheduler.CycleReport, error) {
		trigger := event.Trigger
		if trigger == "" {
			trigger = types.CycleTriggerTimer
		}
		logger.InfoContext(ctx, "poll-once invoked", "trigger", string(trigger))

		report := runner.RunCycle(context.WithoutCancel(ctx), trigger)
		if report.ListError != "" {
			return report, fmt.Errorf("poll cycle %s could not list sites: %s", report.CycleID, report.ListError)
		}
		return report, nil
	}
}
