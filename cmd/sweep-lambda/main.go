// Command sweep-lambda runs one capacity alert sweep per scheduled
// EventBridge invocation. Events go through the Postgres outbox so the API
// server's deliverer fans them out.
package main

import (
	"context"
	"os"
	"time"

	awsevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/hospital-bed-platform/internal/alerts"
	"github.com/wolfman30/hospital-bed-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/hospital-bed-platform/internal/config"
	"github.com/wolfman30/hospital-bed-platform/internal/retry"
	"github.com/wolfman30/hospital-bed-platform/pkg/logging"
)

type sweeper interface {
	Sweep(ctx context.Context) (alerts.SweepReport, error)
}

// sweepResult is the invocation summary returned to Lambda.
type sweepResult struct {
	Wards       int               `json:"wards"`
	Raised      int               `json:"raised"`
	Refreshed   int               `json:"refreshed"`
	Resolved    int               `json:"resolved"`
	Active      int               `json:"active"`
	FailedWards map[string]string `json:"failed_wards,omitempty"`
	DurationMS  int64             `json:"duration_ms"`
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel).Component("sweep-lambda")
	if cfg.DatabaseURL == "" {
		logger.Error("sweep lambda requires DATABASE_URL")
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	pipeline := bootstrap.BuildEventPipeline(cfg, bootstrap.EventDeps{Pool: pool}, logger)
	monitor := alerts.NewMonitor(
		bootstrap.BuildInventory(cfg, pool, logger),
		bootstrap.BuildAlertStore(cfg, pool),
		pipeline.Bus,
		alerts.Thresholds{
			HighPct:              cfg.HighOccupancyPct,
			CriticalPct:          cfg.CriticalOccupancyPct,
			CleaningOverdueAfter: cfg.CleaningOverdueAfter,
		},
		logger,
	).WithRetry(retry.Policy{MaxAttempts: cfg.RetryMaxAttempts, BaseDelay: cfg.RetryBaseDelay, MaxDelay: cfg.RetryMaxDelay})

	lambda.Start(func(ctx context.Context, evt awsevents.CloudWatchEvent) (sweepResult, error) {
		return handle(ctx, monitor, logger, evt)
	})
}

func handle(ctx context.Context, s sweeper, logger *logging.Logger, evt awsevents.CloudWatchEvent) (sweepResult, error) {
	start := time.Now()
	report, err := s.Sweep(ctx)
	if err != nil {
		logger.Error("scheduled sweep failed", "event_id", evt.ID, "error", err)
		return sweepResult{}, err
	}
	result := sweepResult{
		Wards:       len(report.Wards),
		Raised:      len(report.Raised),
		Refreshed:   len(report.Refreshed),
		Resolved:    len(report.Resolved),
		Active:      len(report.Active),
		FailedWards: report.FailedWards,
		DurationMS:  time.Since(start).Milliseconds(),
	}
	logger.Info("scheduled sweep finished",
		"event_id", evt.ID,
		"raised", result.Raised,
		"resolved", result.Resolved,
		"active", result.Active,
		"failed_wards", len(result.FailedWards),
	)
	return result, nil
}
