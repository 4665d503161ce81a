package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/hospital-bed-platform/cmd/mainconfig"
	"github.com/wolfman30/hospital-bed-platform/internal/alerts"
	"github.com/wolfman30/hospital-bed-platform/internal/allocation"
	"github.com/wolfman30/hospital-bed-platform/internal/api/router"
	"github.com/wolfman30/hospital-bed-platform/internal/app/bootstrap"
	"github.com/wolfman30/hospital-bed-platform/internal/audit"
	appconfig "github.com/wolfman30/hospital-bed-platform/internal/config"
	"github.com/wolfman30/hospital-bed-platform/internal/discharge"
	"github.com/wolfman30/hospital-bed-platform/internal/events"
	"github.com/wolfman30/hospital-bed-platform/internal/http/handlers"
	"github.com/wolfman30/hospital-bed-platform/internal/notify"
	"github.com/wolfman30/hospital-bed-platform/internal/observability/metrics"
	"github.com/wolfman30/hospital-bed-platform/internal/policy"
	"github.com/wolfman30/hospital-bed-platform/internal/realtime"
	"github.com/wolfman30/hospital-bed-platform/internal/retry"
	"github.com/wolfman30/hospital-bed-platform/internal/scoring"
	"github.com/wolfman30/hospital-bed-platform/internal/workflow"
	"github.com/wolfman30/hospital-bed-platform/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting hospital-bed-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer app.close()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := app.start(ctx); err != nil {
		logger.Error("failed to start background workers", "error", err)
		os.Exit(1)
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	app.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	app.scheduler.Stop()

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

type application struct {
	handler   http.Handler
	service   *allocation.Service
	scheduler *alerts.Scheduler
	reaper    *workflow.Reaper
	deliverer *events.Deliverer
	hub       *realtime.Hub
	closers   []func()
}

// start launches the sweep scheduler, the workflow reaper and, when an
// outbox exists, its deliverer. All stop when ctx is cancelled.
func (a *application) start(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	go a.reaper.Start(ctx)
	if a.deliverer != nil {
		go a.deliverer.Start(ctx)
	}
	return nil
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*application, error) {
	app := &application{}

	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		app.closers = append(app.closers, pool.Close)
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		app.closers = append(app.closers, func() { _ = redisClient.Close() })
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	metricsHandler, bedMetrics, gatherer := setupMetrics()
	retryPolicy := retry.Policy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}

	// Event fan-out.
	app.hub = realtime.NewHub(logger)
	var sesClient *sesv2.Client
	if cfg.UseSESForAlerts {
		sesClient = sesv2.NewFromConfig(awsCfg)
	}
	notifier := notify.NewAlertNotifier(bootstrap.BuildEmailSender(cfg, sesClient, logger), cfg.AlertRecipients, logger)
	deps := bootstrap.EventDeps{Hub: app.hub, Notifier: notifier}
	if pool != nil && !cfg.UseMemoryStore {
		deps.Pool = pool
	}
	if redisClient != nil {
		deps.Redis = redisClient
	}
	if strings.TrimSpace(cfg.EventsQueueURL) != "" {
		deps.SQS = sqs.NewFromConfig(awsCfg)
	}
	if strings.TrimSpace(cfg.EventsArchiveBucket) != "" {
		deps.S3 = s3.NewFromConfig(awsCfg)
	}
	pipeline := bootstrap.BuildEventPipeline(cfg, deps, logger)
	app.deliverer = pipeline.Deliverer

	// Capacity alerts.
	inventory := bootstrap.BuildInventory(cfg, pool, logger)
	monitor := alerts.NewMonitor(inventory, bootstrap.BuildAlertStore(cfg, pool), pipeline.Bus, alerts.Thresholds{
		HighPct:              cfg.HighOccupancyPct,
		CriticalPct:          cfg.CriticalOccupancyPct,
		CleaningOverdueAfter: cfg.CleaningOverdueAfter,
	}, logger).WithRetry(retryPolicy).WithMetrics(bedMetrics)
	app.scheduler = alerts.NewScheduler(monitor, cfg.SweepInterval, logger)
	if redisClient != nil {
		app.scheduler.WithLease(alerts.NewRedisLease(redisClient, "hospital:alerts:sweep-lease", uuid.NewString(), cfg.SweepLeaseTTL))
	}

	// Scoring and assignment.
	engine := scoring.NewEngine(scoring.Config{
		Weights: scoring.Weights{
			Condition:      cfg.WeightCondition,
			Specialization: cfg.WeightSpecialization,
			Equipment:      cfg.WeightEquipment,
			Infection:      cfg.WeightInfection,
			Preference:     cfg.WeightPreference,
		},
		MaxAlternatives:  cfg.MaxAlternatives,
		NotableThreshold: cfg.NotableThreshold,
	}, nil)
	coordinator := workflow.NewCoordinator(inventory, engine, pipeline.Bus, cfg.WorkflowDeadline, logger).
		WithRetry(retryPolicy).
		WithMetrics(bedMetrics).
		WithSweepTrigger(app.scheduler)
	app.reaper = workflow.NewReaper(coordinator, cfg.ReaperInterval, logger)

	estimator := discharge.NewService(inventory, discharge.DefaultModel(), logger)
	app.service = allocation.NewService(inventory, engine, coordinator, monitor, estimator, logger).
		WithMetrics(bedMetrics, gatherer).
		WithCleaningOverdue(cfg.CleaningOverdueAfter).
		WithSweepTrigger(app.scheduler)

	if ledger := openLedger(ledgerURL(cfg), logger); ledger != nil {
		app.closers = append(app.closers, func() { _ = ledger.Close() })
		l := audit.NewLedger(ledger)
		coordinator.WithLedger(l)
		app.service.WithOutcomes(l)
	}
	if table := strings.TrimSpace(cfg.RecommendationTable); table != "" {
		app.service.WithAuditor(audit.NewRecommendationStore(dynamodb.NewFromConfig(awsCfg), table, logger))
	}

	lookup, closeLookup, err := bootstrap.BuildPolicyLookup(ctx, cfg, &awsCfg, logger)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, closeLookup)
	if lookup != nil {
		app.service.WithEnricher(policy.NewEnricher(lookup, cfg.PolicyLookupTimeout, logger))
	}

	app.handler = router.New(&router.Config{
		Logger:             logger,
		Allocation:         handlers.NewAllocationHandler(app.service, logger),
		EventsFeed:         http.HandlerFunc(app.hub.HandleWebSocket),
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WriteRateLimit:     cfg.WriteRateLimit,
		WriteBurst:         cfg.WriteBurst,
	})
	return app, nil
}

// setupMetrics registers bed metrics on a private registry alongside the Go
// runtime collectors.
func setupMetrics() (http.Handler, *metrics.BedMetrics, prometheus.Gatherer) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	bm := metrics.NewBedMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), bm, reg
}

func connectPostgresPool(ctx context.Context, url string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(url) == "" {
		logger.Warn("DATABASE_URL not set; using in-memory stores")
		return nil
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		logger.Error("failed to connect postgres; using in-memory stores", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("postgres ping failed; using in-memory stores", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

func ledgerURL(cfg *appconfig.Config) string {
	if url := strings.TrimSpace(cfg.LedgerDatabaseURL); url != "" {
		return url
	}
	return strings.TrimSpace(cfg.DatabaseURL)
}

// openLedger opens the outcome ledger over database/sql with lib/pq.
func openLedger(url string, logger *logging.Logger) *sql.DB {
	if url == "" {
		return nil
	}
	db, err := sql.Open("postgres", url)
	if err != nil {
		logger.Error("failed to open ledger database", "error", err)
		return nil
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db
}
