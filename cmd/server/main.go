package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bencrane/outbound-engine-x-api/internal/api"
	"github.com/bencrane/outbound-engine-x-api/internal/config"
	"github.com/bencrane/outbound-engine-x-api/internal/gate"
	"github.com/bencrane/outbound-engine-x-api/internal/ingest"
	"github.com/bencrane/outbound-engine-x-api/internal/metrics"
	"github.com/bencrane/outbound-engine-x-api/internal/projector"
	"github.com/bencrane/outbound-engine-x-api/internal/replay"
	"github.com/bencrane/outbound-engine-x-api/internal/signature"
	"github.com/bencrane/outbound-engine-x-api/internal/store"
	"github.com/bencrane/outbound-engine-x-api/internal/tenant"
	"github.com/bencrane/outbound-engine-x-api/internal/ws"
	"github.com/bencrane/outbound-engine-x-api/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))

	// Initialize PostgreSQL
	ctx := context.Background()
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := pgStore.RunMigrations(ctx, migrations.FS); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Redis-backed metrics with threshold alerting
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	redisSink := metrics.NewRedisSink(redisClient, logger)
	sink := metrics.NewEvaluator(redisSink, []metrics.Threshold{
		{Metric: metrics.MetricDeadLetter, Limit: cfg.DeadLetterAlertThreshold, Window: cfg.MetricsWindow},
		{Metric: metrics.MetricSignatureRejected, Limit: cfg.SignatureAlertThreshold, Window: cfg.MetricsWindow},
		{Metric: metrics.MetricReplayFailed, Limit: cfg.ReplayFailAlertThreshold, Window: cfg.MetricsWindow},
	}, func(sig metrics.Signal) {
		logger.Warn("metric threshold exceeded",
			"metric", sig.Metric, "observed", sig.Observed, "threshold", sig.Threshold)
	})

	// Admission gate, optionally with per-provider JSON Schemas
	admissionGate := gate.New(cfg.AcceptedSchemaVersions, gate.DefaultFieldPaths())
	if cfg.ProviderSchemaDir != "" {
		schemas, err := gate.LoadSchemas(cfg.ProviderSchemaDir)
		if err != nil {
			logger.Error("failed to load provider schemas", "error", err)
			os.Exit(1)
		}
		for provider, schema := range schemas {
			admissionGate.SetSchema(provider, schema)
		}
		logger.Info("provider schemas loaded", "count", len(schemas))
	}

	verifier, err := signature.New(cfg.SignatureMode, cfg.SignatureTolerance, cfg.WebhookSecrets())
	if err != nil {
		logger.Error("failed to configure signature verification", "error", err)
		os.Exit(1)
	}

	// WebSocket hub for operator dashboards
	hub := ws.NewHub(logger)
	go hub.Run()

	resolver := tenant.NewStoreResolver(pgStore)
	proj := projector.New(pgStore, pgStore, resolver, logger)
	pipeline := ingest.NewPipeline(admissionGate, verifier, pgStore, proj, sink, hub, logger)

	// Replay worker pool and engine
	pool := replay.NewPool(cfg.ReplayWorkers, cfg.ReplayQueueCapacity, cfg.ReplaySubmitTimeout, logger)
	poolCtx, poolCancel := context.WithCancel(ctx)
	defer poolCancel()
	pool.Start(poolCtx)

	engine := replay.NewEngine(pgStore, proj, pool, sink, hub, logger, replay.Options{
		BatchSize:  cfg.ReplayBatchSize,
		MaxPerRun:  cfg.ReplayMaxPerRun,
		BaseDelay:  cfg.ReplayBaseDelay,
		MaxDelay:   cfg.ReplayMaxDelay,
		Multiplier: cfg.ReplayBackoffFactor,
	})

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		Pipeline:   pipeline,
		Engine:     engine,
		Events:     pgStore,
		Sink:       redisSink,
		Hub:        hub,
		AdminToken: cfg.AdminToken,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting",
			"port", cfg.Port, "signature_mode", cfg.SignatureMode)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Drain in-flight replay work before exiting.
	pool.Stop()

	logger.Info("server stopped")
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
