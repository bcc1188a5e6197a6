package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/leadpulse/backend/internal/auth"
	"github.com/leadpulse/backend/internal/config"
	"github.com/leadpulse/backend/internal/ingest"
	"github.com/leadpulse/backend/internal/leads"
	"github.com/leadpulse/backend/internal/ledger"
	"github.com/leadpulse/backend/internal/monitors"
	"github.com/leadpulse/backend/internal/provider"
	"github.com/leadpulse/backend/internal/router"
	"github.com/leadpulse/backend/internal/scan"
	"github.com/leadpulse/backend/internal/scanlog"
	"github.com/leadpulse/backend/internal/scheduler"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL")

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Scan activity streams: redis when configured, in-process otherwise.
	var events scanlog.Sink = scanlog.NewMemorySink()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("Invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("Redis unreachable, falling back to in-memory scan streams", "error", err)
		} else {
			events = scanlog.NewRedisSink(rdb)
			slog.Info("Connected to Redis")
		}
	}

	ledgerSvc := ledger.NewService(ledger.NewRepository(pool))
	monitorRepo := monitors.NewRepository(pool)
	monitorSvc := monitors.NewService(monitorRepo)
	leadRepo := leads.NewRepository(pool)
	merger := ingest.NewMerger(leadRepo)
	providerClient := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey)

	// Scan dispatch: insert func is set after the River client exists
	// (breaks the init cycle between service and worker).
	var insertMu sync.Mutex
	var insertFn scan.InsertScanJobTxFunc
	insertScanJob := func(ctx context.Context, tx pgx.Tx, args scan.ScanJobArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, tx, args)
	}

	scanSvc := scan.NewService(pool, monitorRepo, ledgerSvc, insertScanJob)
	runner := scan.NewRunner(pool, providerClient, monitorRepo, ledgerSvc, merger, events, logger, cfg.ResultLimit)

	workers := river.NewWorkers()
	river.AddWorker(workers, scan.NewWorker(runner))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, tx pgx.Tx, args scan.ScanJobArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}
	insertMu.Unlock()

	authSvc := auth.NewService(auth.NewRepository(pool), cfg.JWTSecret)
	leadSvc := leads.NewService(pool, leadRepo, ledgerSvc, monitorRepo)

	handlers := router.Handlers{
		Auth:     auth.NewHandler(authSvc, logger),
		Monitors: monitors.NewHandler(monitorSvc, logger),
		Scan:     scan.NewHandler(scanSvc, monitorRepo, events, logger),
		Leads:    leads.NewHandler(leadSvc, logger),
		Ledger:   ledger.NewHandler(ledgerSvc, logger),
	}
	apiRouter := router.New(handlers, authSvc, ledgerSvc)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(apiRouter)

	// Start River client (processes scan jobs)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	sched := scheduler.New(monitorRepo, scanSvc, cfg.WeeklyCronSpec, logger)
	if err := sched.Start(ctx); err != nil {
		slog.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	addr := "0.0.0.0:" + cfg.Port
	slog.Info("Starting HTTP server", "addr", addr)
	if err := http.ListenAndServe(addr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
