package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/fetchquest/backend/internal/config"
	"github.com/fetchquest/backend/internal/database"
	"github.com/fetchquest/backend/internal/execution"
	"github.com/fetchquest/backend/internal/ledger"
	"github.com/fetchquest/backend/internal/metrics"
	"github.com/fetchquest/backend/internal/repository"
	"github.com/fetchquest/backend/internal/tasks"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// Metrics go to stderr so stdout stays a clean JSON log stream.
	shutdownMetrics, err := metrics.Setup(os.Stderr, cfg.MetricsInterval)
	if err != nil {
		slog.Error("Failed to set up metrics", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Error("Metrics shutdown failed", "error", err)
		}
	}()

	ctx := context.Background()
	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database successfully!")

	if err := database.Migrate(ctx, pool); err != nil {
		slog.Error("Schema migration failed", "error", err)
		os.Exit(1)
	}

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

	// Repositories
	taskRepo := repository.NewTaskRepo(pool)
	profileRepo := repository.NewProfileRepo(pool)
	creditRepo := repository.NewCreditRepo(pool)

	// Ledger
	ledgerSvc := ledger.NewService(profileRepo, creditRepo, cfg.PlatformFee, logger)

	// Quests
	manager := tasks.NewManager(taskRepo, logger)
	if err := manager.Load(ctx); err != nil {
		slog.Error("Failed to load quests", "error", err)
		os.Exit(1)
	}

	// Reward worker. The enqueue func is set after the River client is
	// created (breaks init cycle).
	var insertMu sync.Mutex
	var insertFn execution.EnqueueRewardFunc
	enqueueReward := func(ctx context.Context, args execution.QuestRewardArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, args)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, execution.NewQuestRewardWorker(ledgerSvc, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
		Logger:  logger,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, args execution.QuestRewardArgs) error {
		_, err := riverClient.Insert(ctx, args, nil)
		return err
	}
	insertMu.Unlock()

	apiRouter, err := buildRouter(cfg, pool, manager, ledgerSvc, taskRepo, enqueueReward, logger)
	if err != nil {
		slog.Error("Failed to build router", "error", err)
		os.Exit(1)
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(apiRouter)

	// Start River client (processes jobs)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	serverAddr := "0.0.0.0:" + cfg.Port
	slog.Info("Starting HTTP server", "addr", serverAddr)
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
