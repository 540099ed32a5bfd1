package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"

	"github.com/meetledger/meetledger/internal/app"
	jobmetrics "github.com/meetledger/meetledger/internal/jobs"
	"github.com/meetledger/meetledger/internal/ledger"
	"github.com/meetledger/meetledger/internal/notify"
	"github.com/meetledger/meetledger/internal/observability"
	"github.com/meetledger/meetledger/internal/platform/cache"
	"github.com/meetledger/meetledger/internal/platform/db"
	"github.com/meetledger/meetledger/internal/rates"
	"github.com/meetledger/meetledger/internal/shared"
	"github.com/meetledger/meetledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolSettings{
		MaxConns:        cfg.PGMaxConns,
		ConnMaxLifetime: cfg.PGConnMaxLifetime,
	})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	db.OnSerializationRetry = metrics.AddConflictRetry
	jm := jobmetrics.NewMetrics(metrics.Registerer())
	idempotencyStore := shared.NewIdempotencyStore(pool)

	defaults := rates.Defaults{
		Domestic: cfg.DefaultRate(cfg.RateDomesticDefault),
		Foreign:  cfg.DefaultRate(cfg.RateForeignDefault),
		Reseller: cfg.DefaultRate(cfg.RateResellerDefault),
	}

	ledgerService := ledger.NewService(ledger.ServiceParams{
		Pool:         pool,
		Cache:        redisClient,
		CacheTTL:     cfg.NetDueCacheTTL,
		Defaults:     defaults,
		OperatorRate: cfg.DefaultRate(cfg.OperatorRate),
		Logger:       logger,
		Metrics:      metrics,
		Builder:      notify.NewBuilder(language.English),
		Publisher:    notify.LogPublisher{Logger: logger},
		Idempotency:  idempotencyStore,
	})
	ledgerRepo := ledger.NewRepository(pool)

	sweepJob := jobs.NewReconcileSweepJob(ledgerRepo, ledgerService, redisClient, logger, jm, cfg.SweepWorkers)
	integrityJob := jobs.NewIntegrityScanJob(ledgerRepo, logger, jm)
	cleanupJob := jobs.NewIdempotencyCleanupJob(idempotencyStore, logger, jm)

	sweepTask, err := jobs.NewReconcileSweepTask(jobs.ReconcileSweepPayload{})
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}
	integrityTask, err := jobs.NewIntegrityScanTask(jobs.IntegrityScanPayload{})
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(jobs.IdempotencyCleanupPayload{})
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.SweepWorkers,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerReconcileSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskLedgerIntegrityScan, Handler: integrityJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: fmt.Sprintf("0 %d * * *", cfg.SweepHourUTC), Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: fmt.Sprintf("30 %d * * *", cfg.SweepHourUTC), Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 4 * * 0", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(2)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
