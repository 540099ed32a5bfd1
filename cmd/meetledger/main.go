package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"

	"github.com/meetledger/meetledger/internal/app"
	"github.com/meetledger/meetledger/internal/clients"
	"github.com/meetledger/meetledger/internal/ledger"
	"github.com/meetledger/meetledger/internal/meetings"
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
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
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
	idempotencyStore := shared.NewIdempotencyStore(pool)

	defaults := rates.Defaults{
		Domestic: cfg.DefaultRate(cfg.RateDomesticDefault),
		Foreign:  cfg.DefaultRate(cfg.RateForeignDefault),
		Reseller: cfg.DefaultRate(cfg.RateResellerDefault),
	}

	notifyBuilder := notify.NewBuilder(language.English)
	notifyPublisher := notify.LogPublisher{Logger: logger}

	ledgerService := ledger.NewService(ledger.ServiceParams{
		Pool:         pool,
		Cache:        redisClient,
		CacheTTL:     cfg.NetDueCacheTTL,
		Defaults:     defaults,
		OperatorRate: cfg.DefaultRate(cfg.OperatorRate),
		Logger:       logger,
		Metrics:      metrics,
		Builder:      notifyBuilder,
		Publisher:    notifyPublisher,
		Idempotency:  idempotencyStore,
	})
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	clientsRepo := clients.NewRepository(pool)
	clientsService := clients.NewService(clientsRepo)
	clientsHandler := clients.NewHandler(logger, clientsService)

	meetingsService := meetings.NewService(pool, ledgerService, logger)
	meetingsHandler := meetings.NewHandler(logger, meetingsService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, jobsClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		ClientsHandler:  clientsHandler,
		MeetingsHandler: meetingsHandler,
		LedgerHandler:   ledgerHandler,
		JobsHandler:     jobsHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
