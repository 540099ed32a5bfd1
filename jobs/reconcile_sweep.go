package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/meetledger/meetledger/internal/jobs"
	"github.com/meetledger/meetledger/internal/ledger"
	"github.com/meetledger/meetledger/internal/shared"
)

const (
	sweepLockTTL = 30 * time.Minute

	// balanceLockTTL bounds the per-key lock held while one key recomputes.
	balanceLockTTL = time.Minute
)

// SweepStore enumerates the balance keys to recompute.
type SweepStore interface {
	ActiveBalanceKeys(ctx context.Context, since time.Time) ([]ledger.BalanceKeyRecord, error)
}

// Recomputer replays one (client, date) aggregate from its source rows.
type Recomputer interface {
	Recompute(ctx context.Context, clientID int64, date time.Time) (*ledger.DailyBalance, error)
}

// ReconcileSweepJob recomputes every active balance key so rows that drifted
// from their source meetings converge back to the canonical amounts.
type ReconcileSweepJob struct {
	Store   SweepStore
	Ledger  Recomputer
	Redis   *redis.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Workers int
}

// NewReconcileSweepJob initialises the sweep handler.
func NewReconcileSweepJob(store SweepStore, ledgerSvc Recomputer, rdb *redis.Client, logger *slog.Logger, metrics *jobmetrics.Metrics, workers int) *ReconcileSweepJob {
	return &ReconcileSweepJob{
		Store:   store,
		Ledger:  ledgerSvc,
		Redis:   rdb,
		Logger:  logger,
		Metrics: metrics,
		Workers: workers,
	}
}

// Handle executes the sweep.
func (j *ReconcileSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil || j.Ledger == nil {
		return errors.New("reconcile sweep: handler not configured")
	}
	var payload ReconcileSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	logger := j.logger()

	mutex := shared.NewMutex(j.Redis, shared.SweepLockKey(), uuid.NewString(), sweepLockTTL)
	if j.Redis != nil {
		acquired, err := mutex.TryLock(ctx)
		if err != nil {
			return err
		}
		if !acquired {
			logger.Info("sweep already running elsewhere, skipping")
			return nil
		}
		defer func() {
			if err := mutex.Unlock(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("release sweep lock", slog.Any("error", err))
			}
		}()
	}

	tracker := j.metrics().Track(TaskLedgerReconcileSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := time.Now()
	logger.Info("starting reconcile sweep", slog.Time("since", payload.Since))

	keys, err := j.Store.ActiveBalanceKeys(ctx, payload.Since)
	if err != nil {
		resultErr = err
		logger.Error("list balance keys", slog.Any("error", err))
		return resultErr
	}

	workers := j.Workers
	if workers <= 0 {
		workers = 4
	}

	token := uuid.NewString()
	var recomputed, failed, skipped atomic.Int64
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for _, key := range keys {
		group.Go(func() error {
			if j.Redis != nil {
				keyLock := shared.NewMutex(j.Redis,
					shared.BalanceLockKey(key.ClientID, key.Date.Format(time.DateOnly)),
					token, balanceLockTTL)
				held, err := keyLock.TryLock(groupCtx)
				if err == nil && !held {
					// Another writer is recomputing this key right now;
					// recomputes converge, so the key can be skipped.
					skipped.Add(1)
					return nil
				}
				if err == nil {
					defer func() {
						if err := keyLock.Unlock(context.WithoutCancel(groupCtx)); err != nil {
							logger.Warn("release balance lock", slog.Any("error", err))
						}
					}()
				}
			}
			if _, err := j.Ledger.Recompute(groupCtx, key.ClientID, key.Date); err != nil {
				failed.Add(1)
				logger.Warn("recompute failed",
					slog.Int64("client_id", key.ClientID),
					slog.Time("balance_date", key.Date),
					slog.Any("error", err),
				)
				return nil
			}
			recomputed.Add(1)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		resultErr = err
		return resultErr
	}

	if failed.Load() > 0 {
		resultErr = errors.New("reconcile sweep: some keys failed to recompute")
	}
	logger.Info("completed reconcile sweep",
		slog.Int("keys", len(keys)),
		slog.Int64("recomputed", recomputed.Load()),
		slog.Int64("skipped", skipped.Load()),
		slog.Int64("failed", failed.Load()),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *ReconcileSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerReconcileSweep))
	}
	return slog.Default().With(slog.String("job", TaskLedgerReconcileSweep))
}

func (j *ReconcileSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}
