package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meetledger/meetledger/internal/jobs"
)

// IdempotencyCleaner prunes stored idempotency keys older than a cutoff.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob keeps the idempotency_keys table from growing without
// bound. Payment submissions only need replay protection for a bounded window.
type IdempotencyCleanupJob struct {
	Store   IdempotencyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob initialises the cleanup handler.
func NewIdempotencyCleanupJob(store IdempotencyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle executes the cleanup.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.OlderThan <= 0 {
		payload.OlderThan = 30 * 24 * time.Hour
	}

	tracker := j.metrics().Track(TaskIdempotencyCleanup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	deleted, err := j.Store.Cleanup(ctx, payload.OlderThan)
	if err != nil {
		resultErr = err
		j.logger().Error("cleanup failed", slog.Any("error", err))
		return resultErr
	}
	j.logger().Info("completed idempotency cleanup", slog.Int64("deleted", deleted))
	return resultErr
}

func (j *IdempotencyCleanupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskIdempotencyCleanup))
	}
	return slog.Default().With(slog.String("job", TaskIdempotencyCleanup))
}

func (j *IdempotencyCleanupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}
