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

// IntegrityStore surfaces referential problems in the meeting data.
type IntegrityStore interface {
	DanglingMeetings(ctx context.Context, limit int) ([]int64, error)
}

// IntegrityScanJob reports meetings whose owner client no longer exists. Such
// rows are skipped during balance recomputation, so operators need to see them.
type IntegrityScanJob struct {
	Store   IntegrityStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIntegrityScanJob initialises the integrity scan handler.
func NewIntegrityScanJob(store IntegrityStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityScanJob {
	return &IntegrityScanJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle executes the scan.
func (j *IntegrityScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("integrity scan: handler not configured")
	}
	var payload IntegrityScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = 500
	}

	tracker := j.metrics().Track(TaskLedgerIntegrityScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := time.Now()
	logger := j.logger()
	logger.Info("starting integrity scan", slog.Int("limit", payload.Limit))

	meetingIDs, err := j.Store.DanglingMeetings(ctx, payload.Limit)
	if err != nil {
		resultErr = err
		logger.Error("scan failed", slog.Any("error", err))
		return resultErr
	}

	for _, id := range meetingIDs {
		logger.Warn("meeting references missing client", slog.Int64("meeting_id", id))
	}
	j.metrics().AddDangling(len(meetingIDs))

	logger.Info("completed integrity scan",
		slog.Int("dangling", len(meetingIDs)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *IntegrityScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrityScan))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrityScan))
}

func (j *IntegrityScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}
