package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/meetledger/meetledger/internal/jobs"
	"github.com/meetledger/meetledger/internal/ledger"
	"github.com/meetledger/meetledger/internal/shared"
)

type fakeSweepStore struct {
	keys []ledger.BalanceKeyRecord
	err  error
}

func (s *fakeSweepStore) ActiveBalanceKeys(ctx context.Context, since time.Time) ([]ledger.BalanceKeyRecord, error) {
	return s.keys, s.err
}

type fakeRecomputer struct {
	mu     sync.Mutex
	calls  []ledger.BalanceKeyRecord
	failOn int64
}

func (r *fakeRecomputer) Recompute(ctx context.Context, clientID int64, date time.Time) (*ledger.DailyBalance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, ledger.BalanceKeyRecord{ClientID: clientID, Date: date})
	if r.failOn != 0 && clientID == r.failOn {
		return nil, errors.New("boom")
	}
	return &ledger.DailyBalance{ClientID: clientID, Date: date}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testJobMetrics() *jobmetrics.Metrics {
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

func sweepTask(t *testing.T, payload ReconcileSweepPayload) *asynq.Task {
	t.Helper()
	task, err := NewReconcileSweepTask(payload)
	require.NoError(t, err)
	return task
}

func TestReconcileSweepRecomputesEveryKey(t *testing.T) {
	day := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	store := &fakeSweepStore{keys: []ledger.BalanceKeyRecord{
		{ClientID: 1, Date: day},
		{ClientID: 2, Date: day},
		{ClientID: 2, Date: day.AddDate(0, 0, 1)},
	}}
	recomputer := &fakeRecomputer{}

	job := NewReconcileSweepJob(store, recomputer, nil, testLogger(), testJobMetrics(), 2)
	err := job.Handle(context.Background(), sweepTask(t, ReconcileSweepPayload{}))
	require.NoError(t, err)
	require.Len(t, recomputer.calls, 3)
}

func TestReconcileSweepReportsFailedKeys(t *testing.T) {
	day := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	store := &fakeSweepStore{keys: []ledger.BalanceKeyRecord{
		{ClientID: 1, Date: day},
		{ClientID: 2, Date: day},
	}}
	recomputer := &fakeRecomputer{failOn: 2}

	job := NewReconcileSweepJob(store, recomputer, nil, testLogger(), testJobMetrics(), 1)
	err := job.Handle(context.Background(), sweepTask(t, ReconcileSweepPayload{}))
	require.Error(t, err)
	require.Len(t, recomputer.calls, 2)
}

func TestReconcileSweepSkipsKeysHeldByAnotherWriter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	day := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	store := &fakeSweepStore{keys: []ledger.BalanceKeyRecord{
		{ClientID: 1, Date: day},
		{ClientID: 2, Date: day},
	}}
	heldKey := shared.BalanceLockKey(2, day.Format(time.DateOnly))
	require.NoError(t, mr.Set(heldKey, "other-writer"))

	recomputer := &fakeRecomputer{}
	job := NewReconcileSweepJob(store, recomputer, rdb, testLogger(), testJobMetrics(), 2)
	err := job.Handle(context.Background(), sweepTask(t, ReconcileSweepPayload{}))
	require.NoError(t, err)

	require.Len(t, recomputer.calls, 1)
	require.Equal(t, int64(1), recomputer.calls[0].ClientID)

	got, err := mr.Get(heldKey)
	require.NoError(t, err)
	require.Equal(t, "other-writer", got)
}

func TestReconcileSweepStoreFailure(t *testing.T) {
	store := &fakeSweepStore{err: errors.New("db down")}
	job := NewReconcileSweepJob(store, &fakeRecomputer{}, nil, testLogger(), testJobMetrics(), 1)

	err := job.Handle(context.Background(), sweepTask(t, ReconcileSweepPayload{}))
	require.Error(t, err)
}

func TestReconcileSweepUnconfigured(t *testing.T) {
	var job *ReconcileSweepJob
	err := job.Handle(context.Background(), sweepTask(t, ReconcileSweepPayload{}))
	require.Error(t, err)
}

type fakeIntegrityStore struct {
	ids []int64
	err error
}

func (s *fakeIntegrityStore) DanglingMeetings(ctx context.Context, limit int) ([]int64, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.ids) {
		return s.ids[:limit], nil
	}
	return s.ids, nil
}

func TestIntegrityScanReportsDanglingMeetings(t *testing.T) {
	store := &fakeIntegrityStore{ids: []int64{4, 9}}
	job := NewIntegrityScanJob(store, testLogger(), testJobMetrics())

	task, err := NewIntegrityScanTask(IntegrityScanPayload{Limit: 10})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
}

func TestIntegrityScanStoreFailure(t *testing.T) {
	store := &fakeIntegrityStore{err: errors.New("db down")}
	job := NewIntegrityScanJob(store, testLogger(), testJobMetrics())

	task, err := NewIntegrityScanTask(IntegrityScanPayload{})
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), task))
}

type fakeCleaner struct {
	gotOlderThan time.Duration
	deleted      int64
}

func (c *fakeCleaner) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	c.gotOlderThan = olderThan
	return c.deleted, nil
}

func TestIdempotencyCleanupDefaultsRetention(t *testing.T) {
	cleaner := &fakeCleaner{deleted: 12}
	job := NewIdempotencyCleanupJob(cleaner, testLogger(), testJobMetrics())

	task, err := NewIdempotencyCleanupTask(IdempotencyCleanupPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 30*24*time.Hour, cleaner.gotOlderThan)
}
