package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// TaskLedgerReconcileSweep recomputes every active balance key so that
	// drifted rows converge back to their canonical values.
	TaskLedgerReconcileSweep = "ledger:reconcile_sweep"

	// TaskLedgerIntegrityScan reports meetings that reference a missing
	// owner client.
	TaskLedgerIntegrityScan = "ledger:integrity_scan"

	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// ReconcileSweepPayload bounds the sweep to balances at or after Since when a
// non-zero date is provided. A zero Since sweeps every active key.
type ReconcileSweepPayload struct {
	Since time.Time `json:"since"`
}

// IntegrityScanPayload caps the number of dangling meetings reported per run.
type IntegrityScanPayload struct {
	Limit int `json:"limit"`
}

// IdempotencyCleanupPayload carries the retention window for stored keys.
type IdempotencyCleanupPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

func NewReconcileSweepTask(payload ReconcileSweepPayload) (*asynq.Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("jobs: marshal reconcile sweep payload: %w", err)
	}
	return asynq.NewTask(TaskLedgerReconcileSweep, raw, asynq.MaxRetry(3)), nil
}

func NewIntegrityScanTask(payload IntegrityScanPayload) (*asynq.Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("jobs: marshal integrity scan payload: %w", err)
	}
	return asynq.NewTask(TaskLedgerIntegrityScan, raw, asynq.MaxRetry(3)), nil
}

func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("jobs: marshal idempotency cleanup payload: %w", err)
	}
	return asynq.NewTask(TaskIdempotencyCleanup, raw, asynq.MaxRetry(2)), nil
}
