package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetledger/meetledger/internal/shared"
)

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// retryAttempts bounds serialization-failure retries. Recomputation is
// idempotent, so rerunning the whole transaction is safe.
const retryAttempts = 3

// OnSerializationRetry, when set, is invoked each time WithTxRetry reruns a
// transaction after a serialization or deadlock failure.
var OnSerializationRetry func()

// WithTxRetry runs fn like WithTx but retries transactions that lose a
// serialization or deadlock race, mapping the final failure to
// shared.ErrConcurrencyConflict.
func WithTxRetry(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		err = WithTx(ctx, pool, fn)
		if err == nil || !IsSerializationFailure(err) {
			return err
		}
		if OnSerializationRetry != nil {
			OnSerializationRetry()
		}
	}
	return fmt.Errorf("platform/db: %w: %v", shared.ErrConcurrencyConflict, err)
}

// IsSerializationFailure reports whether err is a retryable isolation conflict.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// 40001 serialization_failure, 40P01 deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
