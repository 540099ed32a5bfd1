package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meetledger/meetledger/internal/shared"
)

// reallocateAdvance re-derives the advance-covered portion for one
// (client, date) key. Like the charge itself, consumption is recomputed, not
// adjusted incrementally: whatever this date previously consumed is first
// returned to its advance, then the new charge is allocated afresh from the
// oldest active advance whose validity window covers the date. Deleting the
// underlying meeting therefore restores
// the advance exactly, and replaying the same state allocates the same
// amount.
func (e *Engine) reallocateAdvance(ctx context.Context, clientID int64, date time.Time, gross decimal.Decimal) (decimal.Decimal, *int64, error) {
	if err := e.releasePriorConsumption(ctx, clientID, date); err != nil {
		return decimal.Decimal{}, nil, err
	}

	charge := gross
	if charge.IsNegative() {
		charge = decimal.Zero
	}
	if charge.IsZero() {
		return decimal.Zero, nil, nil
	}

	advance, err := e.store.OldestCoveringAdvance(ctx, clientID, date)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return decimal.Zero, nil, nil
		}
		return decimal.Decimal{}, nil, fmt.Errorf("ledger: covering advance for %d: %w", clientID, err)
	}

	covered := decimal.Min(charge, advance.Remaining)
	if !covered.IsPositive() {
		return decimal.Zero, nil, nil
	}

	advance.Remaining = advance.Remaining.Sub(covered)
	if advance.Remaining.IsNegative() {
		// Never allowed to happen; recognise the full charge out-of-pocket
		// instead of persisting a negative balance.
		e.logger.Error("advance allocation aborted",
			slog.Int64("advance_id", advance.ID),
			slog.Int64("client_id", clientID),
			slog.String("remaining", advance.Remaining.String()),
			slog.Any("error", shared.ErrNegativeBalance))
		return decimal.Zero, nil, nil
	}
	if advance.Remaining.IsZero() {
		advance.Active = false
	}
	if err := e.store.UpdateAdvance(ctx, advance); err != nil {
		return decimal.Decimal{}, nil, fmt.Errorf("ledger: update advance %d: %w", advance.ID, err)
	}

	id := advance.ID
	return covered, &id, nil
}

// releasePriorConsumption returns the date's previously allocated credit to
// the advance that provided it, reactivating an exhausted advance so the
// funds are available again.
func (e *Engine) releasePriorConsumption(ctx context.Context, clientID int64, date time.Time) error {
	prior, err := e.store.GetDailyBalance(ctx, clientID, date)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("ledger: prior balance %d/%s: %w", clientID, date.Format(time.DateOnly), err)
	}
	if prior.AdvanceID == nil || !prior.AdvanceCovered.IsPositive() {
		return nil
	}

	advance, err := e.store.GetAdvance(ctx, *prior.AdvanceID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("ledger: balance %d/%s references missing advance %d: %w",
				clientID, date.Format(time.DateOnly), *prior.AdvanceID, shared.ErrDataIntegrity)
		}
		return fmt.Errorf("ledger: load advance %d: %w", *prior.AdvanceID, err)
	}

	advance.Remaining = advance.Remaining.Add(prior.AdvanceCovered)
	if advance.Remaining.IsPositive() {
		advance.Active = true
	}
	if err := e.store.UpdateAdvance(ctx, advance); err != nil {
		return fmt.Errorf("ledger: restore advance %d: %w", advance.ID, err)
	}
	return nil
}
