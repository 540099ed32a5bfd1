package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meetledger/meetledger/internal/shared"
)

// Recompute rebuilds the DailyBalance row for one (client, date) key from the
// current state of all qualifying meetings on that date plus adjustments,
// replacing any prior value. For a co-host the row additionally carries the
// resale aggregate over all sub-clients' qualifying meetings, and the
// separate upstream liability aggregate is rewritten as well.
//
// The function is idempotent: with no intervening change, a second call
// produces an identical row.
func (e *Engine) Recompute(ctx context.Context, clientID int64, date time.Time) (*DailyBalance, error) {
	date = DateOf(date)

	if err := e.store.LockBalanceKey(ctx, clientID, date); err != nil {
		return nil, fmt.Errorf("ledger: lock key %d/%s: %w", clientID, date.Format(time.DateOnly), err)
	}

	client, err := e.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("ledger: client %d: %w", clientID, shared.ErrDataIntegrity)
		}
		return nil, fmt.Errorf("ledger: load client %d: %w", clientID, err)
	}

	charges, err := e.store.QualifyingMeetings(ctx, clientID, date)
	if err != nil {
		return nil, fmt.Errorf("ledger: qualifying meetings %d/%s: %w", clientID, date.Format(time.DateOnly), err)
	}

	total := decimal.Zero
	for _, charge := range charges {
		rate, err := e.resolver.RateFor(client, charge.Category)
		if err != nil {
			return nil, err
		}
		total = total.Add(rate.Mul(decimal.NewFromInt(int64(charge.Participants))))
	}
	count := len(charges)

	if client.IsCoHost {
		resale, subMeetings, err := e.resaleAggregate(ctx, client, date)
		if err != nil {
			return nil, err
		}
		total = total.Add(resale)
		count += subMeetings
	}

	adjustments, err := e.store.SumAdjustments(ctx, clientID, date)
	if err != nil {
		return nil, fmt.Errorf("ledger: sum adjustments %d/%s: %w", clientID, date.Format(time.DateOnly), err)
	}
	gross := total.Add(adjustments)

	covered, advanceID, err := e.reallocateAdvance(ctx, clientID, date, gross)
	if err != nil {
		return nil, err
	}

	balance := &DailyBalance{
		ClientID:       clientID,
		Date:           date,
		TotalCharge:    gross,
		AdvanceCovered: covered,
		Owed:           gross.Sub(covered),
		MeetingCount:   count,
		AdvanceID:      advanceID,
	}
	if err := e.store.UpsertDailyBalance(ctx, balance); err != nil {
		return nil, fmt.Errorf("ledger: upsert balance %d/%s: %w", clientID, date.Format(time.DateOnly), err)
	}

	e.metrics.ObserveRecompute("aggregate", nil)
	return balance, nil
}
