package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meetledger/meetledger/internal/shared"
)

// ComputeNetDue derives the displayable outstanding position: the sum of
// owed portions for dates strictly after the paid-through watermark.
// Rejected payments are already folded in through their restoring
// adjustments, so they are not added again here.
func (e *Engine) ComputeNetDue(ctx context.Context, clientID int64) (*NetDue, error) {
	if _, err := e.store.GetClient(ctx, clientID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("ledger: net due for unknown client %d: %w", clientID, err)
		}
		return nil, fmt.Errorf("ledger: load client %d: %w", clientID, err)
	}

	watermark, err := e.store.Watermark(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("ledger: watermark for %d: %w", clientID, err)
	}

	balances, err := e.store.BalancesAfter(ctx, clientID, watermark)
	if err != nil {
		return nil, fmt.Errorf("ledger: balances for %d: %w", clientID, err)
	}

	out := &NetDue{ClientID: clientID, Amount: decimal.Zero, PaidThrough: watermark}
	for _, b := range balances {
		out.Amount = out.Amount.Add(b.Owed)
		out.Breakdown = append(out.Breakdown, DateDue{Date: b.Date, Owed: b.Owed})
	}
	return out, nil
}
