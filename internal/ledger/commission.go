package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meetledger/meetledger/internal/clients"
)

// resaleAggregate computes the co-host's receivable for one date: the flat
// per-participant resale rate applied across all qualifying meetings of all
// the co-host's sub-clients, not just the sub-client whose event fired. It
// also rewrites the distinct upstream-liability aggregate for the same
// volume at the operator rate.
//
// Recomputing from the full sub-tree is what makes co-host balances converge
// regardless of which sub-client's edit arrived last.
func (e *Engine) resaleAggregate(ctx context.Context, cohost *clients.Client, date time.Time) (decimal.Decimal, int, error) {
	participants, meetings, err := e.store.QualifyingSubTree(ctx, cohost.ID, date)
	if err != nil {
		return decimal.Decimal{}, 0, fmt.Errorf("ledger: sub-tree volume %d/%s: %w", cohost.ID, date.Format(time.DateOnly), err)
	}

	resaleRate, err := e.resolver.ResaleRate(cohost)
	if err != nil {
		return decimal.Decimal{}, 0, err
	}
	receivable := resaleRate.Mul(decimal.NewFromInt(int64(participants)))

	// The co-host's own dues to the platform for the same volume are a second,
	// separate aggregate at the operator-set rate.
	liability := &CoHostLiability{
		CoHostID:         cohost.ID,
		Date:             date,
		ParticipantTotal: participants,
		Amount:           e.operatorRate.Mul(decimal.NewFromInt(int64(participants))),
	}
	if err := e.store.UpsertLiability(ctx, liability); err != nil {
		return decimal.Decimal{}, 0, fmt.Errorf("ledger: upsert liability %d/%s: %w", cohost.ID, date.Format(time.DateOnly), err)
	}

	return receivable, meetings, nil
}
