package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meetledger/meetledger/internal/clients"
	"github.com/meetledger/meetledger/internal/observability"
	"github.com/meetledger/meetledger/internal/rates"
	"github.com/meetledger/meetledger/internal/shared"
)

// Store is the engine's view of persistence. All methods operate inside the
// transaction the engine was constructed for; the engine itself never begins
// or commits transactions.
type Store interface {
	GetClient(ctx context.Context, id int64) (*clients.Client, error)
	SubClientIDs(ctx context.Context, cohostID int64) ([]int64, error)

	QualifyingMeetings(ctx context.Context, clientID int64, date time.Time) ([]MeetingCharge, error)
	QualifyingSubTree(ctx context.Context, cohostID int64, date time.Time) (participants int, meetings int, err error)

	GetDailyBalance(ctx context.Context, clientID int64, date time.Time) (*DailyBalance, error)
	UpsertDailyBalance(ctx context.Context, balance *DailyBalance) error
	BalancesAfter(ctx context.Context, clientID int64, after *time.Time) ([]DailyBalance, error)

	GetAdvance(ctx context.Context, id int64) (*Advance, error)
	OldestCoveringAdvance(ctx context.Context, clientID int64, date time.Time) (*Advance, error)
	UpdateAdvance(ctx context.Context, advance *Advance) error
	InsertAdvance(ctx context.Context, input AdvanceInput) (*Advance, error)

	SumAdjustments(ctx context.Context, clientID int64, date time.Time) (decimal.Decimal, error)
	InsertAdjustment(ctx context.Context, input AdjustmentInput) (*Adjustment, error)
	ListAdjustments(ctx context.Context, clientID int64) ([]Adjustment, error)

	InsertPayment(ctx context.Context, input PaymentInput) (*Payment, error)
	ListPayments(ctx context.Context, clientID int64) ([]Payment, error)
	Watermark(ctx context.Context, clientID int64) (*time.Time, error)
	AdvanceWatermark(ctx context.Context, clientID int64, through time.Time) error

	UpsertLiability(ctx context.Context, liability *CoHostLiability) error

	LockBalanceKey(ctx context.Context, clientID int64, date time.Time) error
}

// Engine recomputes balances for explicit (client, date) keys. One engine is
// built per unit of work over a transaction-scoped Store.
type Engine struct {
	store        Store
	resolver     *rates.Resolver
	operatorRate decimal.Decimal
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// NewEngine constructs an engine over the given store. Metrics may be nil.
func NewEngine(store Store, defaults rates.Defaults, operatorRate decimal.Decimal, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:        store,
		resolver:     rates.NewResolver(store, defaults),
		operatorRate: operatorRate,
		logger:       logger,
		metrics:      metrics,
	}
}

type balanceKey struct {
	clientID int64
	date     time.Time
}

// ApplyMeetingEvent recomputes every aggregate affected by one meeting
// lifecycle event: the owner's balance for each affected date, then — when
// the owner resells through a co-host — the co-host's balance and upstream
// liability for the same dates. Owner keys are always processed before
// co-host keys so lock acquisition has a fixed order.
//
// A missing owner client is a data integrity defect: it is logged and
// counted, but does not abort the surrounding transaction, since the
// triggering mutation must still land.
func (e *Engine) ApplyMeetingEvent(ctx context.Context, ev MeetingEvent) ([]DailyBalance, error) {
	ownerKeys := affectedKeys(ev)
	if len(ownerKeys) == 0 {
		return nil, fmt.Errorf("ledger: event %s carries no snapshots", ev.EventID)
	}

	var updated []DailyBalance
	cohostKeys := make([]balanceKey, 0, len(ownerKeys))
	seenCohost := map[balanceKey]struct{}{}

	for _, key := range ownerKeys {
		balance, err := e.Recompute(ctx, key.clientID, key.date)
		if err != nil {
			if errors.Is(err, shared.ErrDataIntegrity) {
				e.logger.Error("meeting references missing client",
					slog.String("event_id", ev.EventID),
					slog.Int64("meeting_id", ev.MeetingID),
					slog.Int64("client_id", key.clientID))
				e.metrics.AddIntegrityError()
				continue
			}
			return nil, err
		}
		updated = append(updated, *balance)

		client, err := e.store.GetClient(ctx, key.clientID)
		if err != nil {
			return nil, fmt.Errorf("ledger: reload client %d: %w", key.clientID, err)
		}
		if client.ParentID != nil {
			ck := balanceKey{clientID: *client.ParentID, date: key.date}
			if _, ok := seenCohost[ck]; !ok {
				seenCohost[ck] = struct{}{}
				cohostKeys = append(cohostKeys, ck)
			}
		}
	}

	sortKeys(cohostKeys)
	for _, key := range cohostKeys {
		balance, err := e.Recompute(ctx, key.clientID, key.date)
		if err != nil {
			if errors.Is(err, shared.ErrDataIntegrity) {
				e.logger.Error("sub-client references missing co-host",
					slog.String("event_id", ev.EventID),
					slog.Int64("cohost_id", key.clientID))
				e.metrics.AddIntegrityError()
				continue
			}
			return nil, err
		}
		updated = append(updated, *balance)
	}

	return updated, nil
}

// affectedKeys derives the (client, date) keys an event touches: the current
// owner and date, plus the previous owner and date when an update moved the
// meeting. Keys are sorted for deterministic lock ordering.
func affectedKeys(ev MeetingEvent) []balanceKey {
	seen := map[balanceKey]struct{}{}
	var keys []balanceKey
	add := func(s *MeetingSnapshot) {
		if s == nil {
			return
		}
		k := balanceKey{clientID: s.OwnerID, date: s.BillingDate()}
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	add(ev.Current)
	add(ev.Previous)
	sortKeys(keys)
	return keys
}

func sortKeys(keys []balanceKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].clientID != keys[j].clientID {
			return keys[i].clientID < keys[j].clientID
		}
		return keys[i].date.Before(keys[j].date)
	})
}
