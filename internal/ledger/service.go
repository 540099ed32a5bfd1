package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/meetledger/meetledger/internal/notify"
	"github.com/meetledger/meetledger/internal/observability"
	"github.com/meetledger/meetledger/internal/platform/db"
	"github.com/meetledger/meetledger/internal/rates"
	"github.com/meetledger/meetledger/internal/shared"
)

// Service exposes the ledger to transports and collaborating modules. It owns
// transaction boundaries: each applied event, recompute, or payment decision
// runs in one transaction that either fully commits or leaves no partial
// state.
type Service struct {
	pool         *pgxpool.Pool
	cache        *redis.Client
	cacheTTL     time.Duration
	defaults     rates.Defaults
	operatorRate decimal.Decimal
	logger       *slog.Logger
	metrics      *observability.Metrics
	builder      *notify.Builder
	publisher    notify.Publisher
	idempotency  *shared.IdempotencyStore
}

// ServiceParams groups the service dependencies.
type ServiceParams struct {
	Pool         *pgxpool.Pool
	Cache        *redis.Client
	CacheTTL     time.Duration
	Defaults     rates.Defaults
	OperatorRate decimal.Decimal
	Logger       *slog.Logger
	Metrics      *observability.Metrics
	Builder      *notify.Builder
	Publisher    notify.Publisher
	Idempotency  *shared.IdempotencyStore
}

// NewService builds Service instance.
func NewService(p ServiceParams) *Service {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		pool:         p.Pool,
		cache:        p.Cache,
		cacheTTL:     p.CacheTTL,
		defaults:     p.Defaults,
		operatorRate: p.OperatorRate,
		logger:       logger,
		metrics:      p.Metrics,
		builder:      p.Builder,
		publisher:    p.Publisher,
		idempotency:  p.Idempotency,
	}
}

func (s *Service) engine(q DB) *Engine {
	return NewEngine(NewRepository(q), s.defaults, s.operatorRate, s.logger, s.metrics)
}

// ApplyMeetingEventTx runs the engine for a meeting lifecycle event inside
// the caller's transaction, so the meeting mutation and the resulting
// balance recomputation commit atomically.
func (s *Service) ApplyMeetingEventTx(ctx context.Context, tx pgx.Tx, ev MeetingEvent) ([]DailyBalance, error) {
	return s.engine(tx).ApplyMeetingEvent(ctx, ev)
}

// PublishBalanceChanges invalidates caches and emits notification payloads
// for updated balances. Call after the owning transaction has committed.
func (s *Service) PublishBalanceChanges(ctx context.Context, updated []DailyBalance) {
	for _, b := range updated {
		s.invalidateNetDue(ctx, b.ClientID)
		if s.builder != nil && s.publisher != nil {
			s.publisher.Publish(ctx, s.builder.BalanceChanged(b.ClientID, b.Date, b.Owed))
		}
	}
}

// Recompute rebuilds one (client, date) aggregate in its own transaction,
// retrying isolation conflicts. Exposed for deletion handlers and admin
// correction tools.
func (s *Service) Recompute(ctx context.Context, clientID int64, date time.Time) (*DailyBalance, error) {
	var balance *DailyBalance
	err := db.WithTxRetry(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		balance, err = s.engine(tx).Recompute(ctx, clientID, date)
		return err
	})
	s.metrics.ObserveRecompute("manual", err)
	if err != nil {
		return nil, err
	}
	s.PublishBalanceChanges(ctx, []DailyBalance{*balance})
	return balance, nil
}

// NetDue computes the client's outstanding position, serving from cache when
// fresh.
func (s *Service) NetDue(ctx context.Context, clientID int64) (*NetDue, error) {
	if cached := s.cachedNetDue(ctx, clientID); cached != nil {
		return cached, nil
	}

	var out *NetDue
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		out, err = s.engine(tx).ComputeNetDue(ctx, clientID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.storeNetDue(ctx, out)
	return out, nil
}

// ApplyPaymentEvent processes an approval or rejection. The event id makes
// redelivery safe: a duplicate is reported as a conflict, never applied
// twice.
func (s *Service) ApplyPaymentEvent(ctx context.Context, ev PaymentEvent) (*Payment, error) {
	if ev.EventID != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, ev.EventID, "ledger.payments"); err != nil {
			return nil, err
		}
	}

	var payment *Payment
	err := db.WithTxRetry(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		payment, err = s.engine(tx).ApplyPaymentEvent(ctx, ev)
		return err
	})
	if err != nil {
		if ev.EventID != "" && s.idempotency != nil {
			if delErr := s.idempotency.Delete(ctx, ev.EventID); delErr != nil {
				s.logger.Warn("rollback idempotency key", slog.String("event_id", ev.EventID), slog.Any("error", delErr))
			}
		}
		return nil, err
	}

	s.invalidateNetDue(ctx, ev.ClientID)
	if s.builder != nil && s.publisher != nil {
		s.publisher.Publish(ctx, s.builder.PaymentReviewed(ev.ClientID, ev.Amount, ev.Status == PaymentApproved, ev.Reason))
	}
	return payment, nil
}

// AddAdjustment appends a manual correction and recomputes its key in the
// same transaction.
func (s *Service) AddAdjustment(ctx context.Context, input AdjustmentInput) (*Adjustment, *DailyBalance, error) {
	if input.Amount.IsZero() {
		return nil, nil, fmt.Errorf("ledger: adjustment amount must be non-zero")
	}
	var adjustment *Adjustment
	var balance *DailyBalance
	err := db.WithTxRetry(ctx, s.pool, func(tx pgx.Tx) error {
		repo := NewRepository(tx)
		var err error
		adjustment, err = repo.InsertAdjustment(ctx, input)
		if err != nil {
			return err
		}
		balance, err = s.engine(tx).Recompute(ctx, input.ClientID, input.Date)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	s.PublishBalanceChanges(ctx, []DailyBalance{*balance})
	return adjustment, balance, nil
}

// RecordAdvance registers new prepaid credit for a client.
func (s *Service) RecordAdvance(ctx context.Context, input AdvanceInput) (*Advance, error) {
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("ledger: advance amount must be positive")
	}
	var advance *Advance
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		repo := NewRepository(tx)
		if _, err := repo.GetClient(ctx, input.ClientID); err != nil {
			return err
		}
		var err error
		advance, err = repo.InsertAdvance(ctx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return advance, nil
}

// Balances lists every balance row for a client.
func (s *Service) Balances(ctx context.Context, clientID int64) ([]DailyBalance, error) {
	return NewRepository(s.pool).BalancesAfter(ctx, clientID, nil)
}

// Advances lists a client's advances.
func (s *Service) Advances(ctx context.Context, clientID int64) ([]Advance, error) {
	return NewRepository(s.pool).ListAdvances(ctx, clientID)
}

// Adjustments lists a client's adjustments.
func (s *Service) Adjustments(ctx context.Context, clientID int64) ([]Adjustment, error) {
	return NewRepository(s.pool).ListAdjustments(ctx, clientID)
}

// Payments lists a client's payments.
func (s *Service) Payments(ctx context.Context, clientID int64) ([]Payment, error) {
	return NewRepository(s.pool).ListPayments(ctx, clientID)
}

// Liabilities lists a co-host's upstream dues.
func (s *Service) Liabilities(ctx context.Context, cohostID int64) ([]CoHostLiability, error) {
	return NewRepository(s.pool).ListLiabilities(ctx, cohostID)
}

func netDueCacheKey(clientID int64) string {
	return fmt.Sprintf("ledger:netdue:%d", clientID)
}

func (s *Service) cachedNetDue(ctx context.Context, clientID int64) *NetDue {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, netDueCacheKey(clientID)).Bytes()
	if err != nil {
		return nil
	}
	var out NetDue
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return &out
}

func (s *Service) storeNetDue(ctx context.Context, due *NetDue) {
	if s.cache == nil || due == nil {
		return
	}
	raw, err := json.Marshal(due)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, netDueCacheKey(due.ClientID), raw, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("cache net due", slog.Int64("client_id", due.ClientID), slog.Any("error", err))
	}
}

func (s *Service) invalidateNetDue(ctx context.Context, clientID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, netDueCacheKey(clientID)).Err(); err != nil {
		s.logger.Warn("invalidate net due cache", slog.Int64("client_id", clientID), slog.Any("error", err))
	}
}
