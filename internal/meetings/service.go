package meetings

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetledger/meetledger/internal/clients"
	"github.com/meetledger/meetledger/internal/ledger"
	"github.com/meetledger/meetledger/internal/platform/db"
	"github.com/meetledger/meetledger/internal/shared"
)

// LedgerDispatcher applies meeting lifecycle events to the ledger inside the
// caller's transaction.
type LedgerDispatcher interface {
	ApplyMeetingEventTx(ctx context.Context, tx pgx.Tx, ev ledger.MeetingEvent) ([]ledger.DailyBalance, error)
	PublishBalanceChanges(ctx context.Context, updated []ledger.DailyBalance)
}

// Service handles meeting lifecycle logic. Every mutation runs the ledger
// engine in the same transaction as the meeting write.
type Service struct {
	pool   *pgxpool.Pool
	ledger LedgerDispatcher
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(pool *pgxpool.Pool, dispatcher LedgerDispatcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{pool: pool, ledger: dispatcher, logger: logger}
}

// CreateMeeting schedules a meeting for a client and recomputes the affected
// balances atomically. Blocked clients may not create meetings.
func (s *Service) CreateMeeting(ctx context.Context, input CreateMeetingInput) (*Meeting, error) {
	if input.ParticipantCount < 0 {
		return nil, fmt.Errorf("meetings: participant count must not be negative")
	}
	if !input.Category.Valid() {
		return nil, fmt.Errorf("meetings: unknown category %q", input.Category)
	}

	var meeting *Meeting
	var updated []ledger.DailyBalance
	err := db.WithTxRetry(ctx, s.pool, func(tx pgx.Tx) error {
		owner, err := clients.NewRepository(tx).GetClient(ctx, input.OwnerID)
		if err != nil {
			return fmt.Errorf("meetings: resolve owner %d: %w", input.OwnerID, err)
		}
		if owner.Blocked {
			return fmt.Errorf("meetings: owner %d: %w", input.OwnerID, shared.ErrClientBlocked)
		}

		meeting, err = NewRepository(tx).CreateMeeting(ctx, input)
		if err != nil {
			return fmt.Errorf("meetings: create: %w", err)
		}

		updated, err = s.ledger.ApplyMeetingEventTx(ctx, tx, ledger.MeetingEvent{
			EventID:   uuid.NewString(),
			Op:        ledger.OpInsert,
			MeetingID: meeting.ID,
			Current:   meeting.snapshot(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.ledger.PublishBalanceChanges(ctx, updated)
	return meeting, nil
}

// UpdateMeeting mutates a meeting and recomputes every key the edit touches,
// including the previous date when the meeting moved.
func (s *Service) UpdateMeeting(ctx context.Context, id int64, input UpdateMeetingInput) (*Meeting, error) {
	if input.ParticipantCount < 0 {
		return nil, fmt.Errorf("meetings: participant count must not be negative")
	}
	if !input.Category.Valid() {
		return nil, fmt.Errorf("meetings: unknown category %q", input.Category)
	}

	var meeting *Meeting
	var updated []ledger.DailyBalance
	err := db.WithTxRetry(ctx, s.pool, func(tx pgx.Tx) error {
		repo := NewRepository(tx)
		previous, err := repo.GetMeetingForUpdate(ctx, id)
		if err != nil {
			return err
		}

		meeting, err = repo.UpdateMeeting(ctx, id, input)
		if err != nil {
			return fmt.Errorf("meetings: update %d: %w", id, err)
		}

		updated, err = s.ledger.ApplyMeetingEventTx(ctx, tx, ledger.MeetingEvent{
			EventID:   uuid.NewString(),
			Op:        ledger.OpUpdate,
			MeetingID: id,
			Current:   meeting.snapshot(),
			Previous:  previous.snapshot(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.ledger.PublishBalanceChanges(ctx, updated)
	return meeting, nil
}

// MarkStatus sets the lifecycle status; moving into the exclusion set is the
// soft-removal path and recomputes the owner's balance for the billing date.
func (s *Service) MarkStatus(ctx context.Context, id int64, status ledger.MeetingStatus) (*Meeting, error) {
	var meeting *Meeting
	var updated []ledger.DailyBalance
	err := db.WithTxRetry(ctx, s.pool, func(tx pgx.Tx) error {
		repo := NewRepository(tx)
		previous, err := repo.GetMeetingForUpdate(ctx, id)
		if err != nil {
			return err
		}

		meeting, err = repo.SetStatus(ctx, id, status)
		if err != nil {
			return fmt.Errorf("meetings: set status %d: %w", id, err)
		}

		updated, err = s.ledger.ApplyMeetingEventTx(ctx, tx, ledger.MeetingEvent{
			EventID:   uuid.NewString(),
			Op:        ledger.OpUpdate,
			MeetingID: id,
			Current:   meeting.snapshot(),
			Previous:  previous.snapshot(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.ledger.PublishBalanceChanges(ctx, updated)
	return meeting, nil
}

// DeleteMeeting hard-removes a meeting and recomputes the owner's balance
// from the remaining meetings for that date.
func (s *Service) DeleteMeeting(ctx context.Context, id int64) error {
	var updated []ledger.DailyBalance
	err := db.WithTxRetry(ctx, s.pool, func(tx pgx.Tx) error {
		repo := NewRepository(tx)
		previous, err := repo.GetMeetingForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := repo.DeleteMeeting(ctx, id); err != nil {
			return err
		}

		updated, err = s.ledger.ApplyMeetingEventTx(ctx, tx, ledger.MeetingEvent{
			EventID:   uuid.NewString(),
			Op:        ledger.OpDelete,
			MeetingID: id,
			Previous:  previous.snapshot(),
		})
		return err
	})
	if err != nil {
		return err
	}
	s.ledger.PublishBalanceChanges(ctx, updated)
	return nil
}

// GetMeeting fetches one meeting.
func (s *Service) GetMeeting(ctx context.Context, id int64) (*Meeting, error) {
	return NewRepository(s.pool).GetMeeting(ctx, id)
}

// ListMeetings returns meetings matching the filter.
func (s *Service) ListMeetings(ctx context.Context, req ListMeetingsRequest) ([]Meeting, error) {
	return NewRepository(s.pool).ListMeetings(ctx, req)
}
