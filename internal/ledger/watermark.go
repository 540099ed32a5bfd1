package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meetledger/meetledger/internal/shared"
)

// ApplyPaymentEvent records the review outcome of a submitted payment.
//
// Approval persists an immutable payment and advances the client's
// paid-through watermark, monotonically: an approval dated before the
// current watermark leaves it unchanged. Rejection never moves the watermark;
// it records the payment as rejected and appends an Adjustment restoring the
// rejected amount to the client's outstanding balance, recomputing the
// adjustment's key so the restored amount is immediately visible.
func (e *Engine) ApplyPaymentEvent(ctx context.Context, ev PaymentEvent) (*Payment, error) {
	if !ev.Amount.IsPositive() {
		return nil, fmt.Errorf("ledger: payment amount must be positive")
	}
	if _, err := e.store.GetClient(ctx, ev.ClientID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("ledger: payment for unknown client %d: %w", ev.ClientID, shared.ErrDataIntegrity)
		}
		return nil, fmt.Errorf("ledger: load client %d: %w", ev.ClientID, err)
	}

	switch ev.Status {
	case PaymentApproved:
		return e.approvePayment(ctx, ev)
	case PaymentRejected:
		return e.rejectPayment(ctx, ev)
	default:
		return nil, fmt.Errorf("ledger: unknown payment status %q", ev.Status)
	}
}

func (e *Engine) approvePayment(ctx context.Context, ev PaymentEvent) (*Payment, error) {
	payment, err := e.store.InsertPayment(ctx, PaymentInput{
		ClientID:    ev.ClientID,
		Amount:      ev.Amount,
		PaidThrough: DateOf(ev.PaidThrough),
		Status:      PaymentApproved,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: insert payment: %w", err)
	}
	if err := e.store.AdvanceWatermark(ctx, ev.ClientID, DateOf(ev.PaidThrough)); err != nil {
		return nil, fmt.Errorf("ledger: advance watermark for %d: %w", ev.ClientID, err)
	}
	return payment, nil
}

func (e *Engine) rejectPayment(ctx context.Context, ev PaymentEvent) (*Payment, error) {
	payment, err := e.store.InsertPayment(ctx, PaymentInput{
		ClientID:       ev.ClientID,
		Amount:         ev.Amount,
		PaidThrough:    DateOf(ev.PaidThrough),
		Status:         PaymentRejected,
		RejectedAmount: ev.Amount,
		Reason:         ev.Reason,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: insert rejected payment: %w", err)
	}

	// The restoring adjustment lands on the first date the watermark does not
	// cover, so it always counts toward net due.
	date := e.rejectionDate(ctx, ev)
	if _, err := e.store.InsertAdjustment(ctx, AdjustmentInput{
		ClientID: ev.ClientID,
		Date:     date,
		Amount:   ev.Amount,
		Reason:   rejectionReason(ev.Reason),
	}); err != nil {
		return nil, fmt.Errorf("ledger: insert rejection adjustment: %w", err)
	}
	if _, err := e.Recompute(ctx, ev.ClientID, date); err != nil {
		return nil, err
	}
	return payment, nil
}

func (e *Engine) rejectionDate(ctx context.Context, ev PaymentEvent) time.Time {
	date := DateOf(ev.PaidThrough)
	watermark, err := e.store.Watermark(ctx, ev.ClientID)
	if err != nil || watermark == nil {
		return date
	}
	if !date.After(*watermark) {
		return watermark.AddDate(0, 0, 1)
	}
	return date
}

func rejectionReason(reason string) string {
	if reason == "" {
		return "payment rejected"
	}
	return "payment rejected: " + reason
}

// SumAdvanceCovered totals the advance-covered portions across a client's
// balance rows; used to verify conservation against an advance's original
// amount.
func SumAdvanceCovered(balances []DailyBalance) decimal.Decimal {
	total := decimal.Zero
	for _, b := range balances {
		total = total.Add(b.AdvanceCovered)
	}
	return total
}
