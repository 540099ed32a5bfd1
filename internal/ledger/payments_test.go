package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meetledger/meetledger/internal/clients"
	"github.com/meetledger/meetledger/internal/shared"
)

func TestApprovePaymentAdvancesWatermark(t *testing.T) {
	store := newMemStore()
	store.addClient(&clients.Client{ID: 1, Name: "Acme"})
	engine := newTestEngine(store)
	ctx := context.Background()

	through := day(2026, time.March, 15)
	payment, err := engine.ApplyPaymentEvent(ctx, PaymentEvent{
		EventID:     "pay-1",
		ClientID:    1,
		Amount:      decimal.NewFromInt(100),
		PaidThrough: through,
		Status:      PaymentApproved,
	})
	require.NoError(t, err)
	require.Equal(t, PaymentApproved, payment.Status)

	watermark, err := store.Watermark(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, watermark)
	require.True(t, watermark.Equal(through))
}

func TestWatermarkNeverMovesBackward(t *testing.T) {
	store := newMemStore()
	store.addClient(&clients.Client{ID: 1, Name: "Acme"})
	engine := newTestEngine(store)
	ctx := context.Background()

	later := day(2026, time.March, 20)
	earlier := day(2026, time.March, 10)

	_, err := engine.ApplyPaymentEvent(ctx, PaymentEvent{
		EventID: "pay-1", ClientID: 1, Amount: decimal.NewFromInt(100),
		PaidThrough: later, Status: PaymentApproved,
	})
	require.NoError(t, err)
	_, err = engine.ApplyPaymentEvent(ctx, PaymentEvent{
		EventID: "pay-2", ClientID: 1, Amount: decimal.NewFromInt(40),
		PaidThrough: earlier, Status: PaymentApproved,
	})
	require.NoError(t, err)

	watermark, err := store.Watermark(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, watermark)
	require.True(t, watermark.Equal(later), "got %s", watermark)
}

func TestRejectPaymentRestoresOutstandingBalance(t *testing.T) {
	store := newMemStore()
	store.addClient(&clients.Client{ID: 1, Name: "Acme"})
	engine := newTestEngine(store)
	ctx := context.Background()

	through := day(2026, time.March, 15)
	_, err := engine.ApplyPaymentEvent(ctx, PaymentEvent{
		EventID: "pay-1", ClientID: 1, Amount: decimal.NewFromInt(100),
		PaidThrough: through, Status: PaymentApproved,
	})
	require.NoError(t, err)

	payment, err := engine.ApplyPaymentEvent(ctx, PaymentEvent{
		EventID: "pay-2", ClientID: 1, Amount: decimal.NewFromInt(25),
		PaidThrough: through, Status: PaymentRejected, Reason: "bounced transfer",
	})
	require.NoError(t, err)
	require.Equal(t, PaymentRejected, payment.Status)
	require.True(t, payment.RejectedAmount.Equal(decimal.NewFromInt(25)))

	// The restoring adjustment lands on the first uncovered date.
	restoredDate := through.AddDate(0, 0, 1)
	adjustments, err := store.ListAdjustments(ctx, 1)
	require.NoError(t, err)
	require.Len(t, adjustments, 1)
	require.True(t, adjustments[0].Date.Equal(restoredDate))
	require.True(t, adjustments[0].Amount.Equal(decimal.NewFromInt(25)))

	// The watermark stayed put and the rejected amount is due again.
	watermark, err := store.Watermark(ctx, 1)
	require.NoError(t, err)
	require.True(t, watermark.Equal(through))

	netDue, err := engine.ComputeNetDue(ctx, 1)
	require.NoError(t, err)
	require.True(t, netDue.Amount.Equal(decimal.NewFromInt(25)), "got %s", netDue.Amount)
}

func TestRejectPaymentWithoutWatermarkUsesPaidThrough(t *testing.T) {
	store := newMemStore()
	store.addClient(&clients.Client{ID: 1, Name: "Acme"})
	engine := newTestEngine(store)
	ctx := context.Background()

	through := day(2026, time.March, 15)
	_, err := engine.ApplyPaymentEvent(ctx, PaymentEvent{
		EventID: "pay-1", ClientID: 1, Amount: decimal.NewFromInt(25),
		PaidThrough: through, Status: PaymentRejected,
	})
	require.NoError(t, err)

	adjustments, err := store.ListAdjustments(ctx, 1)
	require.NoError(t, err)
	require.Len(t, adjustments, 1)
	require.True(t, adjustments[0].Date.Equal(through))
	require.Equal(t, "payment rejected", adjustments[0].Reason)
}

func TestApplyPaymentEventRejectsNonPositiveAmount(t *testing.T) {
	store := newMemStore()
	store.addClient(&clients.Client{ID: 1, Name: "Acme"})
	engine := newTestEngine(store)

	_, err := engine.ApplyPaymentEvent(context.Background(), PaymentEvent{
		EventID: "pay-1", ClientID: 1, Amount: decimal.Zero,
		PaidThrough: day(2026, time.March, 15), Status: PaymentApproved,
	})
	require.Error(t, err)
}

func TestApplyPaymentEventUnknownClient(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	_, err := engine.ApplyPaymentEvent(context.Background(), PaymentEvent{
		EventID: "pay-1", ClientID: 99, Amount: decimal.NewFromInt(10),
		PaidThrough: day(2026, time.March, 15), Status: PaymentApproved,
	})
	require.ErrorIs(t, err, shared.ErrDataIntegrity)
}

func TestComputeNetDueSumsDatesAfterWatermark(t *testing.T) {
	store := newMemStore()
	store.addClient(&clients.Client{ID: 1, Name: "Acme"})
	engine := newTestEngine(store)
	ctx := context.Background()

	d1 := day(2026, time.March, 10)
	d2 := day(2026, time.March, 11)
	d3 := day(2026, time.March, 12)
	store.addMeeting(memMeeting{OwnerID: 1, Date: dptr(d1), Participants: 10, Category: clients.CategoryDomestic, Attended: true, ProofRef: "rec-1"})
	store.addMeeting(memMeeting{OwnerID: 1, Date: dptr(d2), Participants: 5, Category: clients.CategoryDomestic, Attended: true, ProofRef: "rec-2"})
	store.addMeeting(memMeeting{OwnerID: 1, Date: dptr(d3), Participants: 2, Category: clients.CategoryDomestic, Attended: true, ProofRef: "rec-3"})
	for _, d := range []time.Time{d1, d2, d3} {
		_, err := engine.Recompute(ctx, 1, d)
		require.NoError(t, err)
	}

	_, err := engine.ApplyPaymentEvent(ctx, PaymentEvent{
		EventID: "pay-1", ClientID: 1, Amount: decimal.NewFromInt(40),
		PaidThrough: d1, Status: PaymentApproved,
	})
	require.NoError(t, err)

	netDue, err := engine.ComputeNetDue(ctx, 1)
	require.NoError(t, err)
	require.True(t, netDue.Amount.Equal(decimal.NewFromInt(28)), "got %s", netDue.Amount)
	require.Len(t, netDue.Breakdown, 2)
	require.NotNil(t, netDue.PaidThrough)
	require.True(t, netDue.PaidThrough.Equal(d1))
}

func TestComputeNetDueWithoutWatermarkIncludesEverything(t *testing.T) {
	store := newMemStore()
	store.addClient(&clients.Client{ID: 1, Name: "Acme"})
	engine := newTestEngine(store)
	ctx := context.Background()

	d1 := day(2026, time.March, 10)
	store.addMeeting(memMeeting{OwnerID: 1, Date: dptr(d1), Participants: 10, Category: clients.CategoryDomestic, Attended: true, ProofRef: "rec-1"})
	_, err := engine.Recompute(ctx, 1, d1)
	require.NoError(t, err)

	netDue, err := engine.ComputeNetDue(ctx, 1)
	require.NoError(t, err)
	require.True(t, netDue.Amount.Equal(decimal.NewFromInt(40)))
	require.Nil(t, netDue.PaidThrough)
}

func TestComputeNetDueUnknownClient(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)
	_, err := engine.ComputeNetDue(context.Background(), 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSumAdvanceCoveredConservation(t *testing.T) {
	store := newMemStore()
	store.addClient(&clients.Client{ID: 1, Name: "Acme"})
	ctx := context.Background()
	inserted, err := store.InsertAdvance(ctx, AdvanceInput{ClientID: 1, Amount: decimal.NewFromInt(50)})
	require.NoError(t, err)

	d1 := day(2026, time.March, 10)
	d2 := day(2026, time.March, 11)
	store.addMeeting(memMeeting{OwnerID: 1, Date: dptr(d1), Participants: 10, Category: clients.CategoryDomestic, Attended: true, ProofRef: "rec-1"})
	store.addMeeting(memMeeting{OwnerID: 1, Date: dptr(d2), Participants: 10, Category: clients.CategoryDomestic, Attended: true, ProofRef: "rec-2"})

	engine := newTestEngine(store)
	_, err = engine.Recompute(ctx, 1, d1)
	require.NoError(t, err)
	_, err = engine.Recompute(ctx, 1, d2)
	require.NoError(t, err)

	balances, err := store.BalancesAfter(ctx, 1, nil)
	require.NoError(t, err)

	advance, err := store.GetAdvance(ctx, inserted.ID)
	require.NoError(t, err)

	// Consumed plus remaining always equals the original amount.
	total := SumAdvanceCovered(balances).Add(advance.Remaining)
	require.True(t, total.Equal(advance.OriginalAmount), "got %s", total)
}
