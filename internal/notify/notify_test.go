package notify

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestFormatAmountGroupsThousands(t *testing.T) {
	b := NewBuilder(language.English)
	require.Equal(t, "1,234.50", b.FormatAmount(decimal.RequireFromString("1234.5")))
	require.Equal(t, "40.00", b.FormatAmount(decimal.NewFromInt(40)))
}

func TestBalanceChangedPayload(t *testing.T) {
	b := NewBuilder(language.English)
	date := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)

	p := b.BalanceChanged(7, date, decimal.NewFromInt(40))
	require.Equal(t, KindBalanceChanged, p.Kind)
	require.Equal(t, int64(7), p.ClientID)
	require.Equal(t, "40.00", p.Amount)
	require.Contains(t, p.Body, "2026-03-10")
}

func TestPaymentReviewedPayload(t *testing.T) {
	b := NewBuilder(language.English)

	approved := b.PaymentReviewed(7, decimal.NewFromInt(100), true, "")
	require.Equal(t, "Payment approved", approved.Title)
	require.Contains(t, approved.Body, "100.00")

	rejected := b.PaymentReviewed(7, decimal.NewFromInt(25), false, "bounced transfer")
	require.Equal(t, "Payment rejected", rejected.Title)
	require.Contains(t, rejected.Body, "bounced transfer")
}
