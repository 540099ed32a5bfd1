// Package notify builds notification payloads for the presentation layer.
// The ledger produces these alongside balance updates; delivery (push, mail)
// is owned by outer layers.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Kind classifies a payload.
type Kind string

// Payload kinds.
const (
	KindBalanceChanged  Kind = "balance_changed"
	KindPaymentReviewed Kind = "payment_reviewed"
)

// Payload is one renderable notification.
type Payload struct {
	Kind     Kind      `json:"kind"`
	ClientID int64     `json:"client_id"`
	Date     time.Time `json:"date,omitempty"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Amount   string    `json:"amount"`
}

// Publisher delivers payloads to the presentation layer.
type Publisher interface {
	Publish(ctx context.Context, payload Payload)
}

// Builder formats payloads with locale-aware amounts.
type Builder struct {
	printer *message.Printer
}

// NewBuilder constructs a builder for the given locale tag.
func NewBuilder(tag language.Tag) *Builder {
	return &Builder{printer: message.NewPrinter(tag)}
}

// FormatAmount renders a decimal amount with grouping separators.
func (b *Builder) FormatAmount(amount decimal.Decimal) string {
	f, _ := amount.Float64()
	return b.printer.Sprintf("%.2f", f)
}

// BalanceChanged builds the payload for an updated daily balance.
func (b *Builder) BalanceChanged(clientID int64, date time.Time, owed decimal.Decimal) Payload {
	amount := b.FormatAmount(owed)
	return Payload{
		Kind:     KindBalanceChanged,
		ClientID: clientID,
		Date:     date,
		Title:    "Balance updated",
		Body:     b.printer.Sprintf("Outstanding for %s is now %s.", date.Format(time.DateOnly), amount),
		Amount:   amount,
	}
}

// PaymentReviewed builds the payload for an approved or rejected payment.
func (b *Builder) PaymentReviewed(clientID int64, amount decimal.Decimal, approved bool, reason string) Payload {
	formatted := b.FormatAmount(amount)
	title := "Payment approved"
	body := b.printer.Sprintf("Your payment of %s was approved.", formatted)
	if !approved {
		title = "Payment rejected"
		body = b.printer.Sprintf("Your payment of %s was rejected.", formatted)
		if reason != "" {
			body += " Reason: " + reason
		}
	}
	return Payload{
		Kind:     KindPaymentReviewed,
		ClientID: clientID,
		Title:    title,
		Body:     body,
		Amount:   formatted,
	}
}

// LogPublisher writes payloads to the structured log; the default sink when
// no presentation transport is wired.
type LogPublisher struct {
	Logger *slog.Logger
}

// Publish logs the payload.
func (p LogPublisher) Publish(ctx context.Context, payload Payload) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification",
		slog.String("kind", string(payload.Kind)),
		slog.Int64("client_id", payload.ClientID),
		slog.String("title", payload.Title),
		slog.String("amount", payload.Amount))
}
