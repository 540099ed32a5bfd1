// Package ledger turns meeting-attendance and payment-approval events into
// per-client financial balances. All aggregates are recomputed from scratch
// for one (client, date) key at a time, never incremented, so concurrent and
// reordered edits converge to the same state.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meetledger/meetledger/internal/clients"
)

// MeetingStatus is the lifecycle status of a meeting record.
type MeetingStatus string

// Meeting lifecycle statuses.
const (
	StatusActive           MeetingStatus = "ACTIVE"
	StatusNotLive          MeetingStatus = "NOT_LIVE"
	StatusCancelled        MeetingStatus = "CANCELLED"
	StatusWrongCredentials MeetingStatus = "WRONG_CREDENTIALS"
	StatusDeleted          MeetingStatus = "DELETED"
)

// excludedStatuses is the terminal exclusion set. It exists in exactly one
// place; every aggregation path consults it through Qualifies or the SQL
// produced from ExcludedStatusList.
var excludedStatuses = map[MeetingStatus]struct{}{
	StatusCancelled:        {},
	StatusDeleted:          {},
	StatusNotLive:          {},
	StatusWrongCredentials: {},
}

// ExcludedStatusList returns the exclusion set for SQL parameters.
func ExcludedStatusList() []string {
	return []string{
		string(StatusCancelled),
		string(StatusDeleted),
		string(StatusNotLive),
		string(StatusWrongCredentials),
	}
}

// Qualifies reports whether a meeting counts toward dues: attended, with
// proof, and outside the exclusion set.
func Qualifies(attended bool, proofRef string, status MeetingStatus) bool {
	if !attended || proofRef == "" {
		return false
	}
	_, excluded := excludedStatuses[status]
	return !excluded
}

// DateOf normalises a timestamp to its calendar date in UTC.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DailyBalance is the replaceable aggregate for one (client, date) key.
// Recomputation fully replaces the row; it is never incremented in place.
type DailyBalance struct {
	ClientID       int64
	Date           time.Time
	TotalCharge    decimal.Decimal
	AdvanceCovered decimal.Decimal
	Owed           decimal.Decimal
	MeetingCount   int
	// AdvanceID is the advance whose credit covers AdvanceCovered, when any.
	AdvanceID *int64
	UpdatedAt time.Time
}

// Advance is a prepaid balance drawn down against future dues.
type Advance struct {
	ID             int64
	ClientID       int64
	OriginalAmount decimal.Decimal
	Remaining      decimal.Decimal
	Active         bool
	ValidFrom      *time.Time
	ValidTo        *time.Time
	CreatedAt      time.Time
}

// CoversDate reports whether the advance may be drawn down on the given date.
func (a *Advance) CoversDate(date time.Time) bool {
	if a.ValidFrom != nil && date.Before(DateOf(*a.ValidFrom)) {
		return false
	}
	if a.ValidTo != nil && date.After(DateOf(*a.ValidTo)) {
		return false
	}
	return true
}

// PaymentStatus marks the review outcome of a submitted payment proof.
type PaymentStatus string

// Payment statuses.
const (
	PaymentApproved PaymentStatus = "APPROVED"
	PaymentRejected PaymentStatus = "REJECTED"
)

// Payment is an approved or rejected settlement. Approved payments are
// immutable; a rejection produces an Adjustment, never a mutation.
type Payment struct {
	ID             int64
	ClientID       int64
	Amount         decimal.Decimal
	PaidThrough    time.Time
	Status         PaymentStatus
	RejectedAmount decimal.Decimal
	Reason         string
	CreatedAt      time.Time
}

// Adjustment is a manual correction layered on top of aggregated balances.
// The aggregator folds adjustments in during recompute and never mutates them.
type Adjustment struct {
	ID        int64
	ClientID  int64
	Date      time.Time
	Amount    decimal.Decimal
	Reason    string
	CreatedAt time.Time
}

// CoHostLiability is what a co-host owes the platform for its sub-clients'
// qualifying volume on one date. It is a separate aggregate from the
// co-host's own DailyBalance and must never be conflated with it.
type CoHostLiability struct {
	CoHostID         int64
	Date             time.Time
	ParticipantTotal int
	Amount           decimal.Decimal
	UpdatedAt        time.Time
}

// MeetingCharge is one qualifying meeting's contribution to an aggregate.
type MeetingCharge struct {
	MeetingID    int64
	Participants int
	Category     clients.Category
}

// EventOp is the mutation kind carried by a meeting lifecycle event.
type EventOp string

// Event operations.
const (
	OpInsert EventOp = "insert"
	OpUpdate EventOp = "update"
	OpDelete EventOp = "delete"
)

// MeetingSnapshot captures the ledger-relevant fields of a meeting record at
// one point in its lifecycle.
type MeetingSnapshot struct {
	OwnerID          int64
	Date             *time.Time
	ParticipantCount int
	Category         clients.Category
	Attended         bool
	ProofRef         string
	Status           MeetingStatus
	CreatedAt        time.Time
}

// BillingDate is the calendar date the meeting bills to: its scheduled date,
// or the creation date when none is set.
func (s *MeetingSnapshot) BillingDate() time.Time {
	if s.Date != nil {
		return DateOf(*s.Date)
	}
	return DateOf(s.CreatedAt)
}

// MeetingEvent is a meeting lifecycle event consumed by the engine.
// Previous carries the before-image for updates and deletes.
type MeetingEvent struct {
	EventID   string
	Op        EventOp
	MeetingID int64
	Current   *MeetingSnapshot
	Previous  *MeetingSnapshot
}

// PaymentEvent is a payment-approval event consumed by the engine.
type PaymentEvent struct {
	EventID     string
	ClientID    int64
	Amount      decimal.Decimal
	PaidThrough time.Time
	Status      PaymentStatus
	Reason      string
}

// AdjustmentInput carries fields for appending an adjustment.
type AdjustmentInput struct {
	ClientID int64
	Date     time.Time
	Amount   decimal.Decimal
	Reason   string
}

// AdvanceInput carries fields for recording a new advance.
type AdvanceInput struct {
	ClientID  int64
	Amount    decimal.Decimal
	ValidFrom *time.Time
	ValidTo   *time.Time
}

// PaymentInput carries fields for persisting a reviewed payment.
type PaymentInput struct {
	ClientID       int64
	Amount         decimal.Decimal
	PaidThrough    time.Time
	Status         PaymentStatus
	RejectedAmount decimal.Decimal
	Reason         string
}

// DateDue is one outstanding date in a net-due breakdown.
type DateDue struct {
	Date time.Time
	Owed decimal.Decimal
}

// NetDue is the displayable outstanding position of a client: the sum of
// owed portions for dates strictly after the settlement watermark.
type NetDue struct {
	ClientID    int64
	Amount      decimal.Decimal
	PaidThrough *time.Time
	Breakdown   []DateDue
}
