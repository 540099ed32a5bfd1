// Package meetings manages meeting records: the billable sessions whose
// lifecycle events drive the ledger. Every mutation dispatches the ledger
// engine inside the same transaction, so a meeting edit and its balance
// recomputation land atomically.
package meetings

import (
	"time"

	"github.com/meetledger/meetledger/internal/clients"
	"github.com/meetledger/meetledger/internal/ledger"
)

// Meeting is one scheduled or instant session.
type Meeting struct {
	ID               int64
	OwnerID          int64
	Date             *time.Time
	ParticipantCount int
	Category         clients.Category
	Attended         bool
	ProofRef         string
	Status           ledger.MeetingStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Qualifies reports whether the meeting counts toward dues.
func (m *Meeting) Qualifies() bool {
	return ledger.Qualifies(m.Attended, m.ProofRef, m.Status)
}

// BillingDate is the date the meeting bills to.
func (m *Meeting) BillingDate() time.Time {
	return m.snapshot().BillingDate()
}

func (m *Meeting) snapshot() *ledger.MeetingSnapshot {
	return &ledger.MeetingSnapshot{
		OwnerID:          m.OwnerID,
		Date:             m.Date,
		ParticipantCount: m.ParticipantCount,
		Category:         m.Category,
		Attended:         m.Attended,
		ProofRef:         m.ProofRef,
		Status:           m.Status,
		CreatedAt:        m.CreatedAt,
	}
}

// CreateMeetingInput carries fields for scheduling a meeting.
type CreateMeetingInput struct {
	OwnerID          int64
	Date             *time.Time
	ParticipantCount int
	Category         clients.Category
	Attended         bool
	ProofRef         string
}

// UpdateMeetingInput carries the mutable meeting fields.
type UpdateMeetingInput struct {
	Date             *time.Time
	ParticipantCount int
	Category         clients.Category
	Attended         bool
	ProofRef         string
}

// ListMeetingsRequest filters meeting listings.
type ListMeetingsRequest struct {
	OwnerID int64
	Date    *time.Time
	Status  ledger.MeetingStatus
	Limit   int
}

// ValidStatus reports whether raw names a known lifecycle status.
func ValidStatus(raw string) bool {
	switch ledger.MeetingStatus(raw) {
	case ledger.StatusActive, ledger.StatusNotLive, ledger.StatusCancelled,
		ledger.StatusWrongCredentials, ledger.StatusDeleted:
		return true
	}
	return false
}
