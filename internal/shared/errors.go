package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDataIntegrity indicates a record references an entity that does not exist,
	// e.g. a meeting whose owner client is missing. Surfaced, never swallowed.
	ErrDataIntegrity = errors.New("data integrity violation")
	// ErrConcurrencyConflict indicates two recomputations raced on the same
	// (client, date) key. Recomputation is idempotent, so the loser retries.
	ErrConcurrencyConflict = errors.New("concurrent recompute conflict")
	// ErrNegativeBalance indicates an advance allocation would drive the remaining
	// amount below zero. The allocation aborts and the charge is recognised
	// entirely out-of-pocket.
	ErrNegativeBalance = errors.New("advance balance would go negative")
	// ErrRateResolution indicates no rate and no default exist for a category.
	ErrRateResolution = errors.New("rate resolution failed")
	// ErrClientBlocked indicates the client may not create new meetings.
	ErrClientBlocked = errors.New("client is blocked")
)

// UserSafeMessage maps internal errors to text safe for API consumers.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found."
	case errors.Is(err, ErrConcurrencyConflict):
		return "Balance temporarily unavailable, please retry."
	case errors.Is(err, ErrClientBlocked):
		return "This client is blocked."
	default:
		return "An unexpected error occurred."
	}
}
