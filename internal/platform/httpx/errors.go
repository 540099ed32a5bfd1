// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/meetledger/meetledger/internal/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrClientBlocked):
		Problem(w, http.StatusForbidden, "Client Blocked", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrConcurrencyConflict):
		// Recomputation lost its race even after retries; the balance is
		// temporarily unavailable, never reported as zero.
		Problem(w, http.StatusServiceUnavailable, "Balance Unavailable", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrDataIntegrity), errors.Is(err, shared.ErrRateResolution):
		Problem(w, http.StatusUnprocessableEntity, "Ledger Error", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
