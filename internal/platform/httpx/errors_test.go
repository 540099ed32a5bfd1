package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meetledger/meetledger/internal/shared"
)

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{shared.ErrNotFound, http.StatusNotFound},
		{shared.ErrIdempotencyConflict, http.StatusConflict},
		{fmt.Errorf("payload: %w", ErrValidation), http.StatusBadRequest},
		{ErrForbidden, http.StatusForbidden},
		{shared.ErrClientBlocked, http.StatusForbidden},
		{shared.ErrConcurrencyConflict, http.StatusServiceUnavailable},
		{shared.ErrDataIntegrity, http.StatusUnprocessableEntity},
		{shared.ErrRateResolution, http.StatusUnprocessableEntity},
		{errors.New("anything else"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, "error %v", tc.err)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
}

func TestConflictNeverReportsZeroBalance(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, shared.ErrConcurrencyConflict)
	require.Contains(t, rec.Body.String(), "temporarily unavailable")
	require.NotContains(t, rec.Body.String(), `"0"`)
}
