package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meetledger/meetledger/internal/platform/httpx"
)

// Handler manages ledger endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/net-due/{clientID}", h.netDue)
	r.Get("/balances/{clientID}", h.listBalances)
	r.Post("/recompute", h.recompute)

	r.Post("/payments", h.paymentDecision)
	r.Get("/payments/{clientID}", h.listPayments)

	r.Post("/adjustments", h.createAdjustment)
	r.Get("/adjustments/{clientID}", h.listAdjustments)

	r.Post("/advances", h.createAdvance)
	r.Get("/advances/{clientID}", h.listAdvances)

	r.Get("/liabilities/{clientID}", h.listLiabilities)
}

func clientIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "clientID"), 10, 64)
	return id, err == nil
}

func parseDate(raw string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	return DateOf(t), nil
}

type balanceResponse struct {
	ClientID       int64  `json:"client_id"`
	Date           string `json:"date"`
	TotalCharge    string `json:"total_charge"`
	AdvanceCovered string `json:"advance_covered"`
	Owed           string `json:"owed"`
	MeetingCount   int    `json:"meeting_count"`
}

func toBalanceResponse(b *DailyBalance) balanceResponse {
	return balanceResponse{
		ClientID:       b.ClientID,
		Date:           b.Date.Format(time.DateOnly),
		TotalCharge:    b.TotalCharge.String(),
		AdvanceCovered: b.AdvanceCovered.String(),
		Owed:           b.Owed.String(),
		MeetingCount:   b.MeetingCount,
	}
}

func (h *Handler) netDue(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientIDParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "client id must be numeric")
		return
	}
	due, err := h.service.NetDue(r.Context(), clientID)
	if err != nil {
		h.logger.Error("net due", slog.Int64("client_id", clientID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	breakdown := make([]map[string]string, 0, len(due.Breakdown))
	for _, d := range due.Breakdown {
		breakdown = append(breakdown, map[string]string{
			"date": d.Date.Format(time.DateOnly),
			"owed": d.Owed.String(),
		})
	}
	resp := map[string]any{
		"client_id": due.ClientID,
		"amount":    due.Amount.String(),
		"breakdown": breakdown,
	}
	if due.PaidThrough != nil {
		resp["paid_through"] = due.PaidThrough.Format(time.DateOnly)
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) listBalances(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientIDParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "client id must be numeric")
		return
	}
	balances, err := h.service.Balances(r.Context(), clientID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]balanceResponse, 0, len(balances))
	for i := range balances {
		out = append(out, toBalanceResponse(&balances[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"balances": out})
}

type recomputePayload struct {
	ClientID int64  `json:"client_id" validate:"required,gt=0"`
	Date     string `json:"date" validate:"required"`
}

func (h *Handler) recompute(w http.ResponseWriter, r *http.Request) {
	var payload recomputePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := parseDate(payload.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "date must be YYYY-MM-DD")
		return
	}
	balance, err := h.service.Recompute(r.Context(), payload.ClientID, date)
	if err != nil {
		h.logger.Error("recompute", slog.Int64("client_id", payload.ClientID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBalanceResponse(balance))
}

type paymentPayload struct {
	EventID     string `json:"event_id"`
	ClientID    int64  `json:"client_id" validate:"required,gt=0"`
	Amount      string `json:"amount" validate:"required"`
	PaidThrough string `json:"paid_through" validate:"required"`
	Status      string `json:"status" validate:"required,oneof=approved rejected"`
	Reason      string `json:"reason"`
}

func (h *Handler) paymentDecision(w http.ResponseWriter, r *http.Request) {
	var payload paymentPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil || !amount.IsPositive() {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", "amount must be a positive decimal")
		return
	}
	paidThrough, err := parseDate(payload.PaidThrough)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "paid_through must be YYYY-MM-DD")
		return
	}
	status := PaymentApproved
	if payload.Status == "rejected" {
		status = PaymentRejected
	}
	eventID := payload.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}

	payment, err := h.service.ApplyPaymentEvent(r.Context(), PaymentEvent{
		EventID:     eventID,
		ClientID:    payload.ClientID,
		Amount:      amount,
		PaidThrough: paidThrough,
		Status:      status,
		Reason:      payload.Reason,
	})
	if err != nil {
		h.logger.Error("payment decision", slog.Int64("client_id", payload.ClientID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":           payment.ID,
		"client_id":    payment.ClientID,
		"amount":       payment.Amount.String(),
		"paid_through": payment.PaidThrough.Format(time.DateOnly),
		"status":       string(payment.Status),
	})
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientIDParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "client id must be numeric")
		return
	}
	payments, err := h.service.Payments(r.Context(), clientID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(payments))
	for _, p := range payments {
		out = append(out, map[string]any{
			"id":              p.ID,
			"amount":          p.Amount.String(),
			"paid_through":    p.PaidThrough.Format(time.DateOnly),
			"status":          string(p.Status),
			"rejected_amount": p.RejectedAmount.String(),
			"reason":          p.Reason,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": out})
}

type adjustmentPayload struct {
	ClientID int64  `json:"client_id" validate:"required,gt=0"`
	Date     string `json:"date" validate:"required"`
	Amount   string `json:"amount" validate:"required"`
	Reason   string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) createAdjustment(w http.ResponseWriter, r *http.Request) {
	var payload adjustmentPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", "amount must be a decimal")
		return
	}
	date, err := parseDate(payload.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "date must be YYYY-MM-DD")
		return
	}

	adjustment, balance, err := h.service.AddAdjustment(r.Context(), AdjustmentInput{
		ClientID: payload.ClientID,
		Date:     date,
		Amount:   amount,
		Reason:   payload.Reason,
	})
	if err != nil {
		h.logger.Error("add adjustment", slog.Int64("client_id", payload.ClientID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":      adjustment.ID,
		"balance": toBalanceResponse(balance),
	})
}

func (h *Handler) listAdjustments(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientIDParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "client id must be numeric")
		return
	}
	adjustments, err := h.service.Adjustments(r.Context(), clientID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(adjustments))
	for _, a := range adjustments {
		out = append(out, map[string]any{
			"id":     a.ID,
			"date":   a.Date.Format(time.DateOnly),
			"amount": a.Amount.String(),
			"reason": a.Reason,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"adjustments": out})
}

type advancePayload struct {
	ClientID  int64  `json:"client_id" validate:"required,gt=0"`
	Amount    string `json:"amount" validate:"required"`
	ValidFrom string `json:"valid_from"`
	ValidTo   string `json:"valid_to"`
}

func (h *Handler) createAdvance(w http.ResponseWriter, r *http.Request) {
	var payload advancePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil || !amount.IsPositive() {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", "amount must be a positive decimal")
		return
	}
	input := AdvanceInput{ClientID: payload.ClientID, Amount: amount}
	if payload.ValidFrom != "" {
		from, err := parseDate(payload.ValidFrom)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "valid_from must be YYYY-MM-DD")
			return
		}
		input.ValidFrom = &from
	}
	if payload.ValidTo != "" {
		to, err := parseDate(payload.ValidTo)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "valid_to must be YYYY-MM-DD")
			return
		}
		input.ValidTo = &to
	}

	advance, err := h.service.RecordAdvance(r.Context(), input)
	if err != nil {
		h.logger.Error("record advance", slog.Int64("client_id", payload.ClientID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":        advance.ID,
		"client_id": advance.ClientID,
		"original":  advance.OriginalAmount.String(),
		"remaining": advance.Remaining.String(),
		"active":    advance.Active,
	})
}

func (h *Handler) listAdvances(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientIDParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "client id must be numeric")
		return
	}
	advances, err := h.service.Advances(r.Context(), clientID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(advances))
	for _, a := range advances {
		out = append(out, map[string]any{
			"id":        a.ID,
			"original":  a.OriginalAmount.String(),
			"remaining": a.Remaining.String(),
			"active":    a.Active,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"advances": out})
}

func (h *Handler) listLiabilities(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientIDParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "client id must be numeric")
		return
	}
	liabilities, err := h.service.Liabilities(r.Context(), clientID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(liabilities))
	for _, l := range liabilities {
		out = append(out, map[string]any{
			"date":         l.Date.Format(time.DateOnly),
			"participants": l.ParticipantTotal,
			"amount":       l.Amount.String(),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"liabilities": out})
}
