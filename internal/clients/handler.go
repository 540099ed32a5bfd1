package clients

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meetledger/meetledger/internal/platform/httpx"
)

// Handler manages client endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers client routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listClients)
	r.Post("/", h.createClient)
	r.Get("/{id}", h.getClient)
	r.Put("/{id}", h.updateClient)
	r.Post("/{id}/block", h.blockClient)
	r.Post("/{id}/unblock", h.unblockClient)
	r.Get("/{id}/sub-clients", h.listSubClients)
}

type clientPayload struct {
	Name         string  `json:"name" validate:"required,max=200"`
	ParentID     *int64  `json:"parent_id,omitempty"`
	IsCoHost     bool    `json:"is_cohost"`
	RateDomestic *string `json:"rate_domestic,omitempty"`
	RateForeign  *string `json:"rate_foreign,omitempty"`
	RateReseller *string `json:"rate_reseller,omitempty"`
	ResaleRate   *string `json:"resale_rate,omitempty"`
}

type clientResponse struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	ParentID     *int64  `json:"parent_id,omitempty"`
	IsCoHost     bool    `json:"is_cohost"`
	Blocked      bool    `json:"blocked"`
	RateDomestic *string `json:"rate_domestic,omitempty"`
	RateForeign  *string `json:"rate_foreign,omitempty"`
	RateReseller *string `json:"rate_reseller,omitempty"`
	ResaleRate   *string `json:"resale_rate,omitempty"`
}

func toClientResponse(c *Client) clientResponse {
	resp := clientResponse{
		ID:       c.ID,
		Name:     c.Name,
		ParentID: c.ParentID,
		IsCoHost: c.IsCoHost,
		Blocked:  c.Blocked,
	}
	resp.RateDomestic = nullDecimalString(c.RateDomestic)
	resp.RateForeign = nullDecimalString(c.RateForeign)
	resp.RateReseller = nullDecimalString(c.RateReseller)
	resp.ResaleRate = nullDecimalString(c.ResaleRate)
	return resp
}

func nullDecimalString(nd decimal.NullDecimal) *string {
	if !nd.Valid {
		return nil
	}
	s := nd.Decimal.String()
	return &s
}

func parseNullDecimal(raw *string) (decimal.NullDecimal, error) {
	if raw == nil || *raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*raw)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

func (h *Handler) decodeRates(payload clientPayload) (ratesSet, error) {
	var out ratesSet
	var err error
	if out.domestic, err = parseNullDecimal(payload.RateDomestic); err != nil {
		return out, err
	}
	if out.foreign, err = parseNullDecimal(payload.RateForeign); err != nil {
		return out, err
	}
	if out.reseller, err = parseNullDecimal(payload.RateReseller); err != nil {
		return out, err
	}
	if out.resale, err = parseNullDecimal(payload.ResaleRate); err != nil {
		return out, err
	}
	return out, nil
}

type ratesSet struct {
	domestic, foreign, reseller, resale decimal.NullDecimal
}

func (h *Handler) createClient(w http.ResponseWriter, r *http.Request) {
	var payload clientPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rates, err := h.decodeRates(payload)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Rate", err.Error())
		return
	}

	client, err := h.service.RegisterClient(r.Context(), CreateClientInput{
		Name:         payload.Name,
		ParentID:     payload.ParentID,
		IsCoHost:     payload.IsCoHost,
		RateDomestic: rates.domestic,
		RateForeign:  rates.foreign,
		RateReseller: rates.reseller,
		ResaleRate:   rates.resale,
	})
	if err != nil {
		h.logger.Error("register client", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toClientResponse(client))
}

func (h *Handler) getClient(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "client id must be numeric")
		return
	}
	client, err := h.service.GetClient(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toClientResponse(client))
}

func (h *Handler) updateClient(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "client id must be numeric")
		return
	}
	var payload clientPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rates, err := h.decodeRates(payload)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Rate", err.Error())
		return
	}

	client, err := h.service.UpdateClient(r.Context(), id, UpdateClientInput{
		Name:         payload.Name,
		RateDomestic: rates.domestic,
		RateForeign:  rates.foreign,
		RateReseller: rates.reseller,
		ResaleRate:   rates.resale,
	})
	if err != nil {
		h.logger.Error("update client", slog.Int64("client_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toClientResponse(client))
}

func (h *Handler) blockClient(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, true)
}

func (h *Handler) unblockClient(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, false)
}

func (h *Handler) setBlocked(w http.ResponseWriter, r *http.Request, blocked bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "client id must be numeric")
		return
	}
	var svcErr error
	if blocked {
		svcErr = h.service.BlockClient(r.Context(), id)
	} else {
		svcErr = h.service.UnblockClient(r.Context(), id)
	}
	if svcErr != nil {
		httpx.RespondError(w, svcErr)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "blocked": blocked})
}

func (h *Handler) listClients(w http.ResponseWriter, r *http.Request) {
	req := ListClientsRequest{PerPage: 100}
	if page := r.URL.Query().Get("page"); page != "" {
		req.Page, _ = strconv.Atoi(page)
	}
	if r.URL.Query().Get("cohosts") == "true" {
		req.CoHosts = true
	}
	list, err := h.service.ListClients(r.Context(), req)
	if err != nil {
		h.logger.Error("list clients", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]clientResponse, 0, len(list))
	for i := range list {
		out = append(out, toClientResponse(&list[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"clients": out})
}

func (h *Handler) listSubClients(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "client id must be numeric")
		return
	}
	list, err := h.service.ListSubClients(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]clientResponse, 0, len(list))
	for i := range list {
		out = append(out, toClientResponse(&list[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sub_clients": out})
}
