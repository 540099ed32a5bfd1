package meetings

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meetledger/meetledger/internal/clients"
	"github.com/meetledger/meetledger/internal/ledger"
	"github.com/meetledger/meetledger/internal/platform/httpx"
)

// Handler manages meeting endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers meeting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listMeetings)
	r.Post("/", h.createMeeting)
	r.Get("/{id}", h.getMeeting)
	r.Put("/{id}", h.updateMeeting)
	r.Post("/{id}/status", h.markStatus)
	r.Delete("/{id}", h.deleteMeeting)
}

type meetingPayload struct {
	OwnerID          int64  `json:"owner_id" validate:"required,gt=0"`
	Date             string `json:"date"`
	ParticipantCount int    `json:"participant_count" validate:"gte=0"`
	Category         string `json:"category" validate:"required"`
	Attended         bool   `json:"attended"`
	ProofRef         string `json:"proof_ref"`
}

type meetingResponse struct {
	ID               int64  `json:"id"`
	OwnerID          int64  `json:"owner_id"`
	Date             string `json:"date,omitempty"`
	BillingDate      string `json:"billing_date"`
	ParticipantCount int    `json:"participant_count"`
	Category         string `json:"category"`
	Attended         bool   `json:"attended"`
	ProofRef         string `json:"proof_ref,omitempty"`
	Status           string `json:"status"`
	Qualifies        bool   `json:"qualifies"`
}

func toMeetingResponse(m *Meeting) meetingResponse {
	resp := meetingResponse{
		ID:               m.ID,
		OwnerID:          m.OwnerID,
		BillingDate:      m.BillingDate().Format(time.DateOnly),
		ParticipantCount: m.ParticipantCount,
		Category:         string(m.Category),
		Attended:         m.Attended,
		ProofRef:         m.ProofRef,
		Status:           string(m.Status),
		Qualifies:        m.Qualifies(),
	}
	if m.Date != nil {
		resp.Date = m.Date.Format(time.DateOnly)
	}
	return resp
}

func parseOptionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, err
	}
	d := ledger.DateOf(t)
	return &d, nil
}

func (h *Handler) createMeeting(w http.ResponseWriter, r *http.Request) {
	var payload meetingPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := parseOptionalDate(payload.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "date must be YYYY-MM-DD")
		return
	}

	meeting, err := h.service.CreateMeeting(r.Context(), CreateMeetingInput{
		OwnerID:          payload.OwnerID,
		Date:             date,
		ParticipantCount: payload.ParticipantCount,
		Category:         clients.Category(strings.ToUpper(payload.Category)),
		Attended:         payload.Attended,
		ProofRef:         payload.ProofRef,
	})
	if err != nil {
		h.logger.Error("create meeting", slog.Int64("owner_id", payload.OwnerID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMeetingResponse(meeting))
}

func (h *Handler) getMeeting(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "meeting id must be numeric")
		return
	}
	meeting, err := h.service.GetMeeting(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMeetingResponse(meeting))
}

func (h *Handler) updateMeeting(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "meeting id must be numeric")
		return
	}
	var payload meetingPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	date, err := parseOptionalDate(payload.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "date must be YYYY-MM-DD")
		return
	}

	meeting, err := h.service.UpdateMeeting(r.Context(), id, UpdateMeetingInput{
		Date:             date,
		ParticipantCount: payload.ParticipantCount,
		Category:         clients.Category(strings.ToUpper(payload.Category)),
		Attended:         payload.Attended,
		ProofRef:         payload.ProofRef,
	})
	if err != nil {
		h.logger.Error("update meeting", slog.Int64("meeting_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMeetingResponse(meeting))
}

type statusPayload struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) markStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "meeting id must be numeric")
		return
	}
	var payload statusPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	status := strings.ToUpper(payload.Status)
	if !ValidStatus(status) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Status", "unknown lifecycle status")
		return
	}

	meeting, err := h.service.MarkStatus(r.Context(), id, ledger.MeetingStatus(status))
	if err != nil {
		h.logger.Error("mark status", slog.Int64("meeting_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMeetingResponse(meeting))
}

func (h *Handler) deleteMeeting(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "meeting id must be numeric")
		return
	}
	if err := h.service.DeleteMeeting(r.Context(), id); err != nil {
		h.logger.Error("delete meeting", slog.Int64("meeting_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (h *Handler) listMeetings(w http.ResponseWriter, r *http.Request) {
	req := ListMeetingsRequest{}
	if raw := r.URL.Query().Get("owner_id"); raw != "" {
		req.OwnerID, _ = strconv.ParseInt(raw, 10, 64)
	}
	if raw := r.URL.Query().Get("date"); raw != "" {
		date, err := parseOptionalDate(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "date must be YYYY-MM-DD")
			return
		}
		req.Date = date
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		req.Status = ledger.MeetingStatus(strings.ToUpper(raw))
	}

	meetings, err := h.service.ListMeetings(r.Context(), req)
	if err != nil {
		h.logger.Error("list meetings", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]meetingResponse, 0, len(meetings))
	for i := range meetings {
		out = append(out, toMeetingResponse(&meetings[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"meetings": out})
}
