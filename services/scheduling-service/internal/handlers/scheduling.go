package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/counselcare/counselbook/services/scheduling-service/internal/appointment"
	"github.com/counselcare/counselbook/services/scheduling-service/internal/booking"
	"github.com/counselcare/counselbook/services/scheduling-service/internal/directory"
)

type SchedulingHandler struct {
	coordinator *booking.Coordinator
	logger      *slog.Logger
}

func NewSchedulingHandler(coordinator *booking.Coordinator, logger *slog.Logger) *SchedulingHandler {
	return &SchedulingHandler{coordinator: coordinator, logger: logger}
}

func (h *SchedulingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/public/slots", h.Slots)
	mux.HandleFunc("/api/v1/appointments", h.List)
	mux.HandleFunc("/api/v1/appointments/book", h.Book)
	mux.HandleFunc("/api/v1/appointments/confirm", h.Confirm)
	mux.HandleFunc("/api/v1/appointments/cancel", h.Cancel)
	mux.HandleFunc("/api/v1/appointments/complete", h.Complete)
	mux.HandleFunc("/api/v1/appointments/reschedule", h.Reschedule)
	mux.HandleFunc("/api/v1/appointments/review", h.Review)
}

// actorFrom reads the authenticated party forwarded by the gateway.
func actorFrom(r *http.Request) (appointment.Actor, bool) {
	id := strings.TrimSpace(r.Header.Get("X-Actor-ID"))
	role := appointment.Role(strings.TrimSpace(r.Header.Get("X-Actor-Role")))
	if id == "" || (role != appointment.RoleClient && role != appointment.RoleConsultant) {
		return appointment.Actor{}, false
	}
	return appointment.Actor{ID: id, Role: role}, true
}

type slotItem struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Available bool   `json:"available"`
}

func (h *SchedulingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	consultantID := strings.TrimSpace(r.URL.Query().Get("consultant_id"))
	if consultantID == "" {
		http.Error(w, "consultant_id required", http.StatusBadRequest)
		return
	}
	day, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, "invalid date (want YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	slots, err := h.coordinator.GetAvailableSlots(r.Context(), consultantID, day)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			Start:     s.Start.Format(time.RFC3339),
			End:       s.End.Format(time.RFC3339),
			Available: s.Available,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": items})
}

type bookRequest struct {
	ConsultantID string `json:"consultant_id"`
	ClientEmail  string `json:"client_email"`
	Start        string `json:"start"`
	Modality     string `json:"modality"`
	Notes        string `json:"notes"`
}

func (h *SchedulingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFrom(r)
	if !ok || actor.Role != appointment.RoleClient {
		http.Error(w, "client identity required", http.StatusForbidden)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ConsultantID = strings.TrimSpace(req.ConsultantID)
	if req.ConsultantID == "" {
		http.Error(w, "consultant_id required", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		http.Error(w, "invalid start", http.StatusBadRequest)
		return
	}

	a, err := h.coordinator.Book(r.Context(), booking.BookRequest{
		ConsultantID:   req.ConsultantID,
		ClientID:       actor.ID,
		ClientEmail:    strings.TrimSpace(req.ClientEmail),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		Start:          start.UTC(),
		Modality:       appointment.Modality(strings.TrimSpace(req.Modality)),
		ClientNotes:    strings.TrimSpace(req.Notes),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appointmentResponse(a))
}

type lifecycleRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
	Notes         string `json:"notes"`
	NewStart      string `json:"new_start"`
	Rating        int    `json:"rating"`
	Comment       string `json:"comment"`
}

func (h *SchedulingHandler) lifecycle(w http.ResponseWriter, r *http.Request, fn func(lifecycleRequest, appointment.Actor) (*appointment.Appointment, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "actor identity required", http.StatusForbidden)
		return
	}
	var req lifecycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	a, err := fn(req, actor)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentResponse(a))
}

func (h *SchedulingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(req lifecycleRequest, actor appointment.Actor) (*appointment.Appointment, error) {
		return h.coordinator.Confirm(r.Context(), req.AppointmentID, actor)
	})
}

func (h *SchedulingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(req lifecycleRequest, actor appointment.Actor) (*appointment.Appointment, error) {
		return h.coordinator.Cancel(r.Context(), req.AppointmentID, actor, strings.TrimSpace(req.Reason))
	})
}

func (h *SchedulingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(req lifecycleRequest, actor appointment.Actor) (*appointment.Appointment, error) {
		return h.coordinator.Complete(r.Context(), req.AppointmentID, actor, strings.TrimSpace(req.Notes))
	})
}

func (h *SchedulingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(req lifecycleRequest, actor appointment.Actor) (*appointment.Appointment, error) {
		newStart, err := time.Parse(time.RFC3339, req.NewStart)
		if err != nil {
			return nil, errBadRequest
		}
		return h.coordinator.Reschedule(r.Context(), req.AppointmentID, actor, newStart.UTC())
	})
}

func (h *SchedulingHandler) Review(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(req lifecycleRequest, actor appointment.Actor) (*appointment.Appointment, error) {
		return h.coordinator.SubmitReview(r.Context(), req.AppointmentID, actor, req.Rating, strings.TrimSpace(req.Comment))
	})
}

func (h *SchedulingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, "actor identity required", http.StatusForbidden)
		return
	}

	var (
		appts []appointment.Appointment
		err   error
	)
	switch actor.Role {
	case appointment.RoleClient:
		appts, err = h.coordinator.ListForClient(r.Context(), actor.ID)
	case appointment.RoleConsultant:
		appts, err = h.coordinator.ListForConsultant(r.Context(), actor.ID)
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	items := make([]map[string]any, 0, len(appts))
	for i := range appts {
		items = append(items, appointmentResponse(&appts[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

func appointmentResponse(a *appointment.Appointment) map[string]any {
	resp := map[string]any{
		"appointment_id": a.ID,
		"consultant_id":  a.ConsultantID,
		"client_id":      a.ClientID,
		"start":          a.Start.Format(time.RFC3339),
		"end":            a.End().Format(time.RFC3339),
		"duration_mins":  a.DurationMins,
		"modality":       string(a.Modality),
		"status":         string(a.Status),
	}
	if a.MeetingLink != "" {
		resp["meeting_link"] = a.MeetingLink
	}
	if a.Location != "" {
		resp["location"] = a.Location
	}
	if a.CancellationReason != "" {
		resp["cancellation_reason"] = a.CancellationReason
	}
	if a.RescheduledTo != "" {
		resp["rescheduled_to"] = a.RescheduledTo
	}
	if a.Review != nil {
		resp["review"] = map[string]any{
			"rating":       a.Review.Rating,
			"comment":      a.Review.Comment,
			"submitted_at": a.Review.SubmittedAt.Format(time.RFC3339),
		}
	}
	return resp
}

var errBadRequest = errors.New("bad request")

func (h *SchedulingHandler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *appointment.InvalidTransitionError
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, booking.ErrInvalidBooking), errors.Is(err, appointment.ErrInvalidRating):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, booking.ErrSlotNoLongerAvailable):
		http.Error(w, "slot no longer available", http.StatusConflict)
	case errors.As(err, &invalid):
		http.Error(w, invalid.Error(), http.StatusConflict)
	case errors.Is(err, appointment.ErrReviewAlreadyExists):
		http.Error(w, "review already exists", http.StatusConflict)
	case errors.Is(err, booking.ErrCancellationWindowExpired):
		http.Error(w, "cancellation window expired", http.StatusUnprocessableEntity)
	case errors.Is(err, booking.ErrAppointmentNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
	case errors.Is(err, directory.ErrConsultantNotFound):
		http.Error(w, "consultant not found", http.StatusNotFound)
	case errors.Is(err, appointment.ErrActorNotAllowed):
		http.Error(w, "not allowed", http.StatusForbidden)
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
