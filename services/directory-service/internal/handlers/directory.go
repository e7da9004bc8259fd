package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/counselcare/counselbook/services/directory-service/internal/schedule"
	"github.com/counselcare/counselbook/services/directory-service/internal/storage"
)

type Handler struct {
	repo   *storage.Repository
	logger *slog.Logger
}

func New(repo *storage.Repository, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/consultants", h.Consultants)
	mux.HandleFunc("/api/v1/consultants/availability", h.Availability)
	mux.HandleFunc("/api/v1/consultants/hours", h.UpsertHours)
	mux.HandleFunc("/api/v1/consultants/blackouts", h.Blackouts)
}

func (h *Handler) Consultants(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listConsultants(w, r)
	case http.MethodPost:
		h.createConsultant(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) listConsultants(w http.ResponseWriter, r *http.Request) {
	if id := strings.TrimSpace(r.URL.Query().Get("consultant_id")); id != "" {
		c, err := h.repo.GetConsultant(r.Context(), id)
		if err != nil {
			if storage.IsNotFound(err) {
				http.Error(w, "consultant not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to load consultant", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, consultantItem(c))
		return
	}

	specialty := strings.TrimSpace(r.URL.Query().Get("specialty"))
	consultants, err := h.repo.ListConsultants(r.Context(), specialty, 100)
	if err != nil {
		http.Error(w, "failed to list consultants", http.StatusInternalServerError)
		return
	}
	items := make([]map[string]any, 0, len(consultants))
	for _, c := range consultants {
		items = append(items, consultantItem(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"consultants": items})
}

func consultantItem(c storage.Consultant) map[string]any {
	return map[string]any{
		"consultant_id":  c.ID,
		"name":           c.Name,
		"specialty":      c.Specialty,
		"bio":            c.Bio,
		"session_mins":   c.SessionMins,
		"slot_step_mins": c.SlotStepMins,
	}
}

func (h *Handler) createConsultant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string `json:"name"`
		Specialty    string `json:"specialty"`
		Bio          string `json:"bio"`
		SessionMins  int    `json:"session_mins"`
		SlotStepMins int    `json:"slot_step_mins"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Specialty = strings.TrimSpace(req.Specialty)
	if req.Name == "" || req.Specialty == "" {
		http.Error(w, "name and specialty required", http.StatusBadRequest)
		return
	}

	id, err := h.repo.CreateConsultant(r.Context(), req.Name, req.Specialty, strings.TrimSpace(req.Bio), req.SessionMins, req.SlotStepMins)
	if err != nil {
		h.logger.Error("consultant create failed", "err", err)
		http.Error(w, "failed to create consultant", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"consultant_id": id})
}

// Availability answers the scheduling-service's per-day window query:
// the weekday template minus any blackouts overlapping the day.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
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

	c, err := h.repo.GetConsultant(r.Context(), consultantID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "consultant not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load consultant", http.StatusInternalServerError)
		return
	}
	if !c.IsActive {
		http.Error(w, "consultant not found", http.StatusNotFound)
		return
	}

	wh, err := h.repo.GetWeeklyHours(r.Context(), consultantID, int(day.Weekday()))
	if err != nil {
		http.Error(w, "failed to load schedule", http.StatusInternalServerError)
		return
	}

	resp := map[string]any{
		"working":        false,
		"slot_step_mins": c.SlotStepMins,
		"session_mins":   c.SessionMins,
		"windows":        []any{},
	}

	base, ok := schedule.DayWindow(day, wh)
	if !ok {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	blackouts, err := h.repo.ListBlackouts(r.Context(), consultantID, base.Start, base.End)
	if err != nil {
		http.Error(w, "failed to load blackouts", http.StatusInternalServerError)
		return
	}
	spans := make([]schedule.Window, 0, len(blackouts))
	for _, b := range blackouts {
		spans = append(spans, schedule.Window{Start: b.StartTime, End: b.EndTime})
	}

	open := schedule.Subtract(base, spans)
	windows := make([]map[string]string, 0, len(open))
	for _, win := range open {
		windows = append(windows, map[string]string{
			"start": win.Start.Format(time.RFC3339),
			"end":   win.End.Format(time.RFC3339),
		})
	}
	resp["working"] = len(windows) > 0
	resp["windows"] = windows
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) UpsertHours(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ConsultantID string `json:"consultant_id"`
		Weekday      int    `json:"weekday"`
		IsWorking    bool   `json:"is_working"`
		StartMinute  int    `json:"start_minute"`
		EndMinute    int    `json:"end_minute"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ConsultantID = strings.TrimSpace(req.ConsultantID)
	if req.ConsultantID == "" {
		http.Error(w, "consultant_id required", http.StatusBadRequest)
		return
	}
	if req.Weekday < 0 || req.Weekday > 6 {
		http.Error(w, "weekday must be 0-6", http.StatusBadRequest)
		return
	}
	if req.IsWorking && (req.StartMinute < 0 || req.EndMinute > 24*60 || req.EndMinute <= req.StartMinute) {
		http.Error(w, "invalid start_minute/end_minute", http.StatusBadRequest)
		return
	}

	err := h.repo.UpsertWeeklyHours(r.Context(), req.ConsultantID, schedule.WeeklyHours{
		Weekday:     req.Weekday,
		IsWorking:   req.IsWorking,
		StartMinute: req.StartMinute,
		EndMinute:   req.EndMinute,
	})
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "consultant not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to update hours", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Blackouts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createBlackout(w, r)
	case http.MethodGet:
		h.listBlackouts(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) createBlackout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConsultantID string `json:"consultant_id"`
		Start        string `json:"start"`
		End          string `json:"end"`
		Reason       string `json:"reason"`
	}
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
	end, err := time.Parse(time.RFC3339, req.End)
	if err != nil {
		http.Error(w, "invalid end", http.StatusBadRequest)
		return
	}
	if !end.After(start) {
		http.Error(w, "end must be after start", http.StatusBadRequest)
		return
	}

	id, err := h.repo.CreateBlackout(r.Context(), req.ConsultantID, start.UTC(), end.UTC(), strings.TrimSpace(req.Reason))
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "consultant not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to create blackout", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"blackout_id": id})
}

func (h *Handler) listBlackouts(w http.ResponseWriter, r *http.Request) {
	consultantID := strings.TrimSpace(r.URL.Query().Get("consultant_id"))
	if consultantID == "" {
		http.Error(w, "consultant_id required", http.StatusBadRequest)
		return
	}
	from := time.Now().UTC()
	to := from.AddDate(0, 3, 0)

	blackouts, err := h.repo.ListBlackouts(r.Context(), consultantID, from, to)
	if err != nil {
		http.Error(w, "failed to list blackouts", http.StatusInternalServerError)
		return
	}
	items := make([]map[string]any, 0, len(blackouts))
	for _, b := range blackouts {
		items = append(items, map[string]any{
			"blackout_id": b.ID,
			"start":       b.StartTime.Format(time.RFC3339),
			"end":         b.EndTime.Format(time.RFC3339),
			"reason":      b.Reason,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"blackouts": items})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
