package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/counselcare/counselbook/services/scheduling-service/internal/appointment"
	"github.com/counselcare/counselbook/services/scheduling-service/internal/availability"
	"github.com/counselcare/counselbook/services/scheduling-service/internal/booking"
	"github.com/counselcare/counselbook/services/scheduling-service/internal/directory"
	"github.com/counselcare/counselbook/services/scheduling-service/internal/outbox"
)

type memStore struct {
	mu    sync.Mutex
	appts map[string]appointment.Appointment
}

func newMemStore() *memStore {
	return &memStore{appts: map[string]appointment.Appointment{}}
}

func (s *memStore) Create(_ context.Context, a *appointment.Appointment, _ []outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.appts {
		if other.ConsultantID == a.ConsultantID && other.Blocking() &&
			a.Start.Before(other.End()) && other.Start.Before(a.End()) {
			return booking.ErrSlotNoLongerAvailable
		}
	}
	s.appts[a.ID] = *a
	return nil
}

func (s *memStore) FindByIdempotencyKey(_ context.Context, clientID, key string) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.appts {
		if a.ClientID == clientID && a.IdempotencyKey == key {
			out := a
			return &out, nil
		}
	}
	return nil, booking.ErrAppointmentNotFound
}

func (s *memStore) Get(_ context.Context, id string) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return nil, booking.ErrAppointmentNotFound
	}
	return &a, nil
}

func (s *memStore) Update(_ context.Context, a *appointment.Appointment, _ []outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appts[a.ID] = *a
	return nil
}

func (s *memStore) Replace(_ context.Context, old, repl *appointment.Appointment, _ []outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appts[old.ID] = *old
	s.appts[repl.ID] = *repl
	return nil
}

func (s *memStore) ListBlocking(_ context.Context, consultantID string, from, to time.Time) ([]appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []appointment.Appointment
	for _, a := range s.appts {
		if a.ConsultantID == consultantID && a.Blocking() && a.Start.Before(to) && from.Before(a.End()) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) ListByClient(_ context.Context, clientID string) ([]appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []appointment.Appointment
	for _, a := range s.appts {
		if a.ClientID == clientID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) ListByConsultant(_ context.Context, consultantID string) ([]appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []appointment.Appointment
	for _, a := range s.appts {
		if a.ConsultantID == consultantID {
			out = append(out, a)
		}
	}
	return out, nil
}

type stubDirectory struct{}

func (stubDirectory) DayAvailability(_ context.Context, consultantID string, day time.Time) (directory.DayAvailability, error) {
	if consultantID != "cons-1" {
		return directory.DayAvailability{}, directory.ErrConsultantNotFound
	}
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return directory.DayAvailability{
		Working:      true,
		SlotStepMins: 15,
		SessionMins:  60,
		Windows: []availability.Interval{
			{Start: midnight.Add(9 * time.Hour), End: midnight.Add(17 * time.Hour)},
		},
	}, nil
}

func testServer(t *testing.T) (*httptest.Server, *memStore) {
	t.Helper()
	store := newMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	coordinator := booking.NewCoordinator(store, stubDirectory{}, logger, booking.Config{})

	mux := http.NewServeMux()
	NewSchedulingHandler(coordinator, logger).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store
}

func doJSON(t *testing.T, method, url string, actor *appointment.Actor, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if actor != nil {
		req.Header.Set("X-Actor-ID", actor.ID)
		req.Header.Set("X-Actor-Role", string(actor.Role))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func futureStart() string {
	day := time.Now().UTC().AddDate(0, 0, 7)
	return time.Date(day.Year(), day.Month(), day.Day(), 10, 0, 0, 0, time.UTC).Format(time.RFC3339)
}

func TestBookEndpoint(t *testing.T) {
	srv, store := testServer(t)
	client := &appointment.Actor{ID: "cli-1", Role: appointment.RoleClient}

	body := `{"consultant_id": "cons-1", "start": "` + futureStart() + `", "modality": "ONLINE", "client_email": "c@example.com"}`
	resp, decoded := doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments/book", client, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if decoded["status"] != "PENDING" {
		t.Fatalf("status field = %v", decoded["status"])
	}
	id, _ := decoded["appointment_id"].(string)
	if id == "" {
		t.Fatalf("missing appointment_id in response")
	}
	stored, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("stored appointment: %v", err)
	}
	if stored.ClientEmail != "c@example.com" {
		t.Fatalf("client email not stored: %+v", stored)
	}

	// Same slot again conflicts.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments/book", client, body)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("double book status = %d, want 409", resp.StatusCode)
	}
}

func TestBookEndpoint_AuthAndValidation(t *testing.T) {
	srv, _ := testServer(t)
	client := &appointment.Actor{ID: "cli-1", Role: appointment.RoleClient}
	consultant := &appointment.Actor{ID: "cons-1", Role: appointment.RoleConsultant}

	body := `{"consultant_id": "cons-1", "start": "` + futureStart() + `", "modality": "ONLINE"}`

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments/book", nil, body)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("anonymous book status = %d, want 403", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments/book", consultant, body)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("consultant book status = %d, want 403", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments/book", client, `{"consultant_id": "cons-1"`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad json status = %d, want 400", resp.StatusCode)
	}

	unknown := `{"consultant_id": "cons-x", "start": "` + futureStart() + `", "modality": "ONLINE"}`
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments/book", client, unknown)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown consultant status = %d, want 404", resp.StatusCode)
	}
}

func TestSlotsEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	date := time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02")
	resp, decoded := doJSON(t, http.MethodGet, srv.URL+"/api/v1/public/slots?consultant_id=cons-1&date="+date, nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	slots, ok := decoded["slots"].([]any)
	if !ok || len(slots) != 32 {
		t.Fatalf("got %d slots, want 32", len(slots))
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/public/slots?consultant_id=cons-1&date=bogus", nil, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad date status = %d, want 400", resp.StatusCode)
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	srv, _ := testServer(t)
	client := &appointment.Actor{ID: "cli-1", Role: appointment.RoleClient}
	consultant := &appointment.Actor{ID: "cons-1", Role: appointment.RoleConsultant}

	body := `{"consultant_id": "cons-1", "start": "` + futureStart() + `", "modality": "ONLINE"}`
	resp, decoded := doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments/book", client, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("book status = %d", resp.StatusCode)
	}
	id := decoded["appointment_id"].(string)

	ref := `{"appointment_id": "` + id + `"}`

	// Complete before confirm is an invalid transition.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments/complete", consultant, ref)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("premature complete status = %d, want 409", resp.StatusCode)
	}

	// Client cannot confirm.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments/confirm", client, ref)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("client confirm status = %d, want 403", resp.StatusCode)
	}

	resp, decoded = doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments/confirm", consultant, ref)
	if resp.StatusCode != http.StatusOK || decoded["status"] != "CONFIRMED" {
		t.Fatalf("confirm status = %d body = %v", resp.StatusCode, decoded)
	}

	resp, decoded = doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments/complete", consultant, ref)
	if resp.StatusCode != http.StatusOK || decoded["status"] != "COMPLETED" {
		t.Fatalf("complete status = %d body = %v", resp.StatusCode, decoded)
	}

	review := `{"appointment_id": "` + id + `", "rating": 5, "comment": "very helpful"}`
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments/review", client, review)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("review status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments/review", client, review)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second review status = %d, want 409", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments/cancel", client, `{"appointment_id": "missing"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("cancel missing status = %d, want 404", resp.StatusCode)
	}
}

func TestListEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	client := &appointment.Actor{ID: "cli-1", Role: appointment.RoleClient}

	body := `{"consultant_id": "cons-1", "start": "` + futureStart() + `", "modality": "IN_PERSON"}`
	if resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments/book", client, body); resp.StatusCode != http.StatusCreated {
		t.Fatalf("book status = %d", resp.StatusCode)
	}

	resp, decoded := doJSON(t, http.MethodGet, srv.URL+"/api/v1/appointments", client, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	items, ok := decoded["appointments"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("got %d appointments, want 1", len(items))
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/appointments", nil, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("anonymous list status = %d, want 403", resp.StatusCode)
	}
}
