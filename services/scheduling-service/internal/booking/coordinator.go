package booking

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/counselcare/counselbook/services/scheduling-service/internal/appointment"
	"github.com/counselcare/counselbook/services/scheduling-service/internal/availability"
	"github.com/counselcare/counselbook/services/scheduling-service/internal/directory"
	"github.com/counselcare/counselbook/services/scheduling-service/internal/outbox"
)

const lockStripes = 64

type Config struct {
	// CancellationWindow is the minimum lead time a client must leave when
	// cancelling or rescheduling. Consultants are not bound by it.
	CancellationWindow time.Duration

	// BookingHorizon caps how far ahead a session may be booked.
	BookingHorizon time.Duration

	// SlotStep is the grid the day is quantized on.
	SlotStep time.Duration

	// DefaultSessionMins is used when the directory does not override the
	// session length for a consultant.
	DefaultSessionMins int
}

func (c *Config) applyDefaults() {
	if c.CancellationWindow <= 0 {
		c.CancellationWindow = 24 * time.Hour
	}
	if c.BookingHorizon <= 0 {
		c.BookingHorizon = 30 * 24 * time.Hour
	}
	if c.SlotStep <= 0 {
		c.SlotStep = 15 * time.Minute
	}
	if c.DefaultSessionMins <= 0 {
		c.DefaultSessionMins = appointment.DefaultDurationMinutes
	}
}

// Coordinator owns the booking flow: availability reads, slot revalidation
// at commit time, and lifecycle transitions. Writes for one consultant are
// serialized through a striped mutex; the database exclusion constraint is
// the backstop when multiple instances run.
type Coordinator struct {
	store  Store
	dir    directory.Provider
	logger *slog.Logger
	cfg    Config

	// now is swappable in tests.
	now func() time.Time

	locks [lockStripes]sync.Mutex
}

func NewCoordinator(store Store, dir directory.Provider, logger *slog.Logger, cfg Config) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		store:  store,
		dir:    dir,
		logger: logger,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (c *Coordinator) lockFor(consultantID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(consultantID))
	return &c.locks[h.Sum32()%lockStripes]
}

// GetAvailableSlots returns the consultant's slot grid for a calendar day.
// Days entirely in the past or beyond the booking horizon come back empty.
// The read takes no locks; the result is advisory and revalidated at Book.
func (c *Coordinator) GetAvailableSlots(ctx context.Context, consultantID string, day time.Time) ([]availability.Slot, error) {
	now := c.now()
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.Add(24 * time.Hour)
	if !dayEnd.After(now) || dayStart.After(now.Add(c.cfg.BookingHorizon)) {
		return nil, nil
	}

	avail, err := c.dir.DayAvailability(ctx, consultantID, day)
	if err != nil {
		return nil, err
	}
	if !avail.Working || len(avail.Windows) == 0 {
		return nil, nil
	}

	busy, err := c.busyIntervals(ctx, consultantID, avail.Windows, "")
	if err != nil {
		return nil, err
	}

	step := c.cfg.SlotStep
	if avail.SlotStepMins > 0 {
		step = time.Duration(avail.SlotStepMins) * time.Minute
	}
	return availability.DaySlots(avail.Windows, step, busy, now), nil
}

type BookRequest struct {
	ConsultantID   string
	ClientID       string
	ClientEmail    string
	IdempotencyKey string
	Start          time.Time
	Modality       appointment.Modality
	ClientNotes    string
}

func (r BookRequest) validate() error {
	if r.ConsultantID == "" || r.ClientID == "" {
		return fmt.Errorf("%w: consultant and client are required", ErrInvalidBooking)
	}
	if r.Start.IsZero() {
		return fmt.Errorf("%w: start is required", ErrInvalidBooking)
	}
	if !r.Modality.Valid() {
		return fmt.Errorf("%w: unknown modality %q", ErrInvalidBooking, r.Modality)
	}
	return nil
}

// Book places a PENDING appointment on the requested slot. The slot is
// revalidated under the consultant's lock immediately before the insert, so
// a grid that went stale between read and submit surfaces as
// ErrSlotNoLongerAvailable rather than a double booking.
func (c *Coordinator) Book(ctx context.Context, req BookRequest) (*appointment.Appointment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	now := c.now()
	if req.Start.After(now.Add(c.cfg.BookingHorizon)) {
		return nil, fmt.Errorf("%w: start exceeds booking horizon", ErrInvalidBooking)
	}

	if req.IdempotencyKey != "" {
		prev, err := c.store.FindByIdempotencyKey(ctx, req.ClientID, req.IdempotencyKey)
		if err == nil {
			return prev, nil
		}
		if !errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
	}

	mu := c.lockFor(req.ConsultantID)
	mu.Lock()
	defer mu.Unlock()

	a, err := c.buildAppointment(ctx, req, "", now)
	if err != nil {
		return nil, err
	}

	evt, err := outbox.AppointmentEvent(outbox.TopicAppointmentCreated, a, now)
	if err != nil {
		return nil, err
	}
	if err := c.store.Create(ctx, a, []outbox.Event{evt}); err != nil {
		// Lost a race against a retry of the same submission.
		if errors.Is(err, ErrDuplicateRequest) && req.IdempotencyKey != "" {
			return c.store.FindByIdempotencyKey(ctx, req.ClientID, req.IdempotencyKey)
		}
		return nil, err
	}
	c.logger.Info("appointment booked",
		"appointment_id", a.ID,
		"consultant_id", a.ConsultantID,
		"start", a.Start)
	return a, nil
}

// buildAppointment revalidates the slot and assembles the PENDING row.
// excludeID is left out of the busy set so a reschedule can land on an
// interval the old appointment still occupies.
func (c *Coordinator) buildAppointment(ctx context.Context, req BookRequest, excludeID string, now time.Time) (*appointment.Appointment, error) {
	avail, err := c.dir.DayAvailability(ctx, req.ConsultantID, req.Start)
	if err != nil {
		return nil, err
	}
	if !avail.Working {
		return nil, ErrSlotNoLongerAvailable
	}

	sessionMins := c.cfg.DefaultSessionMins
	if avail.SessionMins > 0 {
		sessionMins = avail.SessionMins
	}
	step := c.cfg.SlotStep
	if avail.SlotStepMins > 0 {
		step = time.Duration(avail.SlotStepMins) * time.Minute
	}

	busy, err := c.busyIntervals(ctx, req.ConsultantID, avail.Windows, excludeID)
	if err != nil {
		return nil, err
	}

	duration := time.Duration(sessionMins) * time.Minute
	if !availability.Fits(avail.Windows, busy, req.Start, duration, step, now) {
		return nil, ErrSlotNoLongerAvailable
	}

	return &appointment.Appointment{
		ID:             uuid.NewString(),
		ConsultantID:   req.ConsultantID,
		ClientID:       req.ClientID,
		ClientEmail:    req.ClientEmail,
		IdempotencyKey: req.IdempotencyKey,
		Start:          req.Start,
		DurationMins:   sessionMins,
		Modality:       req.Modality,
		Status:         appointment.StatusPending,
		ClientNotes:    req.ClientNotes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (c *Coordinator) busyIntervals(ctx context.Context, consultantID string, windows []availability.Interval, excludeID string) ([]availability.Interval, error) {
	if len(windows) == 0 {
		return nil, nil
	}
	from, to := windows[0].Start, windows[0].End
	for _, w := range windows[1:] {
		if w.Start.Before(from) {
			from = w.Start
		}
		if w.End.After(to) {
			to = w.End
		}
	}

	blocking, err := c.store.ListBlocking(ctx, consultantID, from, to)
	if err != nil {
		return nil, err
	}
	var busy []availability.Interval
	for i := range blocking {
		if blocking[i].ID == excludeID {
			continue
		}
		busy = append(busy, availability.Interval{Start: blocking[i].Start, End: blocking[i].End()})
	}
	return busy, nil
}

// Confirm moves a PENDING appointment to CONFIRMED.
func (c *Coordinator) Confirm(ctx context.Context, id string, actor appointment.Actor) (*appointment.Appointment, error) {
	a, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := c.now()
	if err := a.Confirm(actor, now); err != nil {
		return nil, err
	}
	evt, err := outbox.AppointmentEvent(outbox.TopicAppointmentConfirmed, a, now)
	if err != nil {
		return nil, err
	}
	if err := c.store.Update(ctx, a, []outbox.Event{evt}); err != nil {
		return nil, err
	}
	return a, nil
}

// Cancel cancels a PENDING or CONFIRMED appointment. Clients must honor the
// cancellation window; consultants may cancel up to the start time.
func (c *Coordinator) Cancel(ctx context.Context, id string, actor appointment.Actor, reason string) (*appointment.Appointment, error) {
	a, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := c.now()
	if actor.Role == appointment.RoleClient && now.After(a.Start.Add(-c.cfg.CancellationWindow)) {
		return nil, ErrCancellationWindowExpired
	}
	if err := a.Cancel(actor, reason, now); err != nil {
		return nil, err
	}
	evt, err := outbox.AppointmentEvent(outbox.TopicAppointmentCancelled, a, now)
	if err != nil {
		return nil, err
	}
	if err := c.store.Update(ctx, a, []outbox.Event{evt}); err != nil {
		return nil, err
	}
	c.logger.Info("appointment cancelled", "appointment_id", a.ID, "by", actor.Role)
	return a, nil
}

// Complete marks a CONFIRMED appointment as held and records session notes.
func (c *Coordinator) Complete(ctx context.Context, id string, actor appointment.Actor, notes string) (*appointment.Appointment, error) {
	a, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := c.now()
	if err := a.Complete(actor, notes, now); err != nil {
		return nil, err
	}
	evt, err := outbox.AppointmentEvent(outbox.TopicAppointmentCompleted, a, now)
	if err != nil {
		return nil, err
	}
	if err := c.store.Update(ctx, a, []outbox.Event{evt}); err != nil {
		return nil, err
	}
	return a, nil
}

// Reschedule atomically terminates the appointment and books a PENDING
// replacement on the new slot. It is equivalent to cancel plus book, with
// one difference: the old appointment's own interval does not count as busy,
// so moving a session within the same hour works.
func (c *Coordinator) Reschedule(ctx context.Context, id string, actor appointment.Actor, newStart time.Time) (*appointment.Appointment, error) {
	old, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := c.now()
	if actor.Role == appointment.RoleClient && now.After(old.Start.Add(-c.cfg.CancellationWindow)) {
		return nil, ErrCancellationWindowExpired
	}
	if newStart.After(now.Add(c.cfg.BookingHorizon)) {
		return nil, fmt.Errorf("%w: start exceeds booking horizon", ErrInvalidBooking)
	}
	if !appointment.CanTransition(old.Status, appointment.EventReschedule) {
		return nil, &appointment.InvalidTransitionError{From: old.Status, Event: appointment.EventReschedule}
	}

	mu := c.lockFor(old.ConsultantID)
	mu.Lock()
	defer mu.Unlock()

	repl, err := c.buildAppointment(ctx, BookRequest{
		ConsultantID: old.ConsultantID,
		ClientID:     old.ClientID,
		ClientEmail:  old.ClientEmail,
		Start:        newStart,
		Modality:     old.Modality,
		ClientNotes:  old.ClientNotes,
	}, old.ID, now)
	if err != nil {
		return nil, err
	}

	if err := old.MarkRescheduled(actor, repl.ID, now); err != nil {
		return nil, err
	}

	oldEvt, err := outbox.AppointmentEvent(outbox.TopicAppointmentRescheduled, old, now)
	if err != nil {
		return nil, err
	}
	newEvt, err := outbox.AppointmentEvent(outbox.TopicAppointmentCreated, repl, now)
	if err != nil {
		return nil, err
	}
	if err := c.store.Replace(ctx, old, repl, []outbox.Event{oldEvt, newEvt}); err != nil {
		return nil, err
	}
	c.logger.Info("appointment rescheduled",
		"appointment_id", old.ID,
		"replacement_id", repl.ID,
		"new_start", repl.Start)
	return repl, nil
}

// SubmitReview attaches the client's one-time review to a completed session.
func (c *Coordinator) SubmitReview(ctx context.Context, id string, actor appointment.Actor, rating int, comment string) (*appointment.Appointment, error) {
	a, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := a.AttachReview(actor, rating, comment, c.now()); err != nil {
		return nil, err
	}
	if err := c.store.Update(ctx, a, nil); err != nil {
		return nil, err
	}
	return a, nil
}

// ListForClient returns a client's appointments, newest start first.
func (c *Coordinator) ListForClient(ctx context.Context, clientID string) ([]appointment.Appointment, error) {
	return c.store.ListByClient(ctx, clientID)
}

// ListForConsultant returns a consultant's appointments, newest start first.
func (c *Coordinator) ListForConsultant(ctx context.Context, consultantID string) ([]appointment.Appointment, error) {
	return c.store.ListByConsultant(ctx, consultantID)
}
