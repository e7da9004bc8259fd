package appointment

import (
	"errors"
	"fmt"
	"time"
)

// Event is a lifecycle transition request.
type Event string

const (
	EventConfirm    Event = "confirm"
	EventCancel     Event = "cancel"
	EventComplete   Event = "complete"
	EventReschedule Event = "reschedule"
)

// transitions is the legal-transition table. A missing entry means the event
// is not legal from that state.
var transitions = map[Status]map[Event]Status{
	StatusPending: {
		EventConfirm:    StatusConfirmed,
		EventCancel:     StatusCancelled,
		EventReschedule: StatusRescheduled,
	},
	StatusConfirmed: {
		EventCancel:     StatusCancelled,
		EventComplete:   StatusCompleted,
		EventReschedule: StatusRescheduled,
	},
}

// CanTransition reports whether ev is legal from the given status.
func CanTransition(from Status, ev Event) bool {
	_, ok := transitions[from][ev]
	return ok
}

// InvalidTransitionError reports an event that is not legal from the
// appointment's current status. It is never a silent no-op.
type InvalidTransitionError struct {
	From  Status
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: event %q not allowed from status %q", e.Event, e.From)
}

var (
	// ErrReviewAlreadyExists is returned on a second review submission.
	ErrReviewAlreadyExists = errors.New("review already exists")

	// ErrActorNotAllowed is returned when the actor's role or identity does
	// not match the party permitted to trigger the event.
	ErrActorNotAllowed = errors.New("actor not allowed to perform this event")

	// ErrInvalidRating is returned for ratings outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

func (a *Appointment) transition(ev Event, now time.Time) error {
	next, ok := transitions[a.Status][ev]
	if !ok {
		return &InvalidTransitionError{From: a.Status, Event: ev}
	}
	a.Status = next
	a.UpdatedAt = now
	return nil
}

// Confirm moves PENDING to CONFIRMED. Only the appointment's consultant may
// confirm.
func (a *Appointment) Confirm(actor Actor, now time.Time) error {
	if !a.consultantActor(actor) {
		return ErrActorNotAllowed
	}
	return a.transition(EventConfirm, now)
}

// Cancel moves PENDING or CONFIRMED to CANCELLED, recording the reason and
// who cancelled. Either party may cancel.
func (a *Appointment) Cancel(actor Actor, reason string, now time.Time) error {
	if !a.clientActor(actor) && !a.consultantActor(actor) {
		return ErrActorNotAllowed
	}
	if err := a.transition(EventCancel, now); err != nil {
		return err
	}
	a.CancellationReason = reason
	a.CancelledBy = actor.ID
	return nil
}

// Complete moves CONFIRMED to COMPLETED, recording the consultant's session
// notes. A PENDING appointment cannot be completed.
func (a *Appointment) Complete(actor Actor, notes string, now time.Time) error {
	if !a.consultantActor(actor) {
		return ErrActorNotAllowed
	}
	if err := a.transition(EventComplete, now); err != nil {
		return err
	}
	a.ConsultantNotes = notes
	return nil
}

// MarkRescheduled terminates this appointment in favor of a replacement.
// Only the client may reschedule; the caller is responsible for creating the
// replacement atomically with this transition.
func (a *Appointment) MarkRescheduled(actor Actor, replacementID string, now time.Time) error {
	if !a.clientActor(actor) {
		return ErrActorNotAllowed
	}
	if err := a.transition(EventReschedule, now); err != nil {
		return err
	}
	a.RescheduledTo = replacementID
	return nil
}

// AttachReview attaches the client's one-time review to a COMPLETED
// appointment. The status does not change.
func (a *Appointment) AttachReview(actor Actor, rating int, comment string, now time.Time) error {
	if !a.clientActor(actor) {
		return ErrActorNotAllowed
	}
	if a.Status != StatusCompleted {
		return &InvalidTransitionError{From: a.Status, Event: "review"}
	}
	if a.Review != nil {
		return ErrReviewAlreadyExists
	}
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	a.Review = &Review{Rating: rating, Comment: comment, SubmittedAt: now}
	a.UpdatedAt = now
	return nil
}
