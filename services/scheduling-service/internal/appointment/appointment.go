package appointment

import "time"

// Status is the lifecycle state of an appointment. CANCELLED and COMPLETED
// are terminal. RESCHEDULED is terminal for the row it is set on: the
// appointment was abandoned in favor of a replacement referenced by
// RescheduledTo.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusConfirmed   Status = "CONFIRMED"
	StatusCompleted   Status = "COMPLETED"
	StatusCancelled   Status = "CANCELLED"
	StatusRescheduled Status = "RESCHEDULED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusRescheduled:
		return true
	}
	return false
}

type Modality string

const (
	ModalityOnline   Modality = "ONLINE"
	ModalityInPerson Modality = "IN_PERSON"
)

func (m Modality) Valid() bool {
	return m == ModalityOnline || m == ModalityInPerson
}

// Role identifies which side of the appointment an actor is on.
type Role string

const (
	RoleClient     Role = "client"
	RoleConsultant Role = "consultant"
)

// Actor is the authenticated party attempting a lifecycle event.
type Actor struct {
	ID   string
	Role Role
}

// Review is the one-shot post-completion feedback a client may attach.
type Review struct {
	Rating      int
	Comment     string
	SubmittedAt time.Time
}

const DefaultDurationMinutes = 60

type Appointment struct {
	ID           string
	ConsultantID string
	ClientID     string

	// ClientEmail is optional contact info supplied at booking time, used
	// for email notifications downstream.
	ClientEmail string

	// IdempotencyKey dedupes retried booking submissions from the same
	// client. Empty means the submission is not deduplicated.
	IdempotencyKey string

	Start        time.Time
	DurationMins int
	Modality     Modality
	Status       Status

	MeetingLink     string
	Location        string
	ClientNotes     string
	ConsultantNotes string

	Review *Review

	CancellationReason string
	CancelledBy        string

	// RescheduledTo references the replacement appointment created when this
	// one was rescheduled.
	RescheduledTo string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a *Appointment) End() time.Time {
	return a.Start.Add(time.Duration(a.DurationMins) * time.Minute)
}

// Blocking reports whether this appointment still claims its consultant
// interval. Only PENDING and CONFIRMED rows block other bookings.
func (a *Appointment) Blocking() bool {
	return a.Status == StatusPending || a.Status == StatusConfirmed
}

func (a *Appointment) clientActor(actor Actor) bool {
	return actor.Role == RoleClient && actor.ID == a.ClientID
}

func (a *Appointment) consultantActor(actor Actor) bool {
	return actor.Role == RoleConsultant && actor.ID == a.ConsultantID
}
