package booking

import (
	"context"
	"time"

	"github.com/counselcare/counselbook/services/scheduling-service/internal/appointment"
	"github.com/counselcare/counselbook/services/scheduling-service/internal/outbox"
)

// Store persists appointments. Each mutating call commits the appointment
// change and the given outbox events in one transaction.
//
// Implementations map their conflict and no-row conditions to
// ErrSlotNoLongerAvailable and ErrAppointmentNotFound.
type Store interface {
	// Create inserts a new appointment.
	Create(ctx context.Context, a *appointment.Appointment, events []outbox.Event) error

	// Get loads one appointment by id.
	Get(ctx context.Context, id string) (*appointment.Appointment, error)

	// FindByIdempotencyKey loads the appointment a client previously created
	// with the given key, or ErrAppointmentNotFound.
	FindByIdempotencyKey(ctx context.Context, clientID, key string) (*appointment.Appointment, error)

	// Update persists a lifecycle change to an existing appointment.
	Update(ctx context.Context, a *appointment.Appointment, events []outbox.Event) error

	// Replace atomically terminates old and inserts replacement. Used for
	// reschedules so no interleaving can observe both rows blocking.
	Replace(ctx context.Context, old, replacement *appointment.Appointment, events []outbox.Event) error

	// ListBlocking returns PENDING and CONFIRMED appointments for a
	// consultant overlapping [from, to).
	ListBlocking(ctx context.Context, consultantID string, from, to time.Time) ([]appointment.Appointment, error)

	// ListByClient returns a client's appointments, newest start first.
	ListByClient(ctx context.Context, clientID string) ([]appointment.Appointment, error)

	// ListByConsultant returns a consultant's appointments, newest start first.
	ListByConsultant(ctx context.Context, consultantID string) ([]appointment.Appointment, error)
}
