package booking

import "errors"

var (
	// ErrSlotNoLongerAvailable is returned when the requested interval was
	// valid at read time but lost the race by commit time, or was never
	// inside the consultant's open windows.
	ErrSlotNoLongerAvailable = errors.New("slot no longer available")

	// ErrCancellationWindowExpired is returned when a client tries to cancel
	// or reschedule closer to the start time than the policy allows.
	ErrCancellationWindowExpired = errors.New("cancellation window expired")

	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrDuplicateRequest is returned by Store.Create when another
	// appointment already holds the client's idempotency key. The
	// coordinator resolves it by replaying the stored appointment.
	ErrDuplicateRequest = errors.New("duplicate booking request")

	// ErrInvalidBooking wraps request validation failures.
	ErrInvalidBooking = errors.New("invalid booking request")
)
