package outbox

import (
	"encoding/json"
	"time"

	"github.com/counselcare/counselbook/services/scheduling-service/internal/appointment"
)

const AggregateAppointment = "appointment"

// The Kafka topic name equals EventType (event per topic). Keyed by
// consultant ID so events for one consultant stay ordered.
const (
	TopicAppointmentCreated     = "scheduling.appointment.created.v1"
	TopicAppointmentConfirmed   = "scheduling.appointment.confirmed.v1"
	TopicAppointmentCancelled   = "scheduling.appointment.cancelled.v1"
	TopicAppointmentCompleted   = "scheduling.appointment.completed.v1"
	TopicAppointmentRescheduled = "scheduling.appointment.rescheduled.v1"
)

// Event is the domain event envelope written to the outbox table.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// AppointmentPayload is the wire body for every appointment topic.
type AppointmentPayload struct {
	AppointmentID      string    `json:"appointment_id"`
	ConsultantID       string    `json:"consultant_id"`
	ClientID           string    `json:"client_id"`
	ClientEmail        string    `json:"client_email,omitempty"`
	Start              time.Time `json:"start"`
	DurationMins       int       `json:"duration_mins"`
	Modality           string    `json:"modality"`
	Status             string    `json:"status"`
	CancellationReason string    `json:"cancellation_reason,omitempty"`
	CancelledBy        string    `json:"cancelled_by,omitempty"`
	RescheduledTo      string    `json:"rescheduled_to,omitempty"`
	OccurredAt         time.Time `json:"occurred_at"`
}

// AppointmentEvent builds the outbox envelope for an appointment lifecycle
// event. Events are keyed by consultant so the notification consumer sees a
// consultant's history in order.
func AppointmentEvent(eventType string, a *appointment.Appointment, occurredAt time.Time) (Event, error) {
	payload, err := json.Marshal(AppointmentPayload{
		AppointmentID:      a.ID,
		ConsultantID:       a.ConsultantID,
		ClientID:           a.ClientID,
		ClientEmail:        a.ClientEmail,
		Start:              a.Start,
		DurationMins:       a.DurationMins,
		Modality:           string(a.Modality),
		Status:             string(a.Status),
		CancellationReason: a.CancellationReason,
		CancelledBy:        a.CancelledBy,
		RescheduledTo:      a.RescheduledTo,
		OccurredAt:         occurredAt,
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: AggregateAppointment,
		AggregateID:   a.ConsultantID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
