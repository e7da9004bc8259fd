package notify

import (
	"fmt"
	"time"
)

// Topics this service subscribes to.
const (
	TopicAppointmentCreated     = "scheduling.appointment.created.v1"
	TopicAppointmentConfirmed   = "scheduling.appointment.confirmed.v1"
	TopicAppointmentCancelled   = "scheduling.appointment.cancelled.v1"
	TopicAppointmentCompleted   = "scheduling.appointment.completed.v1"
	TopicAppointmentRescheduled = "scheduling.appointment.rescheduled.v1"
)

func Topics() []string {
	return []string{
		TopicAppointmentCreated,
		TopicAppointmentConfirmed,
		TopicAppointmentCancelled,
		TopicAppointmentCompleted,
		TopicAppointmentRescheduled,
	}
}

// AppointmentEvent is the decoded wire payload of an appointment topic.
type AppointmentEvent struct {
	AppointmentID      string    `json:"appointment_id"`
	ConsultantID       string    `json:"consultant_id"`
	ClientID           string    `json:"client_id"`
	ClientEmail        string    `json:"client_email"`
	Start              time.Time `json:"start"`
	DurationMins       int       `json:"duration_mins"`
	Modality           string    `json:"modality"`
	Status             string    `json:"status"`
	CancellationReason string    `json:"cancellation_reason"`
	CancelledBy        string    `json:"cancelled_by"`
	RescheduledTo      string    `json:"rescheduled_to"`
	OccurredAt         time.Time `json:"occurred_at"`
}

func (e AppointmentEvent) Valid() bool {
	return e.AppointmentID != "" && e.ConsultantID != "" && e.ClientID != "" && !e.Start.IsZero()
}

// Message is one rendered notification for one recipient.
type Message struct {
	RecipientID string
	Email       string
	Subject     string
	Body        string
}

// Compose renders the notifications both parties should receive for an
// appointment event. Unknown topics produce nothing.
func Compose(topic string, evt AppointmentEvent) []Message {
	when := evt.Start.Format("Mon, 02 Jan 2006 15:04 MST")

	var clientSubject, clientBody, consultantSubject, consultantBody string
	switch topic {
	case TopicAppointmentCreated:
		clientSubject = "Session requested"
		clientBody = fmt.Sprintf("Your session request for %s was received and is awaiting the consultant's confirmation.", when)
		consultantSubject = "New session request"
		consultantBody = fmt.Sprintf("A client requested a %s session on %s. Please confirm or decline.", evt.Modality, when)
	case TopicAppointmentConfirmed:
		clientSubject = "Session confirmed"
		clientBody = fmt.Sprintf("Your session on %s is confirmed.", when)
		consultantSubject = "Session confirmed"
		consultantBody = fmt.Sprintf("You confirmed the session on %s.", when)
	case TopicAppointmentCancelled:
		reason := evt.CancellationReason
		if reason == "" {
			reason = "no reason given"
		}
		clientSubject = "Session cancelled"
		clientBody = fmt.Sprintf("The session on %s was cancelled (%s).", when, reason)
		consultantSubject = "Session cancelled"
		consultantBody = clientBody
	case TopicAppointmentCompleted:
		clientSubject = "Session completed"
		clientBody = fmt.Sprintf("Your session on %s is complete. You can now leave a review.", when)
		consultantSubject = "Session completed"
		consultantBody = fmt.Sprintf("The session on %s was marked complete.", when)
	case TopicAppointmentRescheduled:
		clientSubject = "Session rescheduled"
		clientBody = fmt.Sprintf("Your session originally set for %s was moved to a new time. Check your upcoming sessions for details.", when)
		consultantSubject = "Session rescheduled"
		consultantBody = clientBody
	default:
		return nil
	}

	return []Message{
		{RecipientID: evt.ClientID, Email: evt.ClientEmail, Subject: clientSubject, Body: clientBody},
		{RecipientID: evt.ConsultantID, Subject: consultantSubject, Body: consultantBody},
	}
}
