package notify

import (
	"strings"
	"testing"
	"time"
)

func sampleEvent() AppointmentEvent {
	return AppointmentEvent{
		AppointmentID: "appt-1",
		ConsultantID:  "cons-1",
		ClientID:      "cli-1",
		ClientEmail:   "client@example.com",
		Start:         time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
		DurationMins:  60,
		Modality:      "ONLINE",
		Status:        "PENDING",
	}
}

func TestCompose_BothPartiesNotified(t *testing.T) {
	for _, topic := range Topics() {
		msgs := Compose(topic, sampleEvent())
		if len(msgs) != 2 {
			t.Fatalf("%s: got %d messages, want 2", topic, len(msgs))
		}
		if msgs[0].RecipientID != "cli-1" || msgs[1].RecipientID != "cons-1" {
			t.Fatalf("%s: unexpected recipients %q, %q", topic, msgs[0].RecipientID, msgs[1].RecipientID)
		}
		if msgs[0].Email != "client@example.com" {
			t.Fatalf("%s: client email not carried", topic)
		}
		if msgs[1].Email != "" {
			t.Fatalf("%s: consultant message should have no email", topic)
		}
		for _, m := range msgs {
			if m.Subject == "" || m.Body == "" {
				t.Fatalf("%s: empty subject or body", topic)
			}
		}
	}
}

func TestCompose_CancellationReason(t *testing.T) {
	evt := sampleEvent()
	evt.CancellationReason = "family emergency"
	msgs := Compose(TopicAppointmentCancelled, evt)
	if !strings.Contains(msgs[0].Body, "family emergency") {
		t.Fatalf("reason missing from body: %q", msgs[0].Body)
	}

	evt.CancellationReason = ""
	msgs = Compose(TopicAppointmentCancelled, evt)
	if !strings.Contains(msgs[0].Body, "no reason given") {
		t.Fatalf("fallback reason missing: %q", msgs[0].Body)
	}
}

func TestCompose_UnknownTopic(t *testing.T) {
	if msgs := Compose("billing.invoice.paid.v1", sampleEvent()); msgs != nil {
		t.Fatalf("unknown topic composed %d messages", len(msgs))
	}
}

func TestEventValid(t *testing.T) {
	evt := sampleEvent()
	if !evt.Valid() {
		t.Fatalf("sample event should be valid")
	}
	evt.ClientID = ""
	if evt.Valid() {
		t.Fatalf("event without client should be invalid")
	}
}
