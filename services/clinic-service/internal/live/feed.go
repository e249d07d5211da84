package live

import (
	"context"
	"encoding/json"

	"github.com/physiobook/physiobook/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

// Topics the live feed consumes.
var Topics = []string{
	"booking.registration.created.v1",
	"booking.incident.recorded.v1",
	"clinic.visit.completed.v1",
	"clinic.reconciliation.flagged.v1",
}

type eventPayload struct {
	RegistrationID string `json:"registration_id"`
	SlotID         string `json:"slot_id"`
	ID             string `json:"id"`
}

// Translate maps an event to the notifications it implies.
func Translate(eventType string, payload []byte) []Notification {
	var p eventPayload
	_ = json.Unmarshal(payload, &p)

	switch eventType {
	case "booking.registration.created.v1":
		return []Notification{
			{Kind: KindRegistrationCreated, ResourceID: p.RegistrationID},
			{Kind: KindSlotChanged, ResourceID: p.SlotID},
		}
	case "clinic.visit.completed.v1":
		return []Notification{{Kind: KindVisitCompleted, ResourceID: p.RegistrationID}}
	case "booking.incident.recorded.v1", "clinic.reconciliation.flagged.v1":
		return []Notification{{Kind: KindIncidentRecorded, ResourceID: p.ID}}
	default:
		return nil
	}
}

// Handler feeds consumed events into the hub.
func (h *Hub) Handler() func(ctx context.Context, msg kafka.Message) error {
	return func(ctx context.Context, msg kafka.Message) error {
		meta := kafkax.ExtractEventMeta(msg)
		for _, n := range Translate(meta.EventType, msg.Value) {
			n.At = h.now().UTC()
			h.Broadcast(n)
		}
		return nil
	}
}
