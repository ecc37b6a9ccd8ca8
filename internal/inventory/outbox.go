package inventory

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxMessage is a serialized domain event persisted in the same
// transaction as the state change it describes. The worker dispatches
// pending messages to downstream consumers; delivery and retry beyond the
// outbox are external concerns.
type OutboxMessage struct {
	ID           string
	InventoryID  string
	EventName    string
	Payload      []byte
	OccurredAt   time.Time
	DispatchedAt *time.Time
}

// OutboxMessages serializes buffered events into outbox rows.
func OutboxMessages(inventoryID string, events []Event) ([]OutboxMessage, error) {
	if len(events) == 0 {
		return nil, nil
	}
	msgs := make([]OutboxMessage, 0, len(events))
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, OutboxMessage{
			ID:          uuid.New().String(),
			InventoryID: inventoryID,
			EventName:   e.EventName(),
			Payload:     payload,
			OccurredAt:  e.OccurredAt(),
		})
	}
	return msgs, nil
}
