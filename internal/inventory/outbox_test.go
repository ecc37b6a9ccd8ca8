package inventory

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutboxMessagesFromAggregate(t *testing.T) {
	rec := newTestRecord(t, CreateInput{ProductID: "prod-1", InitialQuantity: 100})
	require.NoError(t, rec.ReserveStock(25, "order", "alice"))

	msgs, err := OutboxMessages(rec.ID(), rec.PendingEvents())
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	require.Equal(t, "inventory.created", msgs[0].EventName)
	require.Equal(t, "inventory.reserved", msgs[1].EventName)
	for _, m := range msgs {
		require.NotEmpty(t, m.ID)
		require.Equal(t, rec.ID(), m.InventoryID)
		require.Nil(t, m.DispatchedAt)
		require.False(t, m.OccurredAt.IsZero())
	}

	var reserved ReservedEvent
	require.NoError(t, json.Unmarshal(msgs[1].Payload, &reserved))
	require.Equal(t, 25, reserved.Quantity)
	require.Equal(t, "alice", reserved.ReservedBy)
}

func TestOutboxMessagesEmpty(t *testing.T) {
	msgs, err := OutboxMessages("rec-1", nil)
	require.NoError(t, err)
	require.Nil(t, msgs)
}
