package inventory

import "time"

// Event is a fire-and-forget record describing what happened to a record.
// Exactly one event accompanies every successful mutation; events are
// buffered on the aggregate and written to the outbox in the same
// transaction as the state change.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// CreatedEvent is raised when a record is created.
type CreatedEvent struct {
	InventoryID string    `json:"inventory_id"`
	ProductID   string    `json:"product_id"`
	Quantity    int       `json:"quantity"`
	At          time.Time `json:"at"`
}

func (e CreatedEvent) EventName() string     { return "inventory.created" }
func (e CreatedEvent) OccurredAt() time.Time { return e.At }

// StockUpdatedEvent is raised when the total quantity is set.
type StockUpdatedEvent struct {
	InventoryID string    `json:"inventory_id"`
	ProductID   string    `json:"product_id"`
	OldQuantity int       `json:"old_quantity"`
	NewQuantity int       `json:"new_quantity"`
	Reason      string    `json:"reason"`
	ChangedBy   string    `json:"changed_by"`
	At          time.Time `json:"at"`
}

func (e StockUpdatedEvent) EventName() string     { return "inventory.stock_updated" }
func (e StockUpdatedEvent) OccurredAt() time.Time { return e.At }

// ReservedEvent is raised when stock is reserved.
type ReservedEvent struct {
	InventoryID string    `json:"inventory_id"`
	ProductID   string    `json:"product_id"`
	Quantity    int       `json:"quantity"`
	OldReserved int       `json:"old_reserved"`
	NewReserved int       `json:"new_reserved"`
	Reason      string    `json:"reason"`
	ReservedBy  string    `json:"reserved_by"`
	At          time.Time `json:"at"`
}

func (e ReservedEvent) EventName() string     { return "inventory.reserved" }
func (e ReservedEvent) OccurredAt() time.Time { return e.At }

// ReleasedEvent is raised when a reservation is undone.
type ReleasedEvent struct {
	InventoryID string    `json:"inventory_id"`
	ProductID   string    `json:"product_id"`
	Quantity    int       `json:"quantity"`
	OldReserved int       `json:"old_reserved"`
	NewReserved int       `json:"new_reserved"`
	Reason      string    `json:"reason"`
	ReleasedBy  string    `json:"released_by"`
	At          time.Time `json:"at"`
}

func (e ReleasedEvent) EventName() string     { return "inventory.released" }
func (e ReleasedEvent) OccurredAt() time.Time { return e.At }

// ConsumedEvent is raised when reserved stock permanently leaves the ledger.
type ConsumedEvent struct {
	InventoryID string    `json:"inventory_id"`
	ProductID   string    `json:"product_id"`
	Quantity    int       `json:"quantity"`
	OldQuantity int       `json:"old_quantity"`
	NewQuantity int       `json:"new_quantity"`
	Reason      string    `json:"reason"`
	ConsumedBy  string    `json:"consumed_by"`
	At          time.Time `json:"at"`
}

func (e ConsumedEvent) EventName() string     { return "inventory.consumed" }
func (e ConsumedEvent) OccurredAt() time.Time { return e.At }
