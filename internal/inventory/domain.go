package inventory

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/stockledger/stockledger/internal/shared"
)

// Status enumerates derived stock-level states.
type Status string

const (
	// StatusActive indicates normal stock levels.
	StatusActive Status = "ACTIVE"
	// StatusLowStock indicates available quantity at or below the minimum level.
	StatusLowStock Status = "LOW_STOCK"
	// StatusOutOfStock indicates no available quantity.
	StatusOutOfStock Status = "OUT_OF_STOCK"
	// StatusOverstocked indicates quantity above the maximum level.
	StatusOverstocked Status = "OVERSTOCKED"
	// StatusInactive is set only by explicit deactivation and survives
	// quantity recomputation until reactivated.
	StatusInactive Status = "INACTIVE"
)

// Default stock-level bounds applied when a record is created without
// explicit levels.
const (
	DefaultMinimumStockLevel = 10
	DefaultMaximumStockLevel = 1000
)

// InfiniteDaysUntilStockout is returned by DaysUntilStockout when the daily
// rate is not positive.
const InfiniteDaysUntilStockout = math.MaxInt

// Record is the stock ledger aggregate root. All state changes go through its
// methods; every mutation appends exactly one transaction and buffers exactly
// one domain event, or leaves the record untouched.
type Record struct {
	id                string
	productID         string
	quantity          int
	reservedQuantity  int
	initialQuantity   int
	minimumStockLevel int
	maximumStockLevel int
	location          string
	warehouseCode     string
	unitValue         Money
	status            Status
	createdAt         time.Time
	lastUpdated       time.Time

	transactions []Transaction
	uncommitted  []Transaction
	pending      []Event

	refs *ReferenceGenerator
	now  func() time.Time
}

// CreateInput carries parameters for NewRecord. Leaving both stock levels at
// zero applies the package defaults.
type CreateInput struct {
	ProductID         string
	InitialQuantity   int
	MinimumStockLevel int
	MaximumStockLevel int
	Location          string
	WarehouseCode     string
	UnitValue         Money
}

// NewRecord validates input and builds an active record. No transaction is
// written for creation; the log only covers changes to an existing record.
func NewRecord(input CreateInput, refs *ReferenceGenerator, now func() time.Time) (*Record, error) {
	if input.ProductID == "" {
		return nil, fmt.Errorf("inventory: product id required: %w", shared.ErrInvalidArgument)
	}
	min, max := input.MinimumStockLevel, input.MaximumStockLevel
	if min == 0 && max == 0 {
		min, max = DefaultMinimumStockLevel, DefaultMaximumStockLevel
	}
	if err := CheckRules(
		NonNegativeQuantityRule{Quantity: input.InitialQuantity},
		StockLevelBoundsRule{Minimum: min, Maximum: max},
	); err != nil {
		return nil, err
	}
	if err := input.UnitValue.Validate(); err != nil {
		return nil, err
	}
	if refs == nil {
		refs = DefaultReferenceGenerator()
	}
	if now == nil {
		now = time.Now
	}
	ts := now().UTC()
	r := &Record{
		id:                uuid.New().String(),
		productID:         input.ProductID,
		quantity:          input.InitialQuantity,
		reservedQuantity:  0,
		initialQuantity:   input.InitialQuantity,
		minimumStockLevel: min,
		maximumStockLevel: max,
		location:          input.Location,
		warehouseCode:     input.WarehouseCode,
		unitValue:         input.UnitValue,
		status:            StatusActive,
		createdAt:         ts,
		lastUpdated:       ts,
		refs:              refs,
		now:               now,
	}
	r.recomputeStatus()
	r.raise(CreatedEvent{
		InventoryID: r.id,
		ProductID:   r.productID,
		Quantity:    r.quantity,
		At:          ts,
	})
	return r, nil
}

// ReconstructInput restores a record from persisted state.
type ReconstructInput struct {
	ID                string
	ProductID         string
	Quantity          int
	ReservedQuantity  int
	InitialQuantity   int
	MinimumStockLevel int
	MaximumStockLevel int
	Location          string
	WarehouseCode     string
	UnitValue         Money
	Status            Status
	CreatedAt         time.Time
	LastUpdated       time.Time
	Transactions      []Transaction
}

// Reconstruct rebuilds an aggregate from storage. The restored state must
// already satisfy every invariant; a violation here is a data corruption
// signal, not a caller mistake.
func Reconstruct(input ReconstructInput, refs *ReferenceGenerator, now func() time.Time) (*Record, error) {
	if input.ID == "" || input.ProductID == "" {
		return nil, fmt.Errorf("inventory: reconstruct requires id and product id: %w", shared.ErrInvalidArgument)
	}
	if refs == nil {
		refs = DefaultReferenceGenerator()
	}
	if now == nil {
		now = time.Now
	}
	r := &Record{
		id:                input.ID,
		productID:         input.ProductID,
		quantity:          input.Quantity,
		reservedQuantity:  input.ReservedQuantity,
		initialQuantity:   input.InitialQuantity,
		minimumStockLevel: input.MinimumStockLevel,
		maximumStockLevel: input.MaximumStockLevel,
		location:          input.Location,
		warehouseCode:     input.WarehouseCode,
		unitValue:         input.UnitValue,
		status:            input.Status,
		createdAt:         input.CreatedAt,
		lastUpdated:       input.LastUpdated,
		transactions:      input.Transactions,
		refs:              refs,
		now:               now,
	}
	if err := r.assertConsistent(); err != nil {
		return nil, err
	}
	return r, nil
}

// UpdateStock sets the total on-hand quantity. Stock cannot shrink below what
// is already reserved.
func (r *Record) UpdateStock(newQuantity int, reason, changedBy string) error {
	if err := r.assertConsistent(); err != nil {
		return err
	}
	if err := CheckRules(
		NonNegativeQuantityRule{Quantity: newQuantity},
		StockUpdateRule{NewQuantity: newQuantity, ReservedQuantity: r.reservedQuantity},
	); err != nil {
		return err
	}
	old := r.quantity
	r.quantity = newQuantity
	r.touch()
	r.recomputeStatus()
	r.appendTransaction(TransactionTypeStockUpdate, old, newQuantity, reason, changedBy)
	r.raise(StockUpdatedEvent{
		InventoryID: r.id,
		ProductID:   r.productID,
		OldQuantity: old,
		NewQuantity: newQuantity,
		Reason:      reason,
		ChangedBy:   changedBy,
		At:          r.lastUpdated,
	})
	return nil
}

// ReserveStock places a soft hold on available stock for a pending order.
func (r *Record) ReserveStock(quantity int, reason, reservedBy string) error {
	if err := r.assertConsistent(); err != nil {
		return err
	}
	if err := CheckRules(
		PositiveAmountRule{Amount: quantity, Operation: "reserve"},
		ActiveRecordRule{Status: r.status, Operation: "reserve"},
		ReservationRule{Requested: quantity, Available: r.AvailableQuantity()},
	); err != nil {
		return err
	}
	old := r.reservedQuantity
	r.reservedQuantity += quantity
	r.touch()
	r.recomputeStatus()
	r.appendTransaction(TransactionTypeReservation, old, r.reservedQuantity, reason, reservedBy)
	r.raise(ReservedEvent{
		InventoryID: r.id,
		ProductID:   r.productID,
		Quantity:    quantity,
		OldReserved: old,
		NewReserved: r.reservedQuantity,
		Reason:      reason,
		ReservedBy:  reservedBy,
		At:          r.lastUpdated,
	})
	return nil
}

// ReleaseReservedStock undoes a reservation without consuming stock, e.g. an
// order cancelled before fulfillment.
func (r *Record) ReleaseReservedStock(quantity int, reason, releasedBy string) error {
	if err := r.assertConsistent(); err != nil {
		return err
	}
	if err := CheckRules(
		PositiveAmountRule{Amount: quantity, Operation: "release"},
		ReleaseRule{Requested: quantity, Reserved: r.reservedQuantity},
	); err != nil {
		return err
	}
	old := r.reservedQuantity
	r.reservedQuantity -= quantity
	r.touch()
	r.recomputeStatus()
	r.appendTransaction(TransactionTypeRelease, old, r.reservedQuantity, reason, releasedBy)
	r.raise(ReleasedEvent{
		InventoryID: r.id,
		ProductID:   r.productID,
		Quantity:    quantity,
		OldReserved: old,
		NewReserved: r.reservedQuantity,
		Reason:      reason,
		ReleasedBy:  releasedBy,
		At:          r.lastUpdated,
	})
	return nil
}

// ConsumeReservedStock converts a reservation into a permanent deduction:
// reserved and total quantity decrease in lockstep, so this path is exempt
// from the stock-update check against reserved quantity. It is the only
// operation that reduces total stock as a side effect of reservation
// bookkeeping.
func (r *Record) ConsumeReservedStock(quantity int, reason, consumedBy string) error {
	if err := r.assertConsistent(); err != nil {
		return err
	}
	if err := CheckRules(
		PositiveAmountRule{Amount: quantity, Operation: "consume"},
		ConsumptionRule{Requested: quantity, Reserved: r.reservedQuantity},
	); err != nil {
		return err
	}
	oldQuantity := r.quantity
	r.reservedQuantity -= quantity
	r.quantity -= quantity
	r.touch()
	r.recomputeStatus()
	// The consumption transaction snapshots the stock quantity, not the
	// reserved counter.
	r.appendTransaction(TransactionTypeConsumption, oldQuantity, r.quantity, reason, consumedBy)
	r.raise(ConsumedEvent{
		InventoryID: r.id,
		ProductID:   r.productID,
		Quantity:    quantity,
		OldQuantity: oldQuantity,
		NewQuantity: r.quantity,
		Reason:      reason,
		ConsumedBy:  consumedBy,
		At:          r.lastUpdated,
	})
	return nil
}

// UpdateMinimumStockLevel validates the new minimum against the current
// maximum and recomputes status; crossing a threshold can flip status without
// any quantity change.
func (r *Record) UpdateMinimumStockLevel(minimum int) error {
	if err := r.assertConsistent(); err != nil {
		return err
	}
	if err := CheckRules(StockLevelBoundsRule{Minimum: minimum, Maximum: r.maximumStockLevel}); err != nil {
		return err
	}
	r.minimumStockLevel = minimum
	r.touch()
	r.recomputeStatus()
	return nil
}

// UpdateMaximumStockLevel validates the new maximum against the current
// minimum and recomputes status.
func (r *Record) UpdateMaximumStockLevel(maximum int) error {
	if err := r.assertConsistent(); err != nil {
		return err
	}
	if err := CheckRules(StockLevelBoundsRule{Minimum: r.minimumStockLevel, Maximum: maximum}); err != nil {
		return err
	}
	r.maximumStockLevel = maximum
	r.touch()
	r.recomputeStatus()
	return nil
}

// Deactivate flags the record inactive. Inactive records reject reservations
// and keep their status through quantity recomputation.
func (r *Record) Deactivate() {
	r.status = StatusInactive
	r.touch()
}

// Reactivate clears the inactive flag and derives status from quantities.
func (r *Record) Reactivate() {
	r.status = StatusActive
	r.touch()
	r.recomputeStatus()
}

// recomputeStatus derives status from the quantity fields. OutOfStock wins
// over LowStock; Inactive is never overridden here.
func (r *Record) recomputeStatus() {
	if r.status == StatusInactive {
		return
	}
	available := r.AvailableQuantity()
	switch {
	case available == 0:
		r.status = StatusOutOfStock
	case available <= r.minimumStockLevel:
		r.status = StatusLowStock
	case r.quantity > r.maximumStockLevel:
		r.status = StatusOverstocked
	default:
		r.status = StatusActive
	}
}

// assertConsistent verifies the stored invariants before a mutation touches
// state. A failure means the record was already corrupt.
func (r *Record) assertConsistent() error {
	switch {
	case r.quantity < 0:
		return fmt.Errorf("inventory: record %s has negative quantity %d: %w", r.id, r.quantity, shared.ErrInvariantViolation)
	case r.reservedQuantity < 0:
		return fmt.Errorf("inventory: record %s has negative reserved quantity %d: %w", r.id, r.reservedQuantity, shared.ErrInvariantViolation)
	case r.reservedQuantity > r.quantity:
		return fmt.Errorf("inventory: record %s reserved %d exceeds quantity %d: %w", r.id, r.reservedQuantity, r.quantity, shared.ErrInvariantViolation)
	case r.minimumStockLevel < 0 || r.minimumStockLevel >= r.maximumStockLevel:
		return fmt.Errorf("inventory: record %s has inverted stock levels min=%d max=%d: %w", r.id, r.minimumStockLevel, r.maximumStockLevel, shared.ErrInvariantViolation)
	}
	return nil
}

func (r *Record) touch() {
	r.lastUpdated = r.now().UTC()
}

func (r *Record) appendTransaction(txType TransactionType, oldValue, newValue int, reason, performedBy string) {
	tx := Transaction{
		ID:              uuid.New().String(),
		InventoryID:     r.id,
		Type:            txType,
		OldQuantity:     oldValue,
		NewQuantity:     newValue,
		Reason:          reason,
		PerformedBy:     performedBy,
		TransactionDate: r.lastUpdated,
		ReferenceNumber: r.refs.Generate(txType.ReferencePrefix(), r.lastUpdated),
	}
	r.transactions = append(r.transactions, tx)
	r.uncommitted = append(r.uncommitted, tx)
}

func (r *Record) raise(e Event) {
	r.pending = append(r.pending, e)
}

// PendingEvents returns events raised since the last drain without clearing
// them. The service layer reads these inside the persistence transaction.
func (r *Record) PendingEvents() []Event {
	out := make([]Event, len(r.pending))
	copy(out, r.pending)
	return out
}

// DrainEvents returns and clears the pending event buffer. Called after a
// successful commit.
func (r *Record) DrainEvents() []Event {
	out := r.pending
	r.pending = nil
	return out
}

// UncommittedTransactions returns transactions appended since load.
func (r *Record) UncommittedTransactions() []Transaction {
	out := make([]Transaction, len(r.uncommitted))
	copy(out, r.uncommitted)
	return out
}

// MarkCommitted clears the uncommitted transaction buffer after persistence.
func (r *Record) MarkCommitted() {
	r.uncommitted = nil
}

// Query operations. Pure, no side effects.

// AvailableQuantity is always derived, never stored.
func (r *Record) AvailableQuantity() int {
	return r.quantity - r.reservedQuantity
}

// IsInStock reports whether any quantity is available.
func (r *Record) IsInStock() bool {
	return r.AvailableQuantity() > 0
}

// IsLowStock reports whether available quantity is at or below the minimum.
func (r *Record) IsLowStock() bool {
	return r.AvailableQuantity() > 0 && r.AvailableQuantity() <= r.minimumStockLevel
}

// IsOutOfStock reports whether nothing is available.
func (r *Record) IsOutOfStock() bool {
	return r.AvailableQuantity() == 0
}

// IsOverstocked reports whether quantity exceeds the maximum level.
func (r *Record) IsOverstocked() bool {
	return r.quantity > r.maximumStockLevel
}

// CanReserve reports whether a reservation of qty would pass the rules.
// It mirrors the ReserveStock preconditions: only Inactive blocks the
// record, a LowStock or Overstocked status does not.
func (r *Record) CanReserve(qty int) bool {
	return qty > 0 && r.status != StatusInactive && r.AvailableQuantity() >= qty
}

// StockUtilizationPercentage returns quantity relative to the maximum level.
func (r *Record) StockUtilizationPercentage() float64 {
	if r.maximumStockLevel == 0 {
		return 0
	}
	return float64(r.quantity) / float64(r.maximumStockLevel) * 100
}

// DaysUntilStockout estimates days of cover at the given daily consumption
// rate. A non-positive rate returns InfiniteDaysUntilStockout.
func (r *Record) DaysUntilStockout(dailyRate float64) int {
	if dailyRate <= 0 {
		return InfiniteDaysUntilStockout
	}
	return int(math.Floor(float64(r.AvailableQuantity()) / dailyRate))
}

// StockValue returns the monetary value of on-hand stock.
func (r *Record) StockValue() Money {
	return r.unitValue.Scale(int64(r.quantity))
}

// AdvisoryRules returns the informational rules evaluated against current
// state. They never block an operation; callers use them for alerting.
func (r *Record) AdvisoryRules() []Rule {
	return []Rule{
		LowStockAlertRule{Available: r.AvailableQuantity(), Minimum: r.minimumStockLevel},
		OverstockAlertRule{Quantity: r.quantity, Maximum: r.maximumStockLevel},
	}
}

// Getters.

func (r *Record) ID() string             { return r.id }
func (r *Record) ProductID() string      { return r.productID }
func (r *Record) Quantity() int          { return r.quantity }
func (r *Record) ReservedQuantity() int  { return r.reservedQuantity }
func (r *Record) InitialQuantity() int   { return r.initialQuantity }
func (r *Record) MinimumStockLevel() int { return r.minimumStockLevel }
func (r *Record) MaximumStockLevel() int { return r.maximumStockLevel }
func (r *Record) Location() string       { return r.location }
func (r *Record) WarehouseCode() string  { return r.warehouseCode }
func (r *Record) UnitValue() Money       { return r.unitValue }
func (r *Record) Status() Status         { return r.status }
func (r *Record) CreatedAt() time.Time   { return r.createdAt }
func (r *Record) LastUpdated() time.Time { return r.lastUpdated }

// Transactions returns the append-only transaction log in creation order.
func (r *Record) Transactions() []Transaction {
	out := make([]Transaction, len(r.transactions))
	copy(out, r.transactions)
	return out
}
