package inventory

import (
	"fmt"

	"github.com/stockledger/stockledger/internal/shared"
)

// Rule is a pure predicate over aggregate state plus a proposed mutation.
// Rules are evaluated before the aggregate mutates; a broken critical rule
// aborts the operation. Non-critical rules are advisory only.
type Rule interface {
	IsBroken() bool
	Message() string
	RuleName() string
	ErrorCode() string
	IsCritical() bool
}

// RuleError reports the first broken critical rule.
type RuleError struct {
	Rule     string
	Code     string
	Detail   string
	category error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("inventory: %s: %s", e.Rule, e.Detail)
}

// Unwrap maps the rule onto the error taxonomy so callers can match with
// errors.Is against shared.ErrInvalidArgument or shared.ErrInsufficientStock.
func (e *RuleError) Unwrap() error {
	return e.category
}

var ruleCategories = map[string]error{
	CodeNegativeQuantity:      shared.ErrInvalidArgument,
	CodeNonPositiveAmount:     shared.ErrInvalidArgument,
	CodeStockLevelBounds:      shared.ErrInvalidArgument,
	CodeStockBelowReserved:    shared.ErrInvalidArgument,
	CodeRecordInactive:        shared.ErrInvalidArgument,
	CodeInsufficientAvailable: shared.ErrInsufficientStock,
	CodeReleaseExceedsHeld:    shared.ErrInsufficientStock,
	CodeConsumeExceedsHeld:    shared.ErrInsufficientStock,
}

// Error codes carried by rules and surfaced in transport payloads.
const (
	CodeNegativeQuantity      = "INV_NEGATIVE_QUANTITY"
	CodeNonPositiveAmount     = "INV_NON_POSITIVE_AMOUNT"
	CodeStockLevelBounds      = "INV_STOCK_LEVEL_BOUNDS"
	CodeStockBelowReserved    = "INV_STOCK_BELOW_RESERVED"
	CodeRecordInactive        = "INV_RECORD_INACTIVE"
	CodeInsufficientAvailable = "INV_INSUFFICIENT_AVAILABLE"
	CodeReleaseExceedsHeld    = "INV_RELEASE_EXCEEDS_HELD"
	CodeConsumeExceedsHeld    = "INV_CONSUME_EXCEEDS_HELD"
	CodeLowStockAlert         = "INV_LOW_STOCK_ALERT"
	CodeOverstockAlert        = "INV_OVERSTOCK_ALERT"
)

// CheckRules returns a RuleError for the first broken critical rule, nil when
// every critical rule holds. Advisory rules are skipped.
func CheckRules(rules ...Rule) error {
	for _, rule := range rules {
		if !rule.IsCritical() || !rule.IsBroken() {
			continue
		}
		category, ok := ruleCategories[rule.ErrorCode()]
		if !ok {
			category = shared.ErrInvalidArgument
		}
		return &RuleError{
			Rule:     rule.RuleName(),
			Code:     rule.ErrorCode(),
			Detail:   rule.Message(),
			category: category,
		}
	}
	return nil
}

// NonNegativeQuantityRule rejects negative absolute quantities, e.g. initial
// stock or a stock-update target.
type NonNegativeQuantityRule struct {
	Quantity int
}

func (r NonNegativeQuantityRule) IsBroken() bool { return r.Quantity < 0 }
func (r NonNegativeQuantityRule) Message() string {
	return fmt.Sprintf("quantity must not be negative, got %d", r.Quantity)
}
func (r NonNegativeQuantityRule) RuleName() string  { return "non_negative_quantity" }
func (r NonNegativeQuantityRule) ErrorCode() string { return CodeNegativeQuantity }
func (r NonNegativeQuantityRule) IsCritical() bool  { return true }

// PositiveAmountRule rejects non-positive reserve/release/consume amounts.
type PositiveAmountRule struct {
	Amount    int
	Operation string
}

func (r PositiveAmountRule) IsBroken() bool { return r.Amount <= 0 }
func (r PositiveAmountRule) Message() string {
	return fmt.Sprintf("%s amount must be positive, got %d", r.Operation, r.Amount)
}
func (r PositiveAmountRule) RuleName() string  { return "positive_amount" }
func (r PositiveAmountRule) ErrorCode() string { return CodeNonPositiveAmount }
func (r PositiveAmountRule) IsCritical() bool  { return true }

// StockLevelBoundsRule enforces 0 <= minimum < maximum.
type StockLevelBoundsRule struct {
	Minimum int
	Maximum int
}

func (r StockLevelBoundsRule) IsBroken() bool { return r.Minimum < 0 || r.Maximum <= r.Minimum }
func (r StockLevelBoundsRule) Message() string {
	return fmt.Sprintf("stock levels require 0 <= minimum < maximum, got minimum=%d maximum=%d", r.Minimum, r.Maximum)
}
func (r StockLevelBoundsRule) RuleName() string  { return "stock_level_bounds" }
func (r StockLevelBoundsRule) ErrorCode() string { return CodeStockLevelBounds }
func (r StockLevelBoundsRule) IsCritical() bool  { return true }

// StockUpdateRule prevents shrinking stock below what is already reserved.
type StockUpdateRule struct {
	NewQuantity      int
	ReservedQuantity int
}

func (r StockUpdateRule) IsBroken() bool { return r.NewQuantity < r.ReservedQuantity }
func (r StockUpdateRule) Message() string {
	return fmt.Sprintf("new quantity %d is below reserved quantity %d", r.NewQuantity, r.ReservedQuantity)
}
func (r StockUpdateRule) RuleName() string  { return "stock_update" }
func (r StockUpdateRule) ErrorCode() string { return CodeStockBelowReserved }
func (r StockUpdateRule) IsCritical() bool  { return true }

// ActiveRecordRule rejects mutations that require an active record.
type ActiveRecordRule struct {
	Status    Status
	Operation string
}

func (r ActiveRecordRule) IsBroken() bool { return r.Status == StatusInactive }
func (r ActiveRecordRule) Message() string {
	return fmt.Sprintf("cannot %s against an inactive record", r.Operation)
}
func (r ActiveRecordRule) RuleName() string  { return "active_record" }
func (r ActiveRecordRule) ErrorCode() string { return CodeRecordInactive }
func (r ActiveRecordRule) IsCritical() bool  { return true }

// ReservationRule prevents reserving more than is available. No partial
// reservation: the whole request either fits or fails.
type ReservationRule struct {
	Requested int
	Available int
}

func (r ReservationRule) IsBroken() bool { return r.Requested > r.Available }
func (r ReservationRule) Message() string {
	return fmt.Sprintf("requested %d exceeds available quantity %d", r.Requested, r.Available)
}
func (r ReservationRule) RuleName() string  { return "reservation" }
func (r ReservationRule) ErrorCode() string { return CodeInsufficientAvailable }
func (r ReservationRule) IsCritical() bool  { return true }

// ReleaseRule prevents releasing more than is currently held reserved.
type ReleaseRule struct {
	Requested int
	Reserved  int
}

func (r ReleaseRule) IsBroken() bool { return r.Requested > r.Reserved }
func (r ReleaseRule) Message() string {
	return fmt.Sprintf("requested release %d exceeds reserved quantity %d", r.Requested, r.Reserved)
}
func (r ReleaseRule) RuleName() string  { return "release" }
func (r ReleaseRule) ErrorCode() string { return CodeReleaseExceedsHeld }
func (r ReleaseRule) IsCritical() bool  { return true }

// ConsumptionRule prevents consuming more than is currently held reserved.
type ConsumptionRule struct {
	Requested int
	Reserved  int
}

func (r ConsumptionRule) IsBroken() bool { return r.Requested > r.Reserved }
func (r ConsumptionRule) Message() string {
	return fmt.Sprintf("requested consumption %d exceeds reserved quantity %d", r.Requested, r.Reserved)
}
func (r ConsumptionRule) RuleName() string  { return "consumption" }
func (r ConsumptionRule) ErrorCode() string { return CodeConsumeExceedsHeld }
func (r ConsumptionRule) IsCritical() bool  { return true }

// LowStockAlertRule flags available quantity at or below the minimum level.
// Informational only, never blocks an operation.
type LowStockAlertRule struct {
	Available int
	Minimum   int
}

func (r LowStockAlertRule) IsBroken() bool { return r.Available <= r.Minimum }
func (r LowStockAlertRule) Message() string {
	return fmt.Sprintf("available quantity %d is at or below minimum level %d", r.Available, r.Minimum)
}
func (r LowStockAlertRule) RuleName() string  { return "low_stock_alert" }
func (r LowStockAlertRule) ErrorCode() string { return CodeLowStockAlert }
func (r LowStockAlertRule) IsCritical() bool  { return false }

// OverstockAlertRule flags quantity above the maximum level. Informational
// only.
type OverstockAlertRule struct {
	Quantity int
	Maximum  int
}

func (r OverstockAlertRule) IsBroken() bool { return r.Quantity > r.Maximum }
func (r OverstockAlertRule) Message() string {
	return fmt.Sprintf("quantity %d exceeds maximum level %d", r.Quantity, r.Maximum)
}
func (r OverstockAlertRule) RuleName() string  { return "overstock_alert" }
func (r OverstockAlertRule) ErrorCode() string { return CodeOverstockAlert }
func (r OverstockAlertRule) IsCritical() bool  { return false }
