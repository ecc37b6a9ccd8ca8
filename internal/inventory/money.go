package inventory

import (
	"fmt"

	"github.com/stockledger/stockledger/internal/shared"
)

// Money is an immutable monetary value in minor units (cents). The zero value
// is a valid "no value" amount.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// NewMoney validates and builds a Money value.
func NewMoney(amount int64, currency string) (Money, error) {
	m := Money{Amount: amount, Currency: currency}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

// Validate enforces non-negativity and presence of a currency code for
// non-zero amounts.
func (m Money) Validate() error {
	if m.Amount < 0 {
		return fmt.Errorf("inventory: money amount must not be negative, got %d: %w", m.Amount, shared.ErrInvalidArgument)
	}
	if m.Amount > 0 && m.Currency == "" {
		return fmt.Errorf("inventory: money requires a currency code: %w", shared.ErrInvalidArgument)
	}
	return nil
}

// IsZero reports whether no value is set.
func (m Money) IsZero() bool {
	return m.Amount == 0 && m.Currency == ""
}

// Add returns the sum of two amounts with matching currencies.
func (m Money) Add(other Money) (Money, error) {
	if m.IsZero() {
		return other, nil
	}
	if other.IsZero() {
		return m, nil
	}
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("inventory: cannot add %s to %s: %w", other.Currency, m.Currency, shared.ErrInvalidArgument)
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Scale multiplies the amount by a non-negative factor.
func (m Money) Scale(factor int64) Money {
	if factor < 0 {
		factor = 0
	}
	return Money{Amount: m.Amount * factor, Currency: m.Currency}
}

// zeroDecimalCurrencies holds the ISO 4217 currencies whose minor unit is the
// whole unit.
var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "ISK": true,
	"JPY": true, "KMF": true, "KRW": true, "PYG": true, "RWF": true,
	"UGX": true, "VND": true, "VUV": true, "XAF": true, "XOF": true,
	"XPF": true,
}

// String renders the value for logs and reports. Amounts are in minor units;
// currencies without a minor unit render undivided.
func (m Money) String() string {
	if m.IsZero() {
		return "0"
	}
	if zeroDecimalCurrencies[m.Currency] {
		return fmt.Sprintf("%d %s", m.Amount, m.Currency)
	}
	return fmt.Sprintf("%d.%02d %s", m.Amount/100, m.Amount%100, m.Currency)
}
