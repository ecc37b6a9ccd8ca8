package inventory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stockledger/stockledger/internal/shared"
)

func TestNewMoney(t *testing.T) {
	m, err := NewMoney(2500, "USD")
	require.NoError(t, err)
	require.Equal(t, int64(2500), m.Amount)

	_, err = NewMoney(-1, "USD")
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	_, err = NewMoney(100, "")
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	m, err = NewMoney(0, "")
	require.NoError(t, err)
	require.True(t, m.IsZero())
}

func TestMoneyAdd(t *testing.T) {
	a := Money{Amount: 100, Currency: "USD"}
	b := Money{Amount: 250, Currency: "USD"}

	sum, err := a.Add(b)
	require.NoError(t, err)
	require.Equal(t, Money{Amount: 350, Currency: "USD"}, sum)

	sum, err = Money{}.Add(b)
	require.NoError(t, err)
	require.Equal(t, b, sum)

	_, err = a.Add(Money{Amount: 10, Currency: "IDR"})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestMoneyScaleAndString(t *testing.T) {
	m := Money{Amount: 1250, Currency: "USD"}
	require.Equal(t, Money{Amount: 6250, Currency: "USD"}, m.Scale(5))
	require.Equal(t, Money{Amount: 0, Currency: "USD"}, m.Scale(-3))

	require.Equal(t, "12.50 USD", m.String())
	require.Equal(t, "0.05 USD", Money{Amount: 5, Currency: "USD"}.String())
	require.Equal(t, "1250 JPY", Money{Amount: 1250, Currency: "JPY"}.String())
	require.Equal(t, "0", Money{}.String())
}
