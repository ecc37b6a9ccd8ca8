package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPaginationDefaults(t *testing.T) {
	p := NewPagination(0, 0, 120)
	require.Equal(t, 1, p.Page)
	require.Equal(t, 50, p.PerPage)
	require.Equal(t, 3, p.TotalPages)
	require.Equal(t, 0, p.Offset())
}

func TestPaginationOffset(t *testing.T) {
	p := NewPagination(3, 20, 100)
	require.Equal(t, 40, p.Offset())
	require.Equal(t, 5, p.TotalPages)
}

func TestUserSafeMessage(t *testing.T) {
	require.Equal(t, "", UserSafeMessage(nil))

	err := fmt.Errorf("inventory: record x corrupt: %w", ErrInvariantViolation)
	require.Equal(t, "internal inventory error", UserSafeMessage(err))

	err = fmt.Errorf("inventory: not enough: %w", ErrInsufficientStock)
	require.Equal(t, err.Error(), UserSafeMessage(err))
	require.True(t, errors.Is(err, ErrInsufficientStock))
}
