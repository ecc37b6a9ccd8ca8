package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument indicates a precondition on an input value was violated.
	// Fully recoverable by the caller correcting the input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInsufficientStock indicates a reservation exceeding available stock or a
	// release/consumption exceeding reserved stock. Recoverable by retrying with
	// a smaller amount or after stock changes.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvariantViolation signals internal state already broke an invariant.
	// Treated as a bug, never surfaced as a user-correctable condition.
	ErrInvariantViolation = errors.New("invariant violation")
)

// UserSafeMessage returns a message safe to surface to callers. Invariant
// diagnostics collapse to a generic message and stay in logs.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvariantViolation):
		return "internal inventory error"
	default:
		return err.Error()
	}
}
