package service

import "fmt"

// Sentinel errors surfaced to the HTTP layer.
var (
	ErrOrderNotFound   = fmt.Errorf("order not found")
	ErrEmptyOrder      = fmt.Errorf("order has no purchasable items")
	ErrUnknownProvider = fmt.Errorf("unknown payment provider")
)

// ValidationError indicates bad input; no side effects were applied.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// SessionCreationError wraps a provider failure during checkout. The pending
// order it refers to is intentionally left in place.
type SessionCreationError struct {
	Provider string
	OrderID  string
	Err      error
}

func (e *SessionCreationError) Error() string {
	return fmt.Sprintf("payment session creation failed (provider=%s, order=%s): %v",
		e.Provider, e.OrderID, e.Err)
}

func (e *SessionCreationError) Unwrap() error {
	return e.Err
}
