package domain

import "errors"

var (
	// ErrIllegalTransition marks a requested tier state change outside the
	// allowed table. Rejected locally by the tier book and never propagated,
	// so a caller bug cannot abort the evaluation loop.
	ErrIllegalTransition = errors.New("illegal tier transition")
	// ErrValidation marks a computed quantity or price failing sanity checks.
	ErrValidation = errors.New("order validation failed")
	// ErrInsufficientFunds marks an aggregate batch cost exceeding cash.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrGatewayFailure marks a failed or rejected submission/poll.
	ErrGatewayFailure = errors.New("gateway failure")
	// ErrFillTimeout marks a zero-fill poll timeout.
	ErrFillTimeout = errors.New("fill timeout")
	// ErrReconcileMismatch marks distributed fill quantities not summing to
	// the reported total.
	ErrReconcileMismatch = errors.New("reconciliation mismatch")

	ErrNotFound     = errors.New("not found")
	ErrLockHeld     = errors.New("lock already held")
	ErrWSDisconnect = errors.New("websocket disconnected")
)
