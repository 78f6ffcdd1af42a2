package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest observed prices.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (float64, time.Time, error)
}

// ReferenceStore persists the reference price (high-water mark) so it
// survives restarts. It holds a single value per symbol.
type ReferenceStore interface {
	SetReference(ctx context.Context, symbol string, price float64) error
	GetReference(ctx context.Context, symbol string) (float64, error)
}

// RateLimiter provides distributed rate limiting for gateway submissions. An
// allowed request is counted against the window; a denied one is not, so
// callers retry Allow until it grants a slot.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locks. The trading modes hold a per-symbol
// lock so two instances never trade the same instrument concurrently.
type LockManager interface {
	// Acquire obtains the lock and returns an unlock function, or
	// ErrLockHeld when another party holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
