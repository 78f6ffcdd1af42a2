package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/gridbot/internal/domain"
)

// ReferenceStore implements domain.ReferenceStore using a plain Redis string
// key per symbol. The reference price is a high-water mark, so the key is
// never expired; a restart reads it back to resume the same ladder.
type ReferenceStore struct {
	rdb *redis.Client
}

// NewReferenceStore creates a ReferenceStore backed by the given Client.
func NewReferenceStore(c *Client) *ReferenceStore {
	return &ReferenceStore{rdb: c.Underlying()}
}

func referenceKey(symbol string) string {
	return "reference:" + symbol
}

// SetReference stores the reference price for a symbol.
func (rs *ReferenceStore) SetReference(ctx context.Context, symbol string, price float64) error {
	val := strconv.FormatFloat(price, 'f', -1, 64)
	if err := rs.rdb.Set(ctx, referenceKey(symbol), val, 0).Err(); err != nil {
		return fmt.Errorf("redis: set reference %s: %w", symbol, err)
	}
	return nil
}

// GetReference retrieves the reference price for a symbol. It returns
// domain.ErrNotFound when no reference has been stored.
func (rs *ReferenceStore) GetReference(ctx context.Context, symbol string) (float64, error) {
	val, err := rs.rdb.Get(ctx, referenceKey(symbol)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("redis: get reference %s: %w", symbol, err)
	}
	price, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: parse reference %s: %w", symbol, err)
	}
	return price, nil
}

// Compile-time interface check.
var _ domain.ReferenceStore = (*ReferenceStore)(nil)
