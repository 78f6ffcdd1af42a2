package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/gridbot/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL. Tier and
// position detail is stored as JSONB; the scalar fields get their own columns
// so operators can query them directly.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a new SnapshotStore backed by the given pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// SaveSnapshot appends one engine snapshot.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snap domain.EngineSnapshot) error {
	tiers, err := json.Marshal(snap.Tiers)
	if err != nil {
		return fmt.Errorf("postgres: marshal snapshot tiers: %w", err)
	}
	positions, err := json.Marshal(snap.Positions)
	if err != nil {
		return fmt.Errorf("postgres: marshal snapshot positions: %w", err)
	}

	const query = `
		INSERT INTO snapshots (
			symbol, reference_price, suspended, cash, baseline_capital,
			tiers, positions, taken_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = s.pool.Exec(ctx, query,
		snap.Symbol, snap.ReferencePrice, snap.Suspended,
		snap.Account.Cash, snap.Account.BaselineCapital,
		tiers, positions, snap.TakenAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert snapshot %s: %w", snap.Symbol, err)
	}
	return nil
}

// LatestSnapshot returns the most recent snapshot for a symbol. It returns
// domain.ErrNotFound when no snapshot exists.
func (s *SnapshotStore) LatestSnapshot(ctx context.Context, symbol string) (domain.EngineSnapshot, error) {
	const query = `
		SELECT symbol, reference_price, suspended, cash, baseline_capital,
			tiers, positions, taken_at
		FROM snapshots WHERE symbol = $1
		ORDER BY taken_at DESC LIMIT 1`

	var snap domain.EngineSnapshot
	var tiers, positions []byte
	err := s.pool.QueryRow(ctx, query, symbol).Scan(
		&snap.Symbol, &snap.ReferencePrice, &snap.Suspended,
		&snap.Account.Cash, &snap.Account.BaselineCapital,
		&tiers, &positions, &snap.TakenAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EngineSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.EngineSnapshot{}, fmt.Errorf("postgres: latest snapshot %s: %w", symbol, err)
	}

	if err := json.Unmarshal(tiers, &snap.Tiers); err != nil {
		return domain.EngineSnapshot{}, fmt.Errorf("postgres: unmarshal snapshot tiers: %w", err)
	}
	if err := json.Unmarshal(positions, &snap.Positions); err != nil {
		return domain.EngineSnapshot{}, fmt.Errorf("postgres: unmarshal snapshot positions: %w", err)
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.SnapshotStore = (*SnapshotStore)(nil)
