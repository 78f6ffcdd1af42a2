package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/gridbot/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a new FillStore backed by the given connection pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

const fillSelectCols = `id, intent_id, order_id, symbol, action, tier_ids,
	quantity, price, proceeds, profit, success, reason, recorded_at`

func scanFillRows(rows pgx.Rows) ([]domain.Fill, error) {
	var fills []domain.Fill
	for rows.Next() {
		var f domain.Fill
		var tierIDs []int64
		if err := rows.Scan(
			&f.ID, &f.IntentID, &f.OrderID, &f.Symbol, &f.Action, &tierIDs,
			&f.Quantity, &f.Price, &f.Proceeds, &f.Profit,
			&f.Success, &f.Reason, &f.RecordedAt,
		); err != nil {
			return nil, err
		}
		f.TierIDs = make([]int, len(tierIDs))
		for i, id := range tierIDs {
			f.TierIDs[i] = int(id)
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// Create journals one fill outcome.
func (s *FillStore) Create(ctx context.Context, f domain.Fill) error {
	tierIDs := make([]int64, len(f.TierIDs))
	for i, id := range f.TierIDs {
		tierIDs[i] = int64(id)
	}

	const query = `
		INSERT INTO fills (
			id, intent_id, order_id, symbol, action, tier_ids,
			quantity, price, proceeds, profit, success, reason, recorded_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12, $13
		)`
	_, err := s.pool.Exec(ctx, query,
		f.ID, f.IntentID, f.OrderID, f.Symbol, f.Action, tierIDs,
		f.Quantity, f.Price, f.Proceeds, f.Profit, f.Success, f.Reason, f.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert fill %s: %w", f.ID, err)
	}
	return nil
}

// ListRecent returns the most recent fills for a symbol, newest first.
func (s *FillStore) ListRecent(ctx context.Context, symbol string, limit int) ([]domain.Fill, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + fillSelectCols + `
		FROM fills WHERE symbol = $1
		ORDER BY recorded_at DESC LIMIT $2`
	rows, err := s.pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent fills %s: %w", symbol, err)
	}
	defer rows.Close()

	fills, err := scanFillRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent fills %s: %w", symbol, err)
	}
	return fills, nil
}

// ListBefore returns fills recorded strictly before the cutoff, oldest first.
func (s *FillStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Fill, error) {
	query := `SELECT ` + fillSelectCols + `
		FROM fills WHERE recorded_at < $1
		ORDER BY recorded_at ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills before %s: %w", before, err)
	}
	defer rows.Close()

	fills, err := scanFillRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan fills before %s: %w", before, err)
	}
	return fills, nil
}

// DeleteBefore prunes fills recorded strictly before the cutoff.
func (s *FillStore) DeleteBefore(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM fills WHERE recorded_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete fills before %s: %w", before, err)
	}
	return int(tag.RowsAffected()), nil
}

// Compile-time interface check.
var _ domain.FillStore = (*FillStore)(nil)
