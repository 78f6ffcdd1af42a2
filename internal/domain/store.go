package domain

import (
	"context"
	"io"
	"time"
)

// SnapshotStore persists read-only engine snapshots for display and audit.
// It never writes back into engine state.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap EngineSnapshot) error
	LatestSnapshot(ctx context.Context, symbol string) (EngineSnapshot, error)
}

// FillStore journals applied fill outcomes.
type FillStore interface {
	Create(ctx context.Context, fill Fill) error
	ListRecent(ctx context.Context, symbol string, limit int) ([]Fill, error)
	// ListBefore returns fills recorded strictly before the cutoff, for
	// archival.
	ListBefore(ctx context.Context, before time.Time) ([]Fill, error)
	// DeleteBefore prunes fills recorded strictly before the cutoff and
	// returns the number deleted. Called after a successful archive upload.
	DeleteBefore(ctx context.Context, before time.Time) (int, error)
}

// BlobWriter uploads a serialized object to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver moves aged journal records into blob storage.
type Archiver interface {
	// ArchiveBefore archives all records older than the cutoff and returns
	// the number archived.
	ArchiveBefore(ctx context.Context, before time.Time) (int, error)
}
