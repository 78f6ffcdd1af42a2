package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/gridbot/internal/domain"
)

// FillArchiveStore provides the journal access the archiver needs. The
// Postgres FillStore satisfies it; the archiver only requires the two
// time-ranged methods it actually calls, not the full domain.FillStore.
type FillArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Fill, error)
	DeleteBefore(ctx context.Context, before time.Time) (int, error)
}

// ArchiveImpl implements domain.Archiver by querying the fill journal for
// aged records, serializing them to JSONL, uploading the result to S3, and
// pruning the archived rows from the primary store. Rows are deleted only
// after the upload succeeded.
type ArchiveImpl struct {
	writer domain.BlobWriter
	fills  FillArchiveStore
	logger *slog.Logger
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, fills FillArchiveStore, logger *slog.Logger) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		fills:  fills,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveBefore archives all fills recorded strictly before the cutoff to
// archive/fills/YYYY-MM.jsonl and returns the number archived.
func (a *ArchiveImpl) ArchiveBefore(ctx context.Context, before time.Time) (int, error) {
	fills, err := a.fills.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive fills query: %w", err)
	}
	if len(fills) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(fills)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive fills marshal: %w", err)
	}

	path := archivePath("fills", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive fills upload: %w", err)
	}

	deleted, err := a.fills.DeleteBefore(ctx, before)
	if err != nil {
		// The upload already succeeded; surface the prune failure but keep
		// the count so the caller knows the archive exists.
		return len(fills), fmt.Errorf("s3blob: archive fills prune: %w", err)
	}

	a.logger.Info("fills archived",
		slog.String("path", path),
		slog.Int("archived", len(fills)),
		slog.Int("pruned", deleted),
	)
	return len(fills), nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/fills/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serializes a slice of records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
