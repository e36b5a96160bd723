package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/opinioncore/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver. The Postgres stores
// satisfy these implicitly through their ListBefore / DeleteBefore methods.
// ---------------------------------------------------------------------------

// HistoryArchiveStore provides read access to answer history for archival.
type HistoryArchiveStore interface {
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.AnswerHistoryEntry, error)
}

// AuditArchiveStore provides read and prune access to the audit log for
// archival.
type AuditArchiveStore interface {
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.AuditEntry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// archiveBatchLimit bounds how many rows one archive pass pulls into memory.
const archiveBatchLimit = 10000

// Archiver copies cold ledger records to object storage as JSONL files
// partitioned by cutoff month.
//
// Answer history is backed up but never deleted from postgres: the engine
// restores from the full gap-free history on startup. Audit rows are pruned
// after a successful upload; they exist for operators, not for restore.
type Archiver struct {
	writer  domain.BlobWriter
	history HistoryArchiveStore
	audit   AuditArchiveStore
}

// NewArchiver creates an Archiver over the given writer and stores.
func NewArchiver(writer domain.BlobWriter, history HistoryArchiveStore, audit AuditArchiveStore) *Archiver {
	return &Archiver{
		writer:  writer,
		history: history,
		audit:   audit,
	}
}

// ArchiveHistory uploads all answer history entries recorded before the
// cutoff to archive/history/YYYY-MM.jsonl and returns the count archived.
// The source rows are left in place.
func (a *Archiver) ArchiveHistory(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.history.ListBefore(ctx, before, archiveBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive history query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive history marshal: %w", err)
	}

	path := archivePath("history", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive history upload: %w", err)
	}

	return int64(len(entries)), nil
}

// ArchiveAudit uploads all audit entries recorded before the cutoff to
// archive/audit/YYYY-MM.jsonl, then deletes the uploaded rows. Deletion only
// runs after the upload succeeded, so a failed pass leaves everything in
// postgres for the next attempt.
func (a *Archiver) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.ListBefore(ctx, before, archiveBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := archivePath("audit", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	// Prune only what was uploaded. Rows newer than the oldest entry beyond
	// the batch limit stay for the next pass.
	cutoff := before
	if len(entries) == archiveBatchLimit {
		cutoff = entries[len(entries)-1].CreatedAt
	}
	if _, err := a.audit.DeleteBefore(ctx, cutoff); err != nil {
		return int64(len(entries)), fmt.Errorf("s3blob: archive audit prune: %w", err)
	}

	return int64(len(entries)), nil
}

// archivePath builds the object key for an archive file, partitioned by the
// cutoff date. Audit rows are pruned after upload, so each run must land on
// its own key rather than overwrite a shared monthly file.
//
//	archive/history/2026-08-31.jsonl
//	archive/audit/2026-08-31.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01-02"))
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// object per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
