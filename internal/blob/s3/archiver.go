package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"

	// DefaultBatchSize is the number of estimates written per archive file.
	DefaultBatchSize = 5000
)

// EstimateArchiveStore is the slice of domain.EstimateStore the archiver
// needs.
type EstimateArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.CostMetrics, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// ArchiveImpl implements domain.Archiver. Estimates older than the cutoff
// are written to JSONL files in batches; a batch is deleted from the store
// only after its upload succeeded.
type ArchiveImpl struct {
	writer    domain.BlobWriter
	estimates EstimateArchiveStore
	audit     domain.AuditStore
	batchSize int
}

// NewArchiver creates an ArchiveImpl. audit may be nil. batchSize <= 0
// selects DefaultBatchSize.
func NewArchiver(writer domain.BlobWriter, estimates EstimateArchiveStore, audit domain.AuditStore, batchSize int) *ArchiveImpl {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ArchiveImpl{
		writer:    writer,
		estimates: estimates,
		audit:     audit,
		batchSize: batchSize,
	}
}

// ArchiveEstimates moves every estimate computed before the cutoff to
// archive/estimates/YYYY-MM-DD/<first-nanos>-<count>.jsonl, partitioned by
// the day of the first record in each batch, and returns how many were
// archived. On error the count reflects the batches already moved.
func (a *ArchiveImpl) ArchiveEstimates(ctx context.Context, before time.Time) (int64, error) {
	var (
		total int64
		paths []string
	)
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		batch, err := a.estimates.ListBefore(ctx, before, a.batchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive estimates query: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		buf, err := marshalJSONL(batch)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive estimates marshal: %w", err)
		}

		path := archivePath("estimates", batch[0].ComputedAt, len(batch))
		if int64(len(buf)) > minPartSize {
			err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
		} else {
			err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
		}
		if err != nil {
			return total, fmt.Errorf("s3blob: archive estimates upload %s: %w", path, err)
		}

		ids := make([]string, len(batch))
		for i, m := range batch {
			ids[i] = m.ID
		}
		deleted, err := a.estimates.DeleteByIDs(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive estimates delete after %s: %w", path, err)
		}
		total += deleted
		paths = append(paths, path)

		if len(batch) < a.batchSize {
			break
		}
	}

	if total > 0 && a.audit != nil {
		if err := a.audit.Log(ctx, "archive.estimates", map[string]any{
			"paths":  paths,
			"count":  total,
			"before": before.UTC().Format(time.RFC3339),
		}); err != nil {
			return total, fmt.Errorf("s3blob: archive estimates audit log: %w", err)
		}
	}
	return total, nil
}

// archivePath builds the object key for one archive batch.
//
//	archive/estimates/2025-05-04/1746355153000000000-5000.jsonl
func archivePath(kind string, first time.Time, n int) string {
	first = first.UTC()
	return fmt.Sprintf("archive/%s/%s/%d-%d.jsonl", kind, first.Format("2006-01-02"), first.UnixNano(), n)
}

// marshalJSONL serialises records as newline-delimited JSON.
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

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
