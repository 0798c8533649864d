package driving

import (
	"context"

	"github.com/Gubeli/substans-kb/internal/core/domain"
)

// IngestService orchestrates document ingestion. Manual submissions,
// directory events and feed items all route through Ingest.
type IngestService interface {
	// Ingest processes one payload synchronously: classify, persist,
	// index, link relations, advance the snapshot.
	Ingest(ctx context.Context, content domain.RawContent) (*IngestReceipt, error)

	// IngestBatch processes payloads concurrently across distinct logical
	// documents, serialising work on the same one. Per-item failures are
	// recorded in the report, not fatal to the batch.
	IngestBatch(ctx context.Context, contents []domain.RawContent) (*BatchReport, error)

	// Tombstone marks a document deleted, removes its outgoing relations
	// and flags incoming edges as broken links.
	Tombstone(ctx context.Context, docID string) error

	// UpdateMetadata applies an administrative metadata patch.
	UpdateMetadata(ctx context.Context, docID string, patch domain.DocumentPatch) (*domain.Document, error)
}

// BatchReport summarises a batch ingestion.
type BatchReport struct {
	Processed int
	Refreshed int
	Failed    int

	// Receipts holds per-payload outcomes in submission order; failed
	// entries are nil with the error in Errors at the same index.
	Receipts []*IngestReceipt
	Errors   []error
}
