package driven

import (
	"context"

	"github.com/Gubeli/substans-kb/internal/core/domain"
)

// MetadataStore is the durable record of every document and its versions.
// Backed by SQLite. Writes are atomic per document: a write is either fully
// visible or not visible at all.
type MetadataStore interface {
	// Put stores a document. A document whose checksum is already present
	// never creates a new id: the existing document's ModifiedAt is
	// refreshed, new keyword hints are merged, and the existing id is
	// returned. Put never overwrites a different document in place.
	Put(ctx context.Context, doc *domain.Document) (string, error)

	// Get retrieves a document by id. Tombstoned documents return
	// domain.ErrNotFound unless includeDeleted is set.
	Get(ctx context.Context, id string, includeDeleted bool) (*domain.Document, error)

	// GetByChecksum retrieves the document holding the given content
	// version, tombstoned or not.
	GetByChecksum(ctx context.Context, checksum string) (*domain.Document, error)

	// LatestByTitle returns the newest non-tombstoned version of the
	// logical document with the given title, or ErrNotFound.
	LatestByTitle(ctx context.Context, title string) (*domain.Document, error)

	// Update applies an administrative metadata patch. It never mutates
	// ID, Checksum or Content; ModifiedAt is refreshed.
	Update(ctx context.Context, id string, patch domain.DocumentPatch) (*domain.Document, error)

	// Tombstone marks a document deleted while preserving its identity.
	Tombstone(ctx context.Context, id string) error

	// MarkBrokenLink records that the document references a tombstoned
	// target. The document's own metadata is otherwise unchanged.
	MarkBrokenLink(ctx context.Context, id, targetID string) error

	// ListByFacets returns documents matching the filter, ordered by id.
	ListByFacets(ctx context.Context, filter domain.FacetFilter) ([]domain.Document, error)

	// List returns every document, tombstones included, ordered by id.
	// Used by full index rebuilds.
	List(ctx context.Context) ([]domain.Document, error)

	// Close releases resources, flushing pending writes.
	Close() error
}

// SnapshotStore persists the monotonically increasing snapshot identifier
// recording which writes are visible to readers.
type SnapshotStore interface {
	// CurrentSnapshot returns the last durable snapshot id, 0 if none.
	CurrentSnapshot(ctx context.Context) (uint64, error)

	// AdvanceSnapshot durably records a new snapshot id. Ids must be
	// strictly increasing.
	AdvanceSnapshot(ctx context.Context, id uint64) error
}
