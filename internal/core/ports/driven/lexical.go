package driven

import "context"

// LexicalIndex provides positional full-text search over documents.
// Entries are derived from document content, never hand-edited, and always
// reconstructible from the metadata store.
type LexicalIndex interface {
	// Index adds postings for a document at the given generation. The
	// checksum is recorded so readers can detect index inconsistencies.
	// A document's postings are written once per id; content changes
	// arrive as new document ids.
	Index(ctx context.Context, docID string, gen uint64, checksum, title, content string) error

	// Remove deletes a document's postings. Used by repair and rebuild;
	// tombstone visibility is handled at the snapshot layer.
	Remove(ctx context.Context, docID string) error

	// Search evaluates a boolean/phrase expression against the postings
	// visible at or before gen, returning hits ordered by descending
	// score then ascending doc id.
	Search(ctx context.Context, query string, gen uint64, limit int) ([]LexicalHit, error)

	// Checksum returns the content checksum recorded for a document,
	// empty if the document is not indexed.
	Checksum(docID string) string

	// Reset clears the index, including any persisted state. Used by
	// full rebuilds.
	Reset(ctx context.Context) error
}

// LexicalHit is a single full-text match. Excerpts are generated at
// hydration from document content, not by the index.
type LexicalHit struct {
	DocID string

	// Score is a BM25 relevance score, unnormalised.
	Score float64
}
