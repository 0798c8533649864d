package driven

import "context"

// VectorIndex provides semantic similarity search. One embedding per
// document version, derived and reconstructible like lexical postings.
type VectorIndex interface {
	// Add inserts the embedding for a document at the given generation.
	Add(ctx context.Context, docID string, gen uint64, checksum string, embedding []float32) error

	// Remove deletes a document's vector. Used by repair and rebuild.
	Remove(ctx context.Context, docID string) error

	// Search finds the k nearest neighbours under cosine similarity among
	// vectors visible at or before gen.
	Search(ctx context.Context, query []float32, gen uint64, k int) ([]VectorHit, error)

	// Checksum returns the checksum recorded for a document's vector,
	// empty if absent.
	Checksum(docID string) string

	// Reset clears the index, including any persisted state. Used by
	// full rebuilds.
	Reset(ctx context.Context) error
}

// VectorHit is a similarity search result.
type VectorHit struct {
	DocID string

	// Similarity is the cosine similarity clamped to [0,1].
	Similarity float64
}
