package driven

import "context"

// LexicalIndexStore persists inverted-index state. Postings are derived
// data, but storing them lets startup load the index instead of
// re-tokenising the whole corpus.
type LexicalIndexStore interface {
	// SaveDocument stores one document's postings, replacing any previous
	// state for the same id.
	SaveDocument(ctx context.Context, doc PersistedPostings) error

	// DeleteDocument removes a document's persisted postings.
	DeleteDocument(ctx context.Context, docID string) error

	// DeleteAllDocuments clears all persisted postings. Used by rebuilds.
	DeleteAllDocuments(ctx context.Context) error

	// LoadDocuments returns every persisted document's postings.
	LoadDocuments(ctx context.Context) ([]PersistedPostings, error)
}

// PersistedPostings is one document's lexical index state: term positions
// plus the bookkeeping the index needs for scoring and consistency checks.
type PersistedPostings struct {
	DocID    string
	Gen      uint64
	Checksum string

	// Length is the document's token count.
	Length int

	// Terms maps each term to its ascending token positions.
	Terms map[string][]int
}

// VectorIndexStore persists document embeddings so startup can load them
// instead of re-embedding the corpus.
type VectorIndexStore interface {
	// SaveVector stores one document's embedding, replacing any previous
	// state for the same id.
	SaveVector(ctx context.Context, vec PersistedVector) error

	// DeleteVector removes a document's persisted embedding.
	DeleteVector(ctx context.Context, docID string) error

	// DeleteAllVectors clears all persisted embeddings. Used by rebuilds.
	DeleteAllVectors(ctx context.Context) error

	// LoadVectors returns every persisted embedding.
	LoadVectors(ctx context.Context) ([]PersistedVector, error)
}

// PersistedVector is one document's vector index state.
type PersistedVector struct {
	DocID     string
	Gen       uint64
	Checksum  string
	Embedding []float32
}
