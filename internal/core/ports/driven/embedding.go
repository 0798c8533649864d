package driven

import "context"

// EmbeddingService generates vector embeddings from text.
//
// Note: this is separate from VectorIndex, which stores and searches
// vectors. EmbeddingService generates them. The default implementation is
// deterministic feature hashing so index entries stay reconstructible
// without a network dependency.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	// Must match the VectorIndex configuration.
	Dimensions() int
}
