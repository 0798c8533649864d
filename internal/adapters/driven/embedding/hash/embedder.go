// Package hash provides a deterministic embedding service based on signed
// feature hashing. It needs no model weights and no network, and always
// produces the same vector for the same text, which keeps the vector
// index reconstructible from stored content alone.
package hash

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/Gubeli/substans-kb/internal/core/ports/driven"
	"github.com/Gubeli/substans-kb/internal/index/lexical"
)

var _ driven.EmbeddingService = (*Embedder)(nil)

// Embedder hashes normalised tokens into a fixed number of dimensions.
// Each token adds +1 or -1 to one dimension, the sign taken from a hash
// bit, and the result is L2-normalised.
type Embedder struct {
	dimensions int
}

// New creates an embedder producing vectors of the given size.
func New(dimensions int) *Embedder {
	return &Embedder{dimensions: dimensions}
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Embed generates the feature-hashed embedding for the text. Tokens pass
// through the same normalisation as the lexical index, so semantically
// identical spellings ("Marché", "marche") hash identically.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimensions)
	for _, term := range lexical.TokenizeTerms(text) {
		h := fnv.New64a()
		h.Write([]byte(term))
		sum := h.Sum64()

		dim := int(sum % uint64(e.dimensions))
		if sum&(1<<63) != 0 {
			vec[dim]--
		} else {
			vec[dim]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := 1 / math.Sqrt(norm)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) * inv)
		}
	}
	return vec, nil
}
