// Package vector implements exact cosine-similarity search over document
// embeddings. The corpus is small enough that a brute-force scan beats an
// approximate structure, and exact scan keeps results deterministic.
package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/Gubeli/substans-kb/internal/core/ports/driven"
)

var _ driven.VectorIndex = (*Index)(nil)

type entry struct {
	gen       uint64
	checksum  string
	embedding []float32
}

// Index stores one embedding per document version. With a store attached
// every write goes through to durable storage so a restart can Load
// instead of re-embedding the corpus.
type Index struct {
	mu         sync.RWMutex
	dimensions int
	entries    map[string]*entry

	store driven.VectorIndexStore // nil for ephemeral indexes
}

// New creates an empty in-memory index for vectors of the given
// dimensionality.
func New(dimensions int) *Index {
	return &Index{
		dimensions: dimensions,
		entries:    make(map[string]*entry),
	}
}

// NewPersistent creates an index that writes through to the store.
// Call Load to populate it from persisted state.
func NewPersistent(dimensions int, store driven.VectorIndexStore) *Index {
	idx := New(dimensions)
	idx.store = store
	return idx
}

// Load replaces the in-memory state with the persisted vectors.
func (idx *Index) Load(ctx context.Context) error {
	if idx.store == nil {
		return nil
	}
	persisted, err := idx.store.LoadVectors(ctx)
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.entries = make(map[string]*entry, len(persisted))
	for _, vec := range persisted {
		if len(vec.Embedding) != idx.dimensions {
			return fmt.Errorf("vector index: persisted vector for %s has %d dimensions, want %d",
				vec.DocID, len(vec.Embedding), idx.dimensions)
		}
		idx.entries[vec.DocID] = &entry{gen: vec.Gen, checksum: vec.Checksum, embedding: vec.Embedding}
	}
	return nil
}

// Add inserts the embedding for a document at the given generation.
// Re-adding an existing id (repair path) replaces its vector.
func (idx *Index) Add(ctx context.Context, docID string, gen uint64, checksum string, embedding []float32) error {
	if len(embedding) != idx.dimensions {
		return fmt.Errorf("vector index: embedding has %d dimensions, want %d", len(embedding), idx.dimensions)
	}

	vec := make([]float32, len(embedding))
	copy(vec, embedding)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries[docID] = &entry{gen: gen, checksum: checksum, embedding: vec}

	if idx.store != nil {
		return idx.store.SaveVector(ctx, driven.PersistedVector{
			DocID:     docID,
			Gen:       gen,
			Checksum:  checksum,
			Embedding: vec,
		})
	}
	return nil
}

// Remove deletes a document's vector.
func (idx *Index) Remove(ctx context.Context, docID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.entries, docID)
	if idx.store != nil {
		return idx.store.DeleteVector(ctx, docID)
	}
	return nil
}

// Checksum returns the checksum recorded for a document's vector.
func (idx *Index) Checksum(docID string) string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if e, ok := idx.entries[docID]; ok {
		return e.checksum
	}
	return ""
}

// Reset clears the index, dropping persisted state as well.
func (idx *Index) Reset(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries = make(map[string]*entry)
	if idx.store != nil {
		return idx.store.DeleteAllVectors(ctx)
	}
	return nil
}

// Search scans all vectors visible at or before gen and returns the k most
// similar, ordered by descending similarity then ascending document id.
func (idx *Index) Search(_ context.Context, query []float32, gen uint64, k int) ([]driven.VectorHit, error) {
	if len(query) != idx.dimensions {
		return nil, fmt.Errorf("vector index: query has %d dimensions, want %d", len(query), idx.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	hits := make([]driven.VectorHit, 0, len(idx.entries))
	for docID, e := range idx.entries {
		if e.gen > gen {
			continue
		}
		hits = append(hits, driven.VectorHit{
			DocID:      docID,
			Similarity: clampedCosine(query, e.embedding),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].DocID < hits[j].DocID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// clampedCosine computes cosine similarity clamped to [0,1]. Embeddings
// are stored L2-normalised, so the dot product is the cosine; the norms
// are still computed to tolerate denormalised inputs.
func clampedCosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if cos < 0 {
		return 0
	}
	if cos > 1 {
		return 1
	}
	return cos
}
