package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Gubeli/substans-kb/internal/core/domain"
	"github.com/Gubeli/substans-kb/internal/core/ports/driven"
)

// RelationStore is an in-memory driven.RelationStore.
type RelationStore struct {
	mu   sync.RWMutex
	rels []domain.Relation
}

var _ driven.RelationStore = (*RelationStore)(nil)

// NewRelationStore creates an empty in-memory relation store.
func NewRelationStore() *RelationStore {
	return &RelationStore{}
}

// SaveRelation stores an edge, updating duplicate triples in place.
func (r *RelationStore) SaveRelation(_ context.Context, rel domain.Relation) error {
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.rels {
		if e.SourceID == rel.SourceID && e.TargetID == rel.TargetID && e.Type == rel.Type {
			r.rels[i] = rel
			return nil
		}
	}
	r.rels = append(r.rels, rel)
	return nil
}

// DeleteOutgoing removes all edges originating at the node.
func (r *RelationStore) DeleteOutgoing(_ context.Context, sourceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.rels[:0]
	for _, e := range r.rels {
		if e.SourceID != sourceID {
			kept = append(kept, e)
		}
	}
	r.rels = kept
	return nil
}

// FlagBrokenLinks marks every edge pointing at targetID as broken.
func (r *RelationStore) FlagBrokenLinks(_ context.Context, targetID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rels {
		if r.rels[i].TargetID == targetID {
			r.rels[i].BrokenLink = true
		}
	}
	return nil
}

// Relations returns all edges touching the node, outgoing first.
func (r *RelationStore) Relations(_ context.Context, nodeID string) ([]domain.Relation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out, in []domain.Relation
	for _, e := range r.rels {
		switch {
		case e.SourceID == nodeID:
			out = append(out, e)
		case e.TargetID == nodeID:
			in = append(in, e)
		}
	}
	sortRelations(out)
	sortRelations(in)
	return append(out, in...), nil
}

// AllRelations returns every edge in deterministic order.
func (r *RelationStore) AllRelations(_ context.Context) ([]domain.Relation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]domain.Relation, len(r.rels))
	copy(all, r.rels)
	sortRelations(all)
	return all, nil
}

func sortRelations(rels []domain.Relation) {
	sort.Slice(rels, func(i, j int) bool {
		if rels[i].SourceID != rels[j].SourceID {
			return rels[i].SourceID < rels[j].SourceID
		}
		if rels[i].TargetID != rels[j].TargetID {
			return rels[i].TargetID < rels[j].TargetID
		}
		return rels[i].Type < rels[j].Type
	})
}
