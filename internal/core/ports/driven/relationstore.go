package driven

import (
	"context"

	"github.com/Gubeli/substans-kb/internal/core/domain"
)

// RelationStore persists relation edges. Cycle checking is the graph's
// responsibility; the store is a durable adjacency record.
type RelationStore interface {
	// SaveRelation stores an edge. Duplicate (source, target, type)
	// triples update weight and metadata in place.
	SaveRelation(ctx context.Context, rel domain.Relation) error

	// DeleteOutgoing removes all edges originating at the node.
	DeleteOutgoing(ctx context.Context, sourceID string) error

	// FlagBrokenLinks marks every edge pointing at targetID as broken,
	// preserving the edges themselves.
	FlagBrokenLinks(ctx context.Context, targetID string) error

	// Relations returns all edges touching the node, outgoing first.
	Relations(ctx context.Context, nodeID string) ([]domain.Relation, error)

	// AllRelations returns every edge, used to rebuild the in-memory
	// graph at startup.
	AllRelations(ctx context.Context) ([]domain.Relation, error)
}
