package driving

import (
	"context"

	"github.com/Gubeli/substans-kb/internal/core/domain"
)

// QueryService resolves textual, semantic and faceted queries against an
// immutable snapshot. It never mutates shared state.
type QueryService interface {
	// Search returns ranked results for the spec. For a fixed snapshot
	// and spec, repeated calls return identical ordered results.
	Search(ctx context.Context, spec domain.QuerySpec) ([]domain.QueryResult, error)

	// Get retrieves a single document from the current snapshot.
	Get(ctx context.Context, docID string, includeDeleted bool) (*domain.Document, error)

	// Snapshot describes the view queries are currently served from.
	Snapshot(ctx context.Context) (domain.SnapshotInfo, error)
}

// GraphService answers relation queries against the graph.
type GraphService interface {
	// Neighbors returns edges from the node filtered by type and minimum
	// weight. Empty types means all types.
	Neighbors(ctx context.Context, nodeID string, types []domain.RelationType, minWeight float64) ([]domain.Relation, error)

	// VersionChain walks the version chain containing the document,
	// oldest first.
	VersionChain(ctx context.Context, docID string) ([]string, error)
}
