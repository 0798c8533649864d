package driving

import (
	"context"

	"github.com/Gubeli/substans-kb/internal/core/domain"
)

// KnowledgeService is the Agent Knowledge Interface, the sole boundary used
// by agent processes and the UI layer. Everything else in the engine is an
// implementation detail to its callers.
type KnowledgeService interface {
	// GetRelevantSources returns documents pre-filtered by the agent's
	// declared sectors and domains.
	GetRelevantSources(ctx context.Context, profile domain.AgentProfile) ([]domain.Document, error)

	// SearchKnowledge resolves a query, optionally biased by mission
	// context, into ranked results with excerpts.
	SearchKnowledge(ctx context.Context, spec domain.QuerySpec) ([]domain.QueryResult, error)

	// AddNewKnowledge ingests new content with metadata hints, returning
	// the document id and its version-chain position.
	AddNewKnowledge(ctx context.Context, content domain.RawContent) (*IngestReceipt, error)
}

// IngestReceipt reports the outcome of an ingestion.
type IngestReceipt struct {
	// DocID is the stable document id, existing or newly assigned.
	DocID string

	// Version describes the document's position in its version chain.
	Version domain.VersionInfo

	// Refreshed is set when the checksum already existed and only
	// metadata was merged.
	Refreshed bool

	// Classification is the taxonomy decision taken.
	Classification domain.Classification
}
