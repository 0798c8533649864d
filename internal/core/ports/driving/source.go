package driving

import (
	"context"

	"github.com/Gubeli/substans-kb/internal/core/domain"
)

// SourceService manages registered external sources and their polling.
type SourceService interface {
	// Add registers a new source and validates its configuration.
	Add(ctx context.Context, sourceType, name string, config map[string]string) (*domain.Source, error)

	// Remove deletes a source. Previously ingested documents remain.
	Remove(ctx context.Context, id string) error

	// List returns all registered sources.
	List(ctx context.Context) ([]domain.Source, error)

	// Poll fetches a source once, routing content through ingestion.
	// Fetch failures are retried with bounded backoff; exhaustion marks
	// the source stale without failing other work.
	Poll(ctx context.Context, id string) (*BatchReport, error)

	// PollAll polls every registered source. Stale sources are reported,
	// never fatal.
	PollAll(ctx context.Context) error

	// Watch starts real-time watching for sources that support it,
	// blocking until the context is cancelled.
	Watch(ctx context.Context, id string) error
}
