package driven

import (
	"context"
	"errors"

	"github.com/Gubeli/substans-kb/internal/core/domain"
)

// ContentSource fetches raw content from an external source. Each source
// type (directory, feed) implements this interface; every source feeds the
// same ingestion entry point as manual submissions.
type ContentSource interface {
	// Type returns the source type identifier.
	Type() string

	// SourceID returns the configured source id.
	SourceID() string

	// Validate checks the source is properly configured and reachable.
	Validate(ctx context.Context) error

	// Fetch streams all current content. Sources supporting cursors send
	// a FetchComplete on the error channel when done.
	Fetch(ctx context.Context, state domain.SyncState) (<-chan domain.RawContent, <-chan error)

	// Watch listens for real-time changes. Sources that cannot watch
	// return domain.ErrUnsupportedType.
	Watch(ctx context.Context) (<-chan domain.ContentChange, error)

	// Close releases resources.
	Close() error
}

// SourceFactory creates connectors from registered source configurations.
type SourceFactory interface {
	// Create builds a ContentSource for the source configuration.
	// Returns domain.ErrUnsupportedType for unknown types.
	Create(ctx context.Context, source domain.Source) (ContentSource, error)
}

// SyncStateStore persists per-source polling state.
type SyncStateStore interface {
	// Save stores or updates sync state.
	Save(ctx context.Context, state domain.SyncState) error

	// Get retrieves sync state for a source, ErrNotFound if absent.
	Get(ctx context.Context, sourceID string) (*domain.SyncState, error)
}

// SourceStore persists registered sources.
type SourceStore interface {
	// Save stores or updates a source.
	Save(ctx context.Context, source domain.Source) error

	// Get retrieves a source by id.
	Get(ctx context.Context, id string) (*domain.Source, error)

	// Delete removes a source.
	Delete(ctx context.Context, id string) error

	// List returns all configured sources.
	List(ctx context.Context) ([]domain.Source, error)
}

// SchedulerStore persists background task state.
type SchedulerStore interface {
	// SaveTask stores or updates a scheduled task.
	SaveTask(ctx context.Context, task *domain.ScheduledTask) error

	// GetTask retrieves a task by id; nil when absent.
	GetTask(ctx context.Context, id string) (*domain.ScheduledTask, error)

	// ListTasks returns all known tasks.
	ListTasks(ctx context.Context) ([]domain.ScheduledTask, error)
}

// FetchComplete is sent on the error channel when a fetch completes
// successfully. Carries the new cursor for incremental polling.
type FetchComplete struct {
	NewCursor string
}

// Error implements the error interface so FetchComplete can travel on the
// error channel.
func (FetchComplete) Error() string {
	return "fetch complete"
}

// IsFetchComplete checks whether an error is a successful completion.
func IsFetchComplete(err error) (*FetchComplete, bool) {
	var fc *FetchComplete
	if errors.As(err, &fc) {
		return fc, true
	}
	return nil, false
}
