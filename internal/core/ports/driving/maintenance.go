package driving

import (
	"context"

	"github.com/Gubeli/substans-kb/internal/core/domain"
)

// MaintenanceService runs explicit maintenance operations.
type MaintenanceService interface {
	// Rebuild reconstructs both indexes from the metadata store. The
	// operation is cancellable; cancellation leaves the previous snapshot
	// fully valid. For unchanged documents the rebuilt index answers
	// queries identically to the old one.
	Rebuild(ctx context.Context) error

	// Repair re-indexes a single document after an inconsistency.
	Repair(ctx context.Context, docID string) error

	// Status reports engine health for inspection.
	Status(ctx context.Context) (*EngineStatus, error)
}

// EngineStatus is an inspectable summary of engine state.
type EngineStatus struct {
	Snapshot       domain.SnapshotInfo
	Documents      int
	Tombstones     int
	PendingReview  int
	Relations      int
	StaleSources   []string
	RebuildRunning bool
}
