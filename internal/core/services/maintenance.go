package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/Gubeli/substans-kb/internal/core/domain"
	"github.com/Gubeli/substans-kb/internal/core/ports/driven"
	"github.com/Gubeli/substans-kb/internal/core/ports/driving"
	"github.com/Gubeli/substans-kb/internal/graph"
	"github.com/Gubeli/substans-kb/internal/logger"
)

// Ensure MaintenanceService implements the interface.
var _ driving.MaintenanceService = (*MaintenanceService)(nil)

// MaintenanceService rebuilds and repairs the derived indexes. Indexes
// are never the source of truth: everything here reconstructs them from
// the metadata store.
type MaintenanceService struct {
	meta      driven.MetadataStore
	lexical   driven.LexicalIndex
	vector    driven.VectorIndex
	embedder  driven.EmbeddingService
	graph     *graph.Graph
	snapshots *SnapshotManager
	sources   driven.SourceStore
	syncState driven.SyncStateStore

	rebuilding atomic.Bool
}

// NewMaintenanceService creates the maintenance service.
func NewMaintenanceService(
	meta driven.MetadataStore,
	lexical driven.LexicalIndex,
	vector driven.VectorIndex,
	embedder driven.EmbeddingService,
	g *graph.Graph,
	snapshots *SnapshotManager,
	sources driven.SourceStore,
	syncState driven.SyncStateStore,
) *MaintenanceService {
	return &MaintenanceService{
		meta:      meta,
		lexical:   lexical,
		vector:    vector,
		embedder:  embedder,
		graph:     g,
		snapshots: snapshots,
		sources:   sources,
		syncState: syncState,
	}
}

// Rebuild reconstructs both indexes from the metadata store. Embeddings
// are recomputed before the indexes are touched, so cancellation during
// the expensive phase leaves the previous snapshot fully valid.
func (s *MaintenanceService) Rebuild(ctx context.Context) error {
	if !s.rebuilding.CompareAndSwap(false, true) {
		return errors.New("rebuild already running")
	}
	defer s.rebuilding.Store(false)

	docs, err := s.meta.List(ctx)
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}

	type rebuilt struct {
		doc       domain.Document
		embedding []float32
	}
	entries := make([]rebuilt, 0, len(docs))
	for _, doc := range docs {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", domain.ErrRebuildCancelled, ctx.Err())
		default:
		}
		if doc.Tombstoned {
			continue
		}
		embedding, err := s.embedder.Embed(ctx, doc.Title+"\n"+doc.Content)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %w", domain.ErrRebuildCancelled, ctx.Err())
			}
			return fmt.Errorf("embedding %s: %w", doc.ID, err)
		}
		entries = append(entries, rebuilt{doc: doc, embedding: embedding})
	}

	// The swap itself is cheap in-memory work and runs to completion;
	// only the precompute phase above is cancellable.
	_, err = s.snapshots.Commit(ctx, func(gen uint64) ([]*domain.Document, error) {
		if err := s.lexical.Reset(ctx); err != nil {
			return nil, fmt.Errorf("clearing lexical index: %w", err)
		}
		if err := s.vector.Reset(ctx); err != nil {
			return nil, fmt.Errorf("clearing vector index: %w", err)
		}
		for i := range entries {
			doc := &entries[i].doc
			if err := s.lexical.Index(ctx, doc.ID, gen, doc.Checksum, doc.Title, doc.Content); err != nil {
				return nil, fmt.Errorf("indexing %s: %w", doc.ID, err)
			}
			if err := s.vector.Add(ctx, doc.ID, gen, doc.Checksum, entries[i].embedding); err != nil {
				return nil, fmt.Errorf("adding vector %s: %w", doc.ID, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("publishing rebuild: %w", err)
	}

	logger.Info("rebuilt indexes for %d documents", len(entries))
	return nil
}

// Repair re-indexes a single document from its stored metadata. Called
// after a query detected a checksum mismatch between a document and its
// index entries.
func (s *MaintenanceService) Repair(ctx context.Context, docID string) error {
	doc, err := s.meta.Get(ctx, docID, true)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Document is gone entirely: drop any orphaned entries.
			if err := s.lexical.Remove(ctx, docID); err != nil {
				return err
			}
			return s.vector.Remove(ctx, docID)
		}
		return err
	}

	if doc.Tombstoned {
		if err := s.lexical.Remove(ctx, docID); err != nil {
			return err
		}
		return s.vector.Remove(ctx, docID)
	}

	embedding, err := s.embedder.Embed(ctx, doc.Title+"\n"+doc.Content)
	if err != nil {
		return fmt.Errorf("embedding %s: %w", docID, err)
	}

	_, err = s.snapshots.Commit(ctx, func(gen uint64) ([]*domain.Document, error) {
		if err := s.lexical.Index(ctx, doc.ID, gen, doc.Checksum, doc.Title, doc.Content); err != nil {
			return nil, err
		}
		if err := s.vector.Add(ctx, doc.ID, gen, doc.Checksum, embedding); err != nil {
			return nil, err
		}
		return []*domain.Document{doc}, nil
	})
	if err != nil {
		return fmt.Errorf("repairing %s: %w", docID, err)
	}
	logger.Info("repaired index entries for %s", docID)
	return nil
}

// Status reports engine health for inspection.
func (s *MaintenanceService) Status(ctx context.Context) (*driving.EngineStatus, error) {
	snap := s.snapshots.Current()
	if snap == nil {
		return nil, domain.ErrEngineClosed
	}

	status := &driving.EngineStatus{
		Snapshot: domain.SnapshotInfo{
			ID:         snap.ID(),
			AdvancedAt: snap.AdvancedAt(),
			Documents:  snap.VisibleCount(),
		},
		Relations:      s.graph.EdgeCount(),
		RebuildRunning: s.rebuilding.Load(),
	}

	for _, doc := range snap.Docs() {
		if doc.Tombstoned {
			status.Tombstones++
			continue
		}
		status.Documents++
		if doc.PendingReview {
			status.PendingReview++
		}
	}

	sources, err := s.sources.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	for _, source := range sources {
		state, err := s.syncState.Get(ctx, source.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("reading sync state: %w", err)
		}
		if state.Stale {
			status.StaleSources = append(status.StaleSources, source.ID)
		}
	}
	return status, nil
}
