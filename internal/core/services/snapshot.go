package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gubeli/substans-kb/internal/core/domain"
	"github.com/Gubeli/substans-kb/internal/core/ports/driven"
)

// Snapshot is an immutable view of the document corpus. Queries resolve
// entirely against one snapshot: index hits are filtered by its id and
// metadata is read from its document map, so a query started before a
// write completes cannot observe the write half-applied.
type Snapshot struct {
	id         uint64
	advancedAt time.Time
	docs       map[string]*domain.Document
}

// ID returns the snapshot identifier. Index entries carrying a larger
// generation are invisible to this snapshot.
func (s *Snapshot) ID() uint64 {
	return s.id
}

// AdvancedAt returns when the snapshot became visible to readers.
func (s *Snapshot) AdvancedAt() time.Time {
	return s.advancedAt
}

// Doc returns the document with the given id, nil if unknown.
func (s *Snapshot) Doc(id string) *domain.Document {
	return s.docs[id]
}

// Docs returns the full document map. Callers must not mutate it.
func (s *Snapshot) Docs() map[string]*domain.Document {
	return s.docs
}

// VisibleCount returns the number of non-tombstoned documents.
func (s *Snapshot) VisibleCount() int {
	n := 0
	for _, doc := range s.docs {
		if !doc.Tombstoned {
			n++
		}
	}
	return n
}

// SnapshotManager owns the current snapshot. Writers commit through it;
// readers get a consistent view from Current without locking.
type SnapshotManager struct {
	meta  driven.MetadataStore
	store driven.SnapshotStore

	// mu serialises commits. Reads go through the atomic pointer.
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

// NewSnapshotManager creates an unloaded manager. Call Load before use.
func NewSnapshotManager(meta driven.MetadataStore, store driven.SnapshotStore) *SnapshotManager {
	return &SnapshotManager{meta: meta, store: store}
}

// Load rebuilds the snapshot from durable state. Called once at startup.
func (m *SnapshotManager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.store.CurrentSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("reading snapshot id: %w", err)
	}

	docs, err := m.meta.List(ctx)
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}

	byID := make(map[string]*domain.Document, len(docs))
	for i := range docs {
		byID[docs[i].ID] = &docs[i]
	}

	m.current.Store(&Snapshot{
		id:         id,
		advancedAt: time.Now().UTC(),
		docs:       byID,
	})
	return nil
}

// Current returns the snapshot queries should resolve against.
func (m *SnapshotManager) Current() *Snapshot {
	return m.current.Load()
}

// Commit runs a write under the commit lock. The apply function receives
// the generation the write will become visible at and returns the
// documents it created or changed. On success the snapshot advances and
// the changes become atomically visible; on failure the previous
// snapshot stays in place, and index entries written at the unpublished
// generation stay invisible.
func (m *SnapshotManager) Commit(ctx context.Context, apply func(gen uint64) ([]*domain.Document, error)) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.current.Load()
	if prev == nil {
		return 0, fmt.Errorf("snapshot manager not loaded")
	}
	gen := prev.id + 1

	changed, err := apply(gen)
	if err != nil {
		return 0, err
	}

	if err := m.store.AdvanceSnapshot(ctx, gen); err != nil {
		return 0, fmt.Errorf("advancing snapshot: %w", err)
	}

	docs := make(map[string]*domain.Document, len(prev.docs)+len(changed))
	for id, doc := range prev.docs {
		docs[id] = doc
	}
	for _, doc := range changed {
		copied := *doc
		docs[copied.ID] = &copied
	}

	m.current.Store(&Snapshot{
		id:         gen,
		advancedAt: time.Now().UTC(),
		docs:       docs,
	})
	return gen, nil
}
