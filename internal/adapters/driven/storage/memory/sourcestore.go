package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Gubeli/substans-kb/internal/core/domain"
	"github.com/Gubeli/substans-kb/internal/core/ports/driven"
)

// SourceStore is an in-memory driven.SourceStore.
type SourceStore struct {
	mu      sync.RWMutex
	sources map[string]domain.Source
}

var _ driven.SourceStore = (*SourceStore)(nil)

// NewSourceStore creates an empty in-memory source store.
func NewSourceStore() *SourceStore {
	return &SourceStore{sources: make(map[string]domain.Source)}
}

// Save stores or updates a source.
func (s *SourceStore) Save(_ context.Context, source domain.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.sources[source.ID]; ok {
		source.CreatedAt = existing.CreatedAt
	} else if source.CreatedAt.IsZero() {
		source.CreatedAt = now
	}
	source.UpdatedAt = now
	s.sources[source.ID] = source
	return nil
}

// Get retrieves a source by id.
func (s *SourceStore) Get(_ context.Context, id string) (*domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	source, ok := s.sources[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &source, nil
}

// Delete removes a source.
func (s *SourceStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sources[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.sources, id)
	return nil
}

// List returns all configured sources ordered by id.
func (s *SourceStore) List(_ context.Context) ([]domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sources := make([]domain.Source, 0, len(s.sources))
	for _, source := range s.sources {
		sources = append(sources, source)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].ID < sources[j].ID })
	return sources, nil
}

// SyncStateStore is an in-memory driven.SyncStateStore.
type SyncStateStore struct {
	mu     sync.RWMutex
	states map[string]domain.SyncState
}

var _ driven.SyncStateStore = (*SyncStateStore)(nil)

// NewSyncStateStore creates an empty in-memory sync state store.
func NewSyncStateStore() *SyncStateStore {
	return &SyncStateStore{states: make(map[string]domain.SyncState)}
}

// Save stores or updates sync state.
func (s *SyncStateStore) Save(_ context.Context, state domain.SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.SourceID] = state
	return nil
}

// Get retrieves sync state for a source.
func (s *SyncStateStore) Get(_ context.Context, sourceID string) (*domain.SyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[sourceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &state, nil
}

// SchedulerStore is an in-memory driven.SchedulerStore.
type SchedulerStore struct {
	mu    sync.RWMutex
	tasks map[string]domain.ScheduledTask
}

var _ driven.SchedulerStore = (*SchedulerStore)(nil)

// NewSchedulerStore creates an empty in-memory scheduler store.
func NewSchedulerStore() *SchedulerStore {
	return &SchedulerStore{tasks: make(map[string]domain.ScheduledTask)}
}

// SaveTask stores or updates a scheduled task.
func (s *SchedulerStore) SaveTask(_ context.Context, task *domain.ScheduledTask) error {
	if task == nil {
		return domain.NewValidationError("task", "must not be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = *task
	return nil
}

// GetTask retrieves a task by id; nil when absent.
func (s *SchedulerStore) GetTask(_ context.Context, id string) (*domain.ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	return &task, nil
}

// ListTasks returns all known tasks ordered by id.
func (s *SchedulerStore) ListTasks(_ context.Context) ([]domain.ScheduledTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]domain.ScheduledTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

// SnapshotStore is an in-memory driven.SnapshotStore.
type SnapshotStore struct {
	mu sync.Mutex
	id uint64
}

var _ driven.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore creates an in-memory snapshot store starting at 0.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// CurrentSnapshot returns the last recorded snapshot id.
func (s *SnapshotStore) CurrentSnapshot(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, nil
}

// AdvanceSnapshot records a new snapshot id, which must strictly increase.
func (s *SnapshotStore) AdvanceSnapshot(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id <= s.id {
		return domain.NewValidationError("snapshot", "id must strictly increase")
	}
	s.id = id
	return nil
}
