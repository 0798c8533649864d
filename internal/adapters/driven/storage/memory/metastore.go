// Package memory provides in-memory implementations of the driven storage
// ports. Used by tests and as a lightweight backend when persistence is
// not needed.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Gubeli/substans-kb/internal/core/domain"
	"github.com/Gubeli/substans-kb/internal/core/ports/driven"
)

// MetadataStore is an in-memory driven.MetadataStore.
type MetadataStore struct {
	mu         sync.RWMutex
	byID       map[string]*domain.Document
	byChecksum map[string]string
}

var _ driven.MetadataStore = (*MetadataStore)(nil)

// NewMetadataStore creates an empty in-memory metadata store.
func NewMetadataStore() *MetadataStore {
	return &MetadataStore{
		byID:       make(map[string]*domain.Document),
		byChecksum: make(map[string]string),
	}
}

// Put stores a document with checksum-idempotent semantics.
func (m *MetadataStore) Put(_ context.Context, doc *domain.Document) (string, error) {
	if doc == nil {
		return "", domain.NewValidationError("document", "must not be nil")
	}
	if doc.Checksum == "" {
		return "", domain.NewValidationError("checksum", "must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if id, ok := m.byChecksum[doc.Checksum]; ok {
		existing := m.byID[id]
		existing.ModifiedAt = now
		existing.Keywords = domain.MergeSets(existing.Keywords, doc.Keywords)
		return id, nil
	}

	stored := *doc
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.ModifiedAt.IsZero() {
		stored.ModifiedAt = now
	}
	stored.Sectors = domain.NormalizeSet(stored.Sectors)
	stored.Domains = domain.NormalizeSet(stored.Domains)
	stored.AgentUsers = domain.NormalizeSet(stored.AgentUsers)
	stored.Keywords = domain.NormalizeSet(stored.Keywords)

	m.byID[stored.ID] = &stored
	m.byChecksum[stored.Checksum] = stored.ID
	return stored.ID, nil
}

// Get retrieves a document by id.
func (m *MetadataStore) Get(_ context.Context, id string, includeDeleted bool) (*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if doc.Tombstoned && !includeDeleted {
		return nil, domain.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

// GetByChecksum retrieves the document holding the given content version.
func (m *MetadataStore) GetByChecksum(_ context.Context, checksum string) (*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byChecksum[checksum]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *m.byID[id]
	return &copied, nil
}

// LatestByTitle returns the newest non-tombstoned version for a title.
func (m *MetadataStore) LatestByTitle(_ context.Context, title string) (*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *domain.Document
	for _, doc := range m.byID {
		if doc.Title != title || doc.Tombstoned {
			continue
		}
		if latest == nil || doc.CreatedAt.After(latest.CreatedAt) {
			latest = doc
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

// Update applies an administrative metadata patch.
func (m *MetadataStore) Update(_ context.Context, id string, patch domain.DocumentPatch) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	if patch.Title != nil {
		doc.Title = *patch.Title
	}
	if patch.Subcategory != nil {
		doc.Subcategory = *patch.Subcategory
	}
	if patch.Type != nil {
		doc.Type = *patch.Type
	}
	if patch.Author != nil {
		doc.Author = *patch.Author
	}
	if patch.Confidentiality != nil {
		doc.Confidentiality = *patch.Confidentiality
	}
	if patch.Language != nil {
		doc.Language = *patch.Language
	}
	if patch.Quality != nil {
		doc.Quality = *patch.Quality
	}
	if patch.PendingReview != nil {
		doc.PendingReview = *patch.PendingReview
	}
	doc.Sectors = domain.MergeSets(doc.Sectors, patch.AddSectors)
	doc.Domains = domain.MergeSets(doc.Domains, patch.AddDomains)
	doc.AgentUsers = domain.MergeSets(doc.AgentUsers, patch.AddAgentUsers)
	doc.Keywords = domain.MergeSets(doc.Keywords, patch.AddKeywords)
	doc.ModifiedAt = time.Now().UTC()

	copied := *doc
	return &copied, nil
}

// Tombstone marks a document deleted while preserving its identity.
func (m *MetadataStore) Tombstone(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.byID[id]
	if !ok || doc.Tombstoned {
		return domain.ErrNotFound
	}
	now := time.Now().UTC()
	doc.Tombstoned = true
	doc.TombstonedAt = &now
	doc.ModifiedAt = now
	return nil
}

// MarkBrokenLink records a dangling reference on the document.
func (m *MetadataStore) MarkBrokenLink(_ context.Context, id, targetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	doc.BrokenLinks = domain.MergeSets(doc.BrokenLinks, []string{targetID})
	return nil
}

// ListByFacets returns documents matching the filter, ordered by id.
func (m *MetadataStore) ListByFacets(_ context.Context, filter domain.FacetFilter) ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var docs []domain.Document
	for _, doc := range m.byID {
		if filter.Matches(doc) {
			docs = append(docs, *doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// List returns every document, tombstones included, ordered by id.
func (m *MetadataStore) List(_ context.Context) ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := make([]domain.Document, 0, len(m.byID))
	for _, doc := range m.byID {
		docs = append(docs, *doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// Close is a no-op for the in-memory store.
func (m *MetadataStore) Close() error {
	return nil
}
