// Package sqlite provides the unified SQLite-backed persistence layer:
// document metadata, relation edges, source registrations, sync state,
// scheduler state and the durable snapshot counter all live in one
// database file.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/Gubeli/substans-kb/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/Gubeli/substans-kb/internal/core/domain"
	"github.com/Gubeli/substans-kb/internal/core/ports/driven"
)

// Store is a unified SQLite-based storage that provides access to all
// metadata store interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.substans-kb/data/knowledge.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".substans-kb", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "knowledge.db")

	// WAL mode for concurrent readers during ingestion.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// MetadataStore returns a MetadataStore interface backed by this store.
func (s *Store) MetadataStore() driven.MetadataStore {
	return &metadataStore{store: s}
}

// RelationStore returns a RelationStore interface backed by this store.
func (s *Store) RelationStore() driven.RelationStore {
	return &relationStore{store: s}
}

// SourceStore returns a SourceStore interface backed by this store.
func (s *Store) SourceStore() driven.SourceStore {
	return &sourceStore{store: s}
}

// SyncStateStore returns a SyncStateStore interface backed by this store.
func (s *Store) SyncStateStore() driven.SyncStateStore {
	return &syncStateStore{store: s}
}

// SchedulerStore returns a SchedulerStore interface backed by this store.
func (s *Store) SchedulerStore() driven.SchedulerStore {
	return &schedulerStore{store: s}
}

// SnapshotStore returns a SnapshotStore interface backed by this store.
func (s *Store) SnapshotStore() driven.SnapshotStore {
	return &snapshotStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Metadata Store ====================

// metadataStore implements driven.MetadataStore.
type metadataStore struct {
	store *Store
}

var _ driven.MetadataStore = (*metadataStore)(nil)

const documentColumns = `id, checksum, title, category, subcategory, doc_type, content,
	created_at, modified_at, author, sectors, domains, agent_users, keywords,
	confidentiality, language, format, size,
	quality_relevance, quality_relevance_verified,
	quality_recency, quality_recency_verified,
	quality_reliability, quality_reliability_verified,
	pending_review, tombstoned, tombstoned_at, broken_links`

// Put stores a document. Checksum identity makes Put idempotent: a
// document whose checksum already exists keeps its id, gets its
// ModifiedAt refreshed and new keyword hints merged in.
func (m *metadataStore) Put(ctx context.Context, doc *domain.Document) (string, error) {
	if doc == nil {
		return "", domain.NewValidationError("document", "must not be nil")
	}
	if doc.Checksum == "" {
		return "", domain.NewValidationError("checksum", "must not be empty")
	}

	tx, err := m.store.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanDocument(tx.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE checksum = ?", doc.Checksum))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}

	now := time.Now().UTC()
	if existing != nil {
		keywords := domain.MergeSets(existing.Keywords, doc.Keywords)
		_, err = tx.ExecContext(ctx, `
			UPDATE documents SET modified_at = ?, keywords = ? WHERE id = ?
		`, now.Format(time.RFC3339Nano), marshalSet(keywords), existing.ID)
		if err != nil {
			return "", fmt.Errorf("refreshing document: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("committing: %w", err)
		}
		return existing.ID, nil
	}

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.ModifiedAt.IsZero() {
		doc.ModifiedAt = now
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		doc.ID, doc.Checksum, doc.Title, string(doc.Category), doc.Subcategory, doc.Type, doc.Content,
		doc.CreatedAt.Format(time.RFC3339Nano), doc.ModifiedAt.Format(time.RFC3339Nano), doc.Author,
		marshalSet(domain.NormalizeSet(doc.Sectors)),
		marshalSet(domain.NormalizeSet(doc.Domains)),
		marshalSet(domain.NormalizeSet(doc.AgentUsers)),
		marshalSet(domain.NormalizeSet(doc.Keywords)),
		string(doc.Confidentiality), doc.Language, doc.Format, doc.Size,
		doc.Quality.Relevance.Value, formatNullableTimePtr(doc.Quality.Relevance.LastVerified),
		doc.Quality.Recency.Value, formatNullableTimePtr(doc.Quality.Recency.LastVerified),
		doc.Quality.Reliability.Value, formatNullableTimePtr(doc.Quality.Reliability.LastVerified),
		boolToInt(doc.PendingReview), boolToInt(doc.Tombstoned),
		formatNullableTimePtr(doc.TombstonedAt), marshalSet(doc.BrokenLinks))
	if err != nil {
		return "", fmt.Errorf("inserting document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing: %w", err)
	}
	return doc.ID, nil
}

// Get retrieves a document by id.
func (m *metadataStore) Get(ctx context.Context, id string, includeDeleted bool) (*domain.Document, error) {
	doc, err := scanDocument(m.store.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE id = ?", id))
	if err != nil {
		return nil, err
	}
	if doc.Tombstoned && !includeDeleted {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

// GetByChecksum retrieves the document holding the given content version.
func (m *metadataStore) GetByChecksum(ctx context.Context, checksum string) (*domain.Document, error) {
	return scanDocument(m.store.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE checksum = ?", checksum))
}

// LatestByTitle returns the newest non-tombstoned version of the logical
// document with the given title.
func (m *metadataStore) LatestByTitle(ctx context.Context, title string) (*domain.Document, error) {
	return scanDocument(m.store.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE title = ? AND tombstoned = 0
		ORDER BY created_at DESC, id ASC LIMIT 1
	`, title))
}

// Update applies an administrative metadata patch.
func (m *metadataStore) Update(ctx context.Context, id string, patch domain.DocumentPatch) (*domain.Document, error) {
	tx, err := m.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	doc, err := scanDocument(tx.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE id = ?", id))
	if err != nil {
		return nil, err
	}

	applyPatch(doc, patch)
	doc.ModifiedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE documents SET
			title = ?, subcategory = ?, doc_type = ?, author = ?,
			confidentiality = ?, language = ?, modified_at = ?,
			sectors = ?, domains = ?, agent_users = ?, keywords = ?,
			quality_relevance = ?, quality_relevance_verified = ?,
			quality_recency = ?, quality_recency_verified = ?,
			quality_reliability = ?, quality_reliability_verified = ?,
			pending_review = ?
		WHERE id = ?
	`,
		doc.Title, doc.Subcategory, doc.Type, doc.Author,
		string(doc.Confidentiality), doc.Language, doc.ModifiedAt.Format(time.RFC3339Nano),
		marshalSet(doc.Sectors), marshalSet(doc.Domains),
		marshalSet(doc.AgentUsers), marshalSet(doc.Keywords),
		doc.Quality.Relevance.Value, formatNullableTimePtr(doc.Quality.Relevance.LastVerified),
		doc.Quality.Recency.Value, formatNullableTimePtr(doc.Quality.Recency.LastVerified),
		doc.Quality.Reliability.Value, formatNullableTimePtr(doc.Quality.Reliability.LastVerified),
		boolToInt(doc.PendingReview), id)
	if err != nil {
		return nil, fmt.Errorf("updating document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing: %w", err)
	}
	return doc, nil
}

// applyPatch merges a patch into a document in place.
func applyPatch(doc *domain.Document, patch domain.DocumentPatch) {
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
}

// Tombstone marks a document deleted while preserving its identity.
func (m *metadataStore) Tombstone(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := m.store.db.ExecContext(ctx, `
		UPDATE documents SET tombstoned = 1, tombstoned_at = ?, modified_at = ?
		WHERE id = ? AND tombstoned = 0
	`, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("tombstoning document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking tombstone result: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkBrokenLink records that the document references a tombstoned target.
func (m *metadataStore) MarkBrokenLink(ctx context.Context, id, targetID string) error {
	tx, err := m.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var raw string
	row := tx.QueryRowContext(ctx, "SELECT broken_links FROM documents WHERE id = ?", id)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("reading broken links: %w", err)
	}

	links := unmarshalSet(raw)
	links = domain.MergeSets(links, []string{targetID})

	_, err = tx.ExecContext(ctx, "UPDATE documents SET broken_links = ? WHERE id = ?",
		marshalSet(links), id)
	if err != nil {
		return fmt.Errorf("writing broken links: %w", err)
	}
	return tx.Commit()
}

// ListByFacets returns documents matching the filter, ordered by id.
// Set-valued facets are stored as JSON, so matching happens in memory
// after a coarse SQL cut on tombstone state.
func (m *metadataStore) ListByFacets(ctx context.Context, filter domain.FacetFilter) ([]domain.Document, error) {
	query := "SELECT " + documentColumns + " FROM documents"
	if !filter.IncludeDeleted {
		query += " WHERE tombstoned = 0"
	}
	query += " ORDER BY id ASC"

	rows, err := m.store.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocumentRows(rows)
		if err != nil {
			return nil, err
		}
		if filter.Matches(doc) {
			docs = append(docs, *doc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// List returns every document, tombstones included, ordered by id.
func (m *metadataStore) List(ctx context.Context) ([]domain.Document, error) {
	rows, err := m.store.db.QueryContext(ctx,
		"SELECT "+documentColumns+" FROM documents ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocumentRows(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// Close is satisfied by the parent store's connection.
func (m *metadataStore) Close() error {
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocumentFrom(sc scanner) (*domain.Document, error) {
	var doc domain.Document
	var category, confidentiality string
	var createdAt, modifiedAt string
	var sectors, domains, agentUsers, keywords, brokenLinks string
	var relVerified, recVerified, reliVerified, tombstonedAt sql.NullString
	var pendingReview, tombstoned int

	err := sc.Scan(
		&doc.ID, &doc.Checksum, &doc.Title, &category, &doc.Subcategory, &doc.Type, &doc.Content,
		&createdAt, &modifiedAt, &doc.Author, &sectors, &domains, &agentUsers, &keywords,
		&confidentiality, &doc.Language, &doc.Format, &doc.Size,
		&doc.Quality.Relevance.Value, &relVerified,
		&doc.Quality.Recency.Value, &recVerified,
		&doc.Quality.Reliability.Value, &reliVerified,
		&pendingReview, &tombstoned, &tombstonedAt, &brokenLinks)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.Category = domain.Category(category)
	doc.Confidentiality = domain.Confidentiality(confidentiality)
	doc.CreatedAt = parseTime(createdAt)
	doc.ModifiedAt = parseTime(modifiedAt)
	doc.Sectors = unmarshalSet(sectors)
	doc.Domains = unmarshalSet(domains)
	doc.AgentUsers = unmarshalSet(agentUsers)
	doc.Keywords = unmarshalSet(keywords)
	doc.BrokenLinks = unmarshalSet(brokenLinks)
	doc.Quality.Relevance.LastVerified = parseNullableTimePtr(relVerified)
	doc.Quality.Recency.LastVerified = parseNullableTimePtr(recVerified)
	doc.Quality.Reliability.LastVerified = parseNullableTimePtr(reliVerified)
	doc.PendingReview = pendingReview == 1
	doc.Tombstoned = tombstoned == 1
	doc.TombstonedAt = parseNullableTimePtr(tombstonedAt)

	return &doc, nil
}

func scanDocument(row *sql.Row) (*domain.Document, error) {
	return scanDocumentFrom(row)
}

func scanDocumentRows(rows *sql.Rows) (*domain.Document, error) {
	return scanDocumentFrom(rows)
}

// ==================== Relation Store ====================

// relationStore implements driven.RelationStore.
type relationStore struct {
	store *Store
}

var _ driven.RelationStore = (*relationStore)(nil)

const relationColumns = `source_id, target_id, type, weight, inferred, broken_link, created_at, metadata`

// SaveRelation stores an edge, updating weight and metadata for
// duplicate triples.
func (r *relationStore) SaveRelation(ctx context.Context, rel domain.Relation) error {
	metadataJSON, err := json.Marshal(rel.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now().UTC()
	}

	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO relations (`+relationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id, type) DO UPDATE SET
			weight = excluded.weight,
			inferred = excluded.inferred,
			broken_link = excluded.broken_link,
			metadata = excluded.metadata
	`, rel.SourceID, rel.TargetID, string(rel.Type), rel.Weight,
		boolToInt(rel.Inferred), boolToInt(rel.BrokenLink),
		rel.CreatedAt.Format(time.RFC3339Nano), string(metadataJSON))
	if err != nil {
		return fmt.Errorf("saving relation: %w", err)
	}
	return nil
}

// DeleteOutgoing removes all edges originating at the node.
func (r *relationStore) DeleteOutgoing(ctx context.Context, sourceID string) error {
	_, err := r.store.db.ExecContext(ctx, "DELETE FROM relations WHERE source_id = ?", sourceID)
	if err != nil {
		return fmt.Errorf("deleting outgoing relations: %w", err)
	}
	return nil
}

// FlagBrokenLinks marks every edge pointing at targetID as broken.
func (r *relationStore) FlagBrokenLinks(ctx context.Context, targetID string) error {
	_, err := r.store.db.ExecContext(ctx,
		"UPDATE relations SET broken_link = 1 WHERE target_id = ?", targetID)
	if err != nil {
		return fmt.Errorf("flagging broken links: %w", err)
	}
	return nil
}

// Relations returns all edges touching the node, outgoing first.
func (r *relationStore) Relations(ctx context.Context, nodeID string) ([]domain.Relation, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT `+relationColumns+` FROM relations
		WHERE source_id = ? OR target_id = ?
		ORDER BY (source_id = ?) DESC, source_id ASC, target_id ASC, type ASC
	`, nodeID, nodeID, nodeID)
	if err != nil {
		return nil, fmt.Errorf("querying relations: %w", err)
	}
	defer rows.Close()
	return collectRelations(rows)
}

// AllRelations returns every edge.
func (r *relationStore) AllRelations(ctx context.Context) ([]domain.Relation, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT `+relationColumns+` FROM relations
		ORDER BY source_id ASC, target_id ASC, type ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying relations: %w", err)
	}
	defer rows.Close()
	return collectRelations(rows)
}

func collectRelations(rows *sql.Rows) ([]domain.Relation, error) {
	var rels []domain.Relation
	for rows.Next() {
		var rel domain.Relation
		var typ, createdAt, metadataJSON string
		var inferred, brokenLink int
		if err := rows.Scan(&rel.SourceID, &rel.TargetID, &typ, &rel.Weight,
			&inferred, &brokenLink, &createdAt, &metadataJSON); err != nil {
			return nil, fmt.Errorf("scanning relation: %w", err)
		}
		rel.Type = domain.RelationType(typ)
		rel.Inferred = inferred == 1
		rel.BrokenLink = brokenLink == 1
		rel.CreatedAt = parseTime(createdAt)
		if metadataJSON != "" && metadataJSON != "{}" && metadataJSON != "null" {
			if err := json.Unmarshal([]byte(metadataJSON), &rel.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshalling relation metadata: %w", err)
			}
		}
		rels = append(rels, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating relations: %w", err)
	}
	return rels, nil
}

// ==================== Source Store ====================

// sourceStore implements driven.SourceStore.
type sourceStore struct {
	store *Store
}

var _ driven.SourceStore = (*sourceStore)(nil)

// Save stores or updates a source.
func (s *sourceStore) Save(ctx context.Context, source domain.Source) error {
	configJSON, err := json.Marshal(source.Config)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	now := time.Now().UTC()
	if source.CreatedAt.IsZero() {
		source.CreatedAt = now
	}
	source.UpdatedAt = now

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO sources (id, type, name, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			name = excluded.name,
			config = excluded.config,
			updated_at = excluded.updated_at
	`, source.ID, source.Type, source.Name, string(configJSON),
		source.CreatedAt.Format(time.RFC3339Nano), source.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("saving source: %w", err)
	}
	return nil
}

// Get retrieves a source by id.
func (s *sourceStore) Get(ctx context.Context, id string) (*domain.Source, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, type, name, config, created_at, updated_at FROM sources WHERE id = ?
	`, id)

	var source domain.Source
	var configJSON, createdAt, updatedAt string
	if err := row.Scan(&source.ID, &source.Type, &source.Name, &configJSON, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning source: %w", err)
	}
	if err := json.Unmarshal([]byte(configJSON), &source.Config); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	source.CreatedAt = parseTime(createdAt)
	source.UpdatedAt = parseTime(updatedAt)
	return &source, nil
}

// Delete removes a source.
func (s *sourceStore) Delete(ctx context.Context, id string) error {
	res, err := s.store.db.ExecContext(ctx, "DELETE FROM sources WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting source: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns all configured sources.
func (s *sourceStore) List(ctx context.Context) ([]domain.Source, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, type, name, config, created_at, updated_at FROM sources ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		var source domain.Source
		var configJSON, createdAt, updatedAt string
		if err := rows.Scan(&source.ID, &source.Type, &source.Name, &configJSON, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		if err := json.Unmarshal([]byte(configJSON), &source.Config); err != nil {
			return nil, fmt.Errorf("unmarshalling config: %w", err)
		}
		source.CreatedAt = parseTime(createdAt)
		source.UpdatedAt = parseTime(updatedAt)
		sources = append(sources, source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sources: %w", err)
	}
	return sources, nil
}

// ==================== Sync State Store ====================

// syncStateStore implements driven.SyncStateStore.
type syncStateStore struct {
	store *Store
}

var _ driven.SyncStateStore = (*syncStateStore)(nil)

// Save stores or updates sync state.
func (s *syncStateStore) Save(ctx context.Context, state domain.SyncState) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO sync_state (source_id, cursor, last_sync, stale, failures)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			cursor = excluded.cursor,
			last_sync = excluded.last_sync,
			stale = excluded.stale,
			failures = excluded.failures
	`, state.SourceID, state.Cursor, formatNullableTime(state.LastSync),
		boolToInt(state.Stale), state.Failures)
	if err != nil {
		return fmt.Errorf("saving sync state: %w", err)
	}
	return nil
}

// Get retrieves sync state for a source.
func (s *syncStateStore) Get(ctx context.Context, sourceID string) (*domain.SyncState, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT source_id, cursor, last_sync, stale, failures FROM sync_state WHERE source_id = ?
	`, sourceID)

	var state domain.SyncState
	var lastSync sql.NullString
	var stale int
	if err := row.Scan(&state.SourceID, &state.Cursor, &lastSync, &stale, &state.Failures); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning sync state: %w", err)
	}
	state.LastSync = parseNullableTime(lastSync)
	state.Stale = stale == 1
	return &state, nil
}

// ==================== Snapshot Store ====================

// snapshotStore implements driven.SnapshotStore.
type snapshotStore struct {
	store *Store
}

var _ driven.SnapshotStore = (*snapshotStore)(nil)

// CurrentSnapshot returns the last durable snapshot id, 0 if none.
func (s *snapshotStore) CurrentSnapshot(ctx context.Context) (uint64, error) {
	var id uint64
	row := s.store.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) FROM snapshots")
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("reading snapshot: %w", err)
	}
	return id, nil
}

// AdvanceSnapshot durably records a new snapshot id.
func (s *snapshotStore) AdvanceSnapshot(ctx context.Context, id uint64) error {
	current, err := s.CurrentSnapshot(ctx)
	if err != nil {
		return err
	}
	if id <= current {
		return domain.NewValidationError("snapshot",
			fmt.Sprintf("id %d does not advance past %d", id, current))
	}
	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO snapshots (k, id, advanced_at) VALUES (1, ?, ?)
		ON CONFLICT(k) DO UPDATE SET id = excluded.id, advanced_at = excluded.advanced_at
	`, id, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("advancing snapshot: %w", err)
	}
	return nil
}

// ==================== Helper Functions ====================

// marshalSet serialises a string set to JSON, nil becoming "[]".
func marshalSet(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// unmarshalSet parses a JSON string set, tolerating null and garbage.
func unmarshalSet(raw string) []string {
	if raw == "" || raw == "[]" || raw == "null" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	if len(values) == 0 {
		return nil
	}
	return values
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// formatNullableTime formats a time to RFC3339 string, or returns nil for zero time.
func formatNullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

// formatNullableTimePtr formats an optional time, nil staying NULL.
func formatNullableTimePtr(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

// parseNullableTime parses a nullable RFC3339 string to time.Time.
func parseNullableTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseNullableTimePtr parses a nullable RFC3339 string to *time.Time.
func parseNullableTimePtr(s sql.NullString) *time.Time {
	t := parseNullableTime(s)
	if t.IsZero() {
		return nil
	}
	return &t
}

// nullString returns nil for empty strings, otherwise the string.
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// boolToInt converts a bool to 1 (true) or 0 (false).
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
