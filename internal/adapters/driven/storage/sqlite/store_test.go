package sqlite

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gubeli/substans-kb/internal/core/domain"
	"github.com/Gubeli/substans-kb/internal/index/lexical"
	"github.com/Gubeli/substans-kb/internal/index/vector"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func checksumOf(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func testDoc(title, content string) *domain.Document {
	return &domain.Document{
		Checksum: checksumOf(content),
		Title:    title,
		Category: domain.CategoryDomainCorpus,
		Content:  content,
		Keywords: []string{"gpu"},
		Quality: domain.Quality{
			Relevance:   domain.QualityScore{Value: 0.7},
			Recency:     domain.QualityScore{Value: 0.5},
			Reliability: domain.QualityScore{Value: 0.6},
		},
		Confidentiality: domain.ConfidentialityInternal,
		Size:            int64(len(content)),
	}
}

func TestPutAssignsIDAndRoundTrips(t *testing.T) {
	store := newTestStore(t)
	meta := store.MetadataStore()
	ctx := context.Background()

	doc := testDoc("Analyse marché GPU", "contenu initial")
	id, err := meta.Put(ctx, doc)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := meta.Get(ctx, id, false)
	require.NoError(t, err)
	assert.Equal(t, doc.Checksum, got.Checksum)
	assert.Equal(t, "Analyse marché GPU", got.Title)
	assert.Equal(t, domain.CategoryDomainCorpus, got.Category)
	assert.Equal(t, []string{"gpu"}, got.Keywords)
	assert.Equal(t, 0.7, got.Quality.Relevance.Value)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestPutIsIdempotentOnChecksum(t *testing.T) {
	store := newTestStore(t)
	meta := store.MetadataStore()
	ctx := context.Background()

	first := testDoc("Analyse marché GPU", "contenu identique")
	id1, err := meta.Put(ctx, first)
	require.NoError(t, err)

	second := testDoc("Analyse marché GPU", "contenu identique")
	second.Keywords = []string{"nvidia"}
	id2, err := meta.Put(ctx, second)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)

	got, err := meta.Get(ctx, id1, false)
	require.NoError(t, err)
	// Keyword hints from the resubmission are merged in.
	assert.Equal(t, []string{"gpu", "nvidia"}, got.Keywords)
}

func TestGetByChecksumAndLatestByTitle(t *testing.T) {
	store := newTestStore(t)
	meta := store.MetadataStore()
	ctx := context.Background()

	v1 := testDoc("Analyse marché GPU", "version un")
	v1.CreatedAt = time.Now().UTC().Add(-time.Hour)
	id1, err := meta.Put(ctx, v1)
	require.NoError(t, err)

	v2 := testDoc("Analyse marché GPU", "version deux")
	id2, err := meta.Put(ctx, v2)
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	byChecksum, err := meta.GetByChecksum(ctx, checksumOf("version un"))
	require.NoError(t, err)
	assert.Equal(t, id1, byChecksum.ID)

	latest, err := meta.LatestByTitle(ctx, "Analyse marché GPU")
	require.NoError(t, err)
	assert.Equal(t, id2, latest.ID)

	_, err = meta.LatestByTitle(ctx, "inconnu")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateAppliesPatchWithoutTouchingContent(t *testing.T) {
	store := newTestStore(t)
	meta := store.MetadataStore()
	ctx := context.Background()

	id, err := meta.Put(ctx, testDoc("Note méthodo", "corps du document"))
	require.NoError(t, err)

	author := "agent-7"
	pending := true
	updated, err := meta.Update(ctx, id, domain.DocumentPatch{
		Author:        &author,
		PendingReview: &pending,
		AddSectors:    []string{"semiconducteurs"},
		AddKeywords:   []string{"hpc"},
	})
	require.NoError(t, err)

	assert.Equal(t, "agent-7", updated.Author)
	assert.True(t, updated.PendingReview)
	assert.Equal(t, []string{"semiconducteurs"}, updated.Sectors)
	assert.Equal(t, []string{"gpu", "hpc"}, updated.Keywords)
	assert.Equal(t, "corps du document", updated.Content)
	assert.Equal(t, checksumOf("corps du document"), updated.Checksum)
}

func TestTombstonePreservesIdentity(t *testing.T) {
	store := newTestStore(t)
	meta := store.MetadataStore()
	ctx := context.Background()

	id, err := meta.Put(ctx, testDoc("Obsolète", "vieux contenu"))
	require.NoError(t, err)

	require.NoError(t, meta.Tombstone(ctx, id))

	_, err = meta.Get(ctx, id, false)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := meta.Get(ctx, id, true)
	require.NoError(t, err)
	assert.True(t, got.Tombstoned)
	require.NotNil(t, got.TombstonedAt)

	// Second tombstone of the same id is a not-found.
	assert.ErrorIs(t, meta.Tombstone(ctx, id), domain.ErrNotFound)
	assert.ErrorIs(t, meta.Tombstone(ctx, "missing"), domain.ErrNotFound)
}

func TestMarkBrokenLink(t *testing.T) {
	store := newTestStore(t)
	meta := store.MetadataStore()
	ctx := context.Background()

	id, err := meta.Put(ctx, testDoc("Référent", "contenu référent"))
	require.NoError(t, err)

	require.NoError(t, meta.MarkBrokenLink(ctx, id, "doc-disparu"))
	require.NoError(t, meta.MarkBrokenLink(ctx, id, "doc-disparu"))

	got, err := meta.Get(ctx, id, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-disparu"}, got.BrokenLinks)
}

func TestListByFacetsExcludesTombstones(t *testing.T) {
	store := newTestStore(t)
	meta := store.MetadataStore()
	ctx := context.Background()

	live := testDoc("Vivant", "contenu vivant")
	live.Sectors = []string{"energie"}
	liveID, err := meta.Put(ctx, live)
	require.NoError(t, err)

	dead := testDoc("Mort", "contenu mort")
	dead.Sectors = []string{"energie"}
	deadID, err := meta.Put(ctx, dead)
	require.NoError(t, err)
	require.NoError(t, meta.Tombstone(ctx, deadID))

	docs, err := meta.ListByFacets(ctx, domain.FacetFilter{Sectors: []string{"energie"}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, liveID, docs[0].ID)

	docs, err = meta.ListByFacets(ctx, domain.FacetFilter{
		Sectors:        []string{"energie"},
		IncludeDeleted: true,
	})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestRelationStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	rels := store.RelationStore()
	ctx := context.Background()

	rel := domain.Relation{
		SourceID: "doc-a",
		TargetID: "doc-b",
		Type:     domain.RelationReference,
		Weight:   0.5,
		Metadata: map[string]string{"note": "citation"},
	}
	require.NoError(t, rels.SaveRelation(ctx, rel))

	// Duplicate triple updates in place.
	rel.Weight = 0.9
	require.NoError(t, rels.SaveRelation(ctx, rel))

	all, err := rels.AllRelations(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 0.9, all[0].Weight)
	assert.Equal(t, "citation", all[0].Metadata["note"])

	touching, err := rels.Relations(ctx, "doc-b")
	require.NoError(t, err)
	require.Len(t, touching, 1)
}

func TestRelationStoreTombstoneOperations(t *testing.T) {
	store := newTestStore(t)
	rels := store.RelationStore()
	ctx := context.Background()

	require.NoError(t, rels.SaveRelation(ctx, domain.Relation{
		SourceID: "doc-x", TargetID: "doc-c", Type: domain.RelationReference, Weight: 1,
	}))
	require.NoError(t, rels.SaveRelation(ctx, domain.Relation{
		SourceID: "doc-a", TargetID: "doc-x", Type: domain.RelationDerive, Weight: 1,
	}))

	require.NoError(t, rels.DeleteOutgoing(ctx, "doc-x"))
	require.NoError(t, rels.FlagBrokenLinks(ctx, "doc-x"))

	all, err := rels.AllRelations(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "doc-a", all[0].SourceID)
	assert.True(t, all[0].BrokenLink)
}

func TestSourceStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	sources := store.SourceStore()
	ctx := context.Background()

	src := domain.Source{
		ID:     "dir-1",
		Type:   "directory",
		Name:   "Dossier veille",
		Config: map[string]string{"path": "/srv/veille"},
	}
	require.NoError(t, sources.Save(ctx, src))

	got, err := sources.Get(ctx, "dir-1")
	require.NoError(t, err)
	assert.Equal(t, "/srv/veille", got.Config["path"])
	assert.False(t, got.CreatedAt.IsZero())

	list, err := sources.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, sources.Delete(ctx, "dir-1"))
	_, err = sources.Get(ctx, "dir-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, sources.Delete(ctx, "dir-1"), domain.ErrNotFound)
}

func TestSyncStateStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	sync := store.SyncStateStore()
	ctx := context.Background()

	_, err := sync.Get(ctx, "feed-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	state := domain.SyncState{
		SourceID: "feed-1",
		Cursor:   "page-3",
		LastSync: time.Now().UTC().Truncate(time.Second),
		Stale:    true,
		Failures: 4,
	}
	require.NoError(t, sync.Save(ctx, state))

	got, err := sync.Get(ctx, "feed-1")
	require.NoError(t, err)
	assert.Equal(t, "page-3", got.Cursor)
	assert.True(t, got.Stale)
	assert.Equal(t, 4, got.Failures)
	assert.True(t, got.LastSync.Equal(state.LastSync))
}

func TestSnapshotStoreAdvancesMonotonically(t *testing.T) {
	store := newTestStore(t)
	snaps := store.SnapshotStore()
	ctx := context.Background()

	current, err := snaps.CurrentSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), current)

	require.NoError(t, snaps.AdvanceSnapshot(ctx, 1))
	require.NoError(t, snaps.AdvanceSnapshot(ctx, 5))

	current, err = snaps.CurrentSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), current)

	// Going backwards or standing still is rejected.
	assert.ErrorIs(t, snaps.AdvanceSnapshot(ctx, 5), domain.ErrValidation)
	assert.ErrorIs(t, snaps.AdvanceSnapshot(ctx, 3), domain.ErrValidation)
}

func TestSchedulerStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	sched := store.SchedulerStore()
	ctx := context.Background()

	missing, err := sched.GetTask(ctx, "absent")
	require.NoError(t, err)
	assert.Nil(t, missing)

	task := &domain.ScheduledTask{
		ID:       domain.TaskIDSourcePoll,
		Name:     "Source polling",
		Interval: 15 * time.Minute,
		NextRun:  time.Now().UTC().Add(15 * time.Minute).Truncate(time.Second),
		Enabled:  true,
	}
	require.NoError(t, sched.SaveTask(ctx, task))

	got, err := sched.GetTask(ctx, domain.TaskIDSourcePoll)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 15*time.Minute, got.Interval)
	assert.True(t, got.Enabled)

	task.LastError = "connection refused"
	task.Enabled = false
	require.NoError(t, sched.SaveTask(ctx, task))

	tasks, err := sched.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "connection refused", tasks[0].LastError)
	assert.False(t, tasks[0].Enabled)
}

func TestLexicalIndexStatePersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(dir)
	require.NoError(t, err)
	idx := lexical.NewPersistent(store.LexicalIndexStore())
	require.NoError(t, idx.Index(ctx, "doc-1", 1, "ck-1",
		"Analyse marché GPU", "la demande de gpu explose"))
	require.NoError(t, idx.Index(ctx, "doc-2", 2, "ck-2",
		"Veille cloud", "les fournisseurs cloud investissent"))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	loaded := lexical.NewPersistent(reopened.LexicalIndexStore())
	require.NoError(t, loaded.Load(ctx))
	assert.Equal(t, 2, loaded.Docs())
	assert.Equal(t, "ck-1", loaded.Checksum("doc-1"))

	hits, err := loaded.Search(ctx, "gpu", 2, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-1", hits[0].DocID)

	// Positions survive the round trip: phrase adjacency still matches.
	hits, err = loaded.Search(ctx, `"fournisseurs cloud"`, 2, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-2", hits[0].DocID)
}

func TestVectorIndexStatePersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(dir)
	require.NoError(t, err)
	idx := vector.NewPersistent(4, store.VectorIndexStore())
	require.NoError(t, idx.Add(ctx, "doc-1", 1, "ck-1", []float32{1, 0, 0, 0}))
	require.NoError(t, idx.Add(ctx, "doc-2", 2, "ck-2", []float32{0, 1, 0, 0}))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	loaded := vector.NewPersistent(4, reopened.VectorIndexStore())
	require.NoError(t, loaded.Load(ctx))
	assert.Equal(t, "ck-2", loaded.Checksum("doc-2"))

	hits, err := loaded.Search(ctx, []float32{1, 0, 0, 0}, 2, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-1", hits[0].DocID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
}

func TestIndexStateResetAndRemoveClearPersistedRows(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(dir)
	require.NoError(t, err)
	lex := lexical.NewPersistent(store.LexicalIndexStore())
	vec := vector.NewPersistent(4, store.VectorIndexStore())
	require.NoError(t, lex.Index(ctx, "doc-1", 1, "ck-1", "Titre", "contenu indexé"))
	require.NoError(t, lex.Index(ctx, "doc-2", 1, "ck-2", "Autre", "autre contenu"))
	require.NoError(t, vec.Add(ctx, "doc-1", 1, "ck-1", []float32{1, 0, 0, 0}))

	require.NoError(t, lex.Remove(ctx, "doc-2"))
	require.NoError(t, vec.Reset(ctx))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	lexLoaded := lexical.NewPersistent(reopened.LexicalIndexStore())
	require.NoError(t, lexLoaded.Load(ctx))
	assert.Equal(t, 1, lexLoaded.Docs())
	assert.Empty(t, lexLoaded.Checksum("doc-2"))

	vecLoaded := vector.NewPersistent(4, reopened.VectorIndexStore())
	require.NoError(t, vecLoaded.Load(ctx))
	assert.Empty(t, vecLoaded.Checksum("doc-1"))
}
