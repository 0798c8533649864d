package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Gubeli/substans-kb/internal/adapters/driven/embedding/hash"
	"github.com/Gubeli/substans-kb/internal/adapters/driven/storage/memory"
	"github.com/Gubeli/substans-kb/internal/core/domain"
	"github.com/Gubeli/substans-kb/internal/graph"
	"github.com/Gubeli/substans-kb/internal/index/lexical"
	"github.com/Gubeli/substans-kb/internal/index/vector"
)

// testEngine wires the full service stack over in-memory adapters.
type testEngine struct {
	meta      *memory.MetadataStore
	relations *memory.RelationStore
	lex       *lexical.Index
	vec       *vector.Index
	embedder  *hash.Embedder
	graph     *graph.Graph
	snapshots *SnapshotManager
	cfg       domain.EngineConfig

	ingest *IngestService
	query  *QueryService
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	cfg := domain.DefaultEngineConfig()
	cfg.Index.EmbeddingDimensions = 64
	return newTestEngineWith(t, cfg)
}

func newTestEngineWith(t *testing.T, cfg domain.EngineConfig) *testEngine {
	t.Helper()

	meta := memory.NewMetadataStore()
	relations := memory.NewRelationStore()
	lex := lexical.New()
	vec := vector.New(cfg.Index.EmbeddingDimensions)
	embedder := hash.New(cfg.Index.EmbeddingDimensions)
	g := graph.New(relations, cfg.Graph)

	snapshots := NewSnapshotManager(meta, memory.NewSnapshotStore())
	require.NoError(t, snapshots.Load(context.Background()))

	classifier := NewClassifier(cfg.Classification, embedder)
	return &testEngine{
		meta:      meta,
		relations: relations,
		lex:       lex,
		vec:       vec,
		embedder:  embedder,
		graph:     g,
		snapshots: snapshots,
		cfg:       cfg,
		ingest:    NewIngestService(meta, lex, vec, embedder, g, classifier, snapshots, cfg),
		query:     NewQueryService(lex, vec, embedder, snapshots, cfg.Query),
	}
}

func rawContent(title, content string, hints domain.Hints) domain.RawContent {
	return domain.RawContent{Title: title, Content: content, Hints: hints}
}

func TestKeyedMutexSerialisesSameKey(t *testing.T) {
	var km keyedMutex

	unlock := km.lock("title")
	acquired := make(chan struct{})
	go func() {
		u := km.lock("title")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired")
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	var km keyedMutex

	unlockA := km.lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		u := km.lock("b")
		u()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("independent key blocked")
	}
}
