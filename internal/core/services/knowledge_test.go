package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gubeli/substans-kb/internal/core/domain"
)

func newKnowledgeService(e *testEngine) *KnowledgeService {
	return NewKnowledgeService(e.ingest, e.query, e.snapshots)
}

func TestGetRelevantSourcesFiltersBySpeciality(t *testing.T) {
	e := newTestEngine(t)
	ids := seedCorpus(t, e)
	ks := newKnowledgeService(e)

	docs, err := ks.GetRelevantSources(context.Background(), domain.AgentProfile{
		Name:    "veilleur",
		Sectors: []string{"Cloud"},
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	got := []string{docs[0].ID, docs[1].ID}
	assert.ElementsMatch(t, got,
		[]string{ids["Analyse marché GPU"], ids["Veille fournisseurs cloud"]})
}

func TestGetRelevantSourcesUnrestrictedReturnsLiveCorpus(t *testing.T) {
	e := newTestEngine(t)
	ids := seedCorpus(t, e)
	ks := newKnowledgeService(e)
	ctx := context.Background()

	require.NoError(t, e.ingest.Tombstone(ctx, ids["Veille fournisseurs cloud"]))

	docs, err := ks.GetRelevantSources(ctx, domain.AgentProfile{Name: "generaliste"})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	for i := 1; i < len(docs); i++ {
		assert.False(t, docs[i].ModifiedAt.After(docs[i-1].ModifiedAt),
			"documents must be ordered newest first")
	}
	for _, doc := range docs {
		assert.False(t, doc.Tombstoned)
	}
}

func TestKnowledgeFacadeDelegates(t *testing.T) {
	e := newTestEngine(t)
	ks := newKnowledgeService(e)
	ctx := context.Background()

	receipt, err := ks.AddNewKnowledge(ctx, rawContent("Veille quantique",
		"Percée annoncée sur la correction d'erreurs quantique.", domain.Hints{}))
	require.NoError(t, err)
	require.NotEmpty(t, receipt.DocID)

	results, err := ks.SearchKnowledge(ctx, domain.QuerySpec{Text: "quantique"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, receipt.DocID, results[0].DocID)
}
