package lexical

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeFoldsAccentsAndStopWords(t *testing.T) {
	tokens := Tokenize("Analyse du Marché des semi-conducteurs")

	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	assert.Equal(t, []string{"analyse", "marche", "semi", "conducteurs"}, terms)

	// Positions count surviving tokens only.
	assert.Equal(t, 0, tokens[0].Position)
	assert.Equal(t, 1, tokens[1].Position)
}

func TestParseQueryGroups(t *testing.T) {
	q := parseQuery(`gpu marché OR "data center" NOT vendor`)

	require.Len(t, q.groups, 2)
	require.Len(t, q.groups[0], 2)
	assert.Equal(t, []string{"gpu"}, q.groups[0][0].phrase)
	assert.Equal(t, []string{"marche"}, q.groups[0][1].phrase)

	require.Len(t, q.groups[1], 2)
	assert.Equal(t, []string{"data", "center"}, q.groups[1][0].phrase)
	assert.False(t, q.groups[1][0].negate)
	assert.Equal(t, []string{"vendor"}, q.groups[1][1].phrase)
	assert.True(t, q.groups[1][1].negate)
}

func TestParseQueryOnlyNegativesIsEmpty(t *testing.T) {
	q := parseQuery("NOT gpu")
	assert.True(t, q.empty())
}

func seedIndex(t *testing.T) *Index {
	t.Helper()
	idx := New()
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, "doc-a", 1, "ck-a",
		"Analyse marché GPU",
		"Le marché GPU mondial progresse. Les data centers tirent la demande GPU."))
	require.NoError(t, idx.Index(ctx, "doc-b", 1, "ck-b",
		"Veille fournisseurs",
		"Panorama des fournisseurs de composants pour data center."))
	require.NoError(t, idx.Index(ctx, "doc-c", 2, "ck-c",
		"GPU benchmark",
		"Benchmark GPU pour entraînement de modèles."))
	return idx
}

func TestSearchScoresMatchingDocuments(t *testing.T) {
	idx := seedIndex(t)

	hits, err := idx.Search(context.Background(), "gpu", 2, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	ids := []string{hits[0].DocID, hits[1].DocID}
	assert.ElementsMatch(t, []string{"doc-a", "doc-c"}, ids)
	assert.Greater(t, hits[0].Score, 0.0)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
}

func TestSearchRespectsGeneration(t *testing.T) {
	idx := seedIndex(t)

	// doc-c was indexed at generation 2 and must be invisible at 1.
	hits, err := idx.Search(context.Background(), "gpu", 1, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-a", hits[0].DocID)
}

func TestSearchPhraseAdjacency(t *testing.T) {
	idx := seedIndex(t)

	// doc-a says "data centers", which is not the exact phrase.
	hits, err := idx.Search(context.Background(), `"data center"`, 2, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-b", hits[0].DocID)

	// "demande GPU" is not a phrase in doc-b.
	hits, err = idx.Search(context.Background(), `"demande gpu"`, 2, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-a", hits[0].DocID)
}

func TestSearchBooleanOperators(t *testing.T) {
	idx := seedIndex(t)
	ctx := context.Background()

	hits, err := idx.Search(ctx, "gpu NOT benchmark", 2, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-a", hits[0].DocID)

	hits, err = idx.Search(ctx, "benchmark OR fournisseurs", 2, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
}

func TestSearchDeterministicOrdering(t *testing.T) {
	idx := seedIndex(t)

	first, err := idx.Search(context.Background(), "gpu OR fournisseurs", 2, 10)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := idx.Search(context.Background(), "gpu OR fournisseurs", 2, 10)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRemoveAndChecksum(t *testing.T) {
	idx := seedIndex(t)
	ctx := context.Background()

	assert.Equal(t, "ck-a", idx.Checksum("doc-a"))
	require.NoError(t, idx.Remove(ctx, "doc-a"))
	assert.Empty(t, idx.Checksum("doc-a"))

	hits, err := idx.Search(ctx, "mondial", 2, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, 2, idx.Docs())
}

func TestReset(t *testing.T) {
	idx := seedIndex(t)
	require.NoError(t, idx.Reset(context.Background()))
	assert.Equal(t, 0, idx.Docs())

	hits, err := idx.Search(context.Background(), "gpu", 10, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
