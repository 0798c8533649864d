package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unit(values ...float32) []float32 {
	return values
}

func seedIndex(t *testing.T) *Index {
	t.Helper()
	idx := New(3)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, "doc-a", 1, "ck-a", unit(1, 0, 0)))
	require.NoError(t, idx.Add(ctx, "doc-b", 1, "ck-b", unit(0.8, 0.6, 0)))
	require.NoError(t, idx.Add(ctx, "doc-c", 2, "ck-c", unit(0, 1, 0)))
	return idx
}

func TestAddRejectsWrongDimensions(t *testing.T) {
	idx := New(3)
	err := idx.Add(context.Background(), "doc-a", 1, "ck", unit(1, 0))
	assert.Error(t, err)
}

func TestSearchOrdersBySimilarity(t *testing.T) {
	idx := seedIndex(t)

	hits, err := idx.Search(context.Background(), unit(1, 0, 0), 2, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "doc-a", hits[0].DocID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	assert.Equal(t, "doc-b", hits[1].DocID)
	assert.InDelta(t, 0.8, hits[1].Similarity, 1e-6)
	assert.Equal(t, "doc-c", hits[2].DocID)
	assert.InDelta(t, 0.0, hits[2].Similarity, 1e-6)
}

func TestSearchRespectsGeneration(t *testing.T) {
	idx := seedIndex(t)

	hits, err := idx.Search(context.Background(), unit(0, 1, 0), 1, 10)
	require.NoError(t, err)

	for _, h := range hits {
		assert.NotEqual(t, "doc-c", h.DocID)
	}
	require.Len(t, hits, 2)
}

func TestSearchClampsNegativeCosine(t *testing.T) {
	idx := New(3)
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, "doc-a", 1, "ck", unit(-1, 0, 0)))

	hits, err := idx.Search(ctx, unit(1, 0, 0), 1, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 0.0, hits[0].Similarity)
}

func TestSearchLimitsToK(t *testing.T) {
	idx := seedIndex(t)

	hits, err := idx.Search(context.Background(), unit(1, 0, 0), 2, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-a", hits[0].DocID)
}

func TestRemoveAndChecksum(t *testing.T) {
	idx := seedIndex(t)
	ctx := context.Background()

	assert.Equal(t, "ck-b", idx.Checksum("doc-b"))
	require.NoError(t, idx.Remove(ctx, "doc-b"))
	assert.Empty(t, idx.Checksum("doc-b"))

	hits, err := idx.Search(ctx, unit(1, 0, 0), 2, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
}

func TestReset(t *testing.T) {
	idx := seedIndex(t)
	require.NoError(t, idx.Reset(context.Background()))

	hits, err := idx.Search(context.Background(), unit(1, 0, 0), 2, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
