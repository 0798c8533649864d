package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gubeli/substans-kb/internal/core/domain"
	"github.com/Gubeli/substans-kb/internal/core/ports/driven"
)

func serveItems(t *testing.T, items []item) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(items))
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestConnector(t *testing.T, feedURL string) *Connector {
	t.Helper()
	c, err := New("src-feed", map[string]string{"url": feedURL})
	require.NoError(t, err)
	return c
}

// fetchAll runs one poll cycle and collects everything it produced.
func fetchAll(t *testing.T, c *Connector, state domain.SyncState) ([]domain.RawContent, string) {
	t.Helper()
	contentCh, errCh := c.Fetch(context.Background(), state)
	var contents []domain.RawContent
	for content := range contentCh {
		contents = append(contents, content)
	}
	err := <-errCh
	fc, ok := driven.IsFetchComplete(err)
	require.True(t, ok, "expected completion sentinel, got %v", err)
	return contents, fc.NewCursor
}

func TestFetchStreamsFeedItems(t *testing.T) {
	published := time.Date(2026, 8, 12, 9, 30, 0, 0, time.UTC)
	server := serveItems(t, []item{
		{
			ID:          "a-1",
			Title:       "Percée sur les accélérateurs IA",
			Content:     "Un nouveau fournisseur bouscule le marché des GPU.",
			Author:      "veille",
			Language:    "fr",
			PublishedAt: published,
			Keywords:    []string{"gpu"},
			Sectors:     []string{"semi-conducteurs"},
		},
	})

	c := newTestConnector(t, server.URL)
	contents, cursor := fetchAll(t, c, domain.SyncState{})

	require.Len(t, contents, 1)
	got := contents[0]
	assert.Equal(t, "Percée sur les accélérateurs IA", got.Title)
	assert.Equal(t, "src-feed", got.SourceID)
	assert.Equal(t, server.URL+"#a-1", got.URI)
	assert.Equal(t, "feed", got.Hints.SourceType)
	assert.Equal(t, "veille", got.Hints.Author)
	assert.Equal(t, "fr", got.Hints.Language)
	assert.Equal(t, []string{"gpu"}, got.Hints.Keywords)
	assert.Equal(t, []string{"semi-conducteurs"}, got.Hints.Sectors)
	assert.Equal(t, published.Format(time.RFC3339Nano), cursor)
}

func TestFetchSkipsItemsAtOrBeforeCursor(t *testing.T) {
	older := time.Date(2026, 8, 10, 8, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 8, 11, 8, 0, 0, 0, time.UTC)
	server := serveItems(t, []item{
		{ID: "old", Title: "Ancien billet", Content: "déjà ingéré", PublishedAt: older},
		{ID: "new", Title: "Nouveau billet", Content: "à ingérer", PublishedAt: newer},
	})

	c := newTestConnector(t, server.URL)
	state := domain.SyncState{Cursor: older.Format(time.RFC3339Nano)}
	contents, cursor := fetchAll(t, c, state)

	require.Len(t, contents, 1)
	assert.Equal(t, "Nouveau billet", contents[0].Title)
	assert.Equal(t, newer.Format(time.RFC3339Nano), cursor)
}

func TestFetchSkipsIncompleteItems(t *testing.T) {
	now := time.Now().UTC()
	server := serveItems(t, []item{
		{ID: "no-title", Content: "corps sans titre", PublishedAt: now},
		{ID: "no-body", Title: "Titre sans corps", PublishedAt: now},
		{ID: "ok", Title: "Billet complet", Content: "corps présent", PublishedAt: now},
	})

	c := newTestConnector(t, server.URL)
	contents, _ := fetchAll(t, c, domain.SyncState{})

	require.Len(t, contents, 1)
	assert.Equal(t, "Billet complet", contents[0].Title)
}

func TestFetchReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	c := newTestConnector(t, server.URL)
	contentCh, errCh := c.Fetch(context.Background(), domain.SyncState{})
	for range contentCh {
	}
	err := <-errCh
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestNewValidatesURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "ftp://feed.example/items", "/relative/path"} {
		_, err := New("src-feed", map[string]string{"url": raw})
		assert.ErrorIs(t, err, domain.ErrValidation, "url %q", raw)
	}
}

func TestWatchIsUnsupported(t *testing.T) {
	c := newTestConnector(t, "https://feed.example/items")
	_, err := c.Watch(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}
