package directory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gubeli/substans-kb/internal/core/domain"
	"github.com/Gubeli/substans-kb/internal/core/ports/driven"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// fetchAll runs one fetch cycle and collects everything it produced,
// honouring the channel contract: content channel closes first, then the
// completion sentinel.
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

func TestFetchReturnsFilesWithRelativeTitles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "notes/analyse.md", "analyse du marché")
	writeFile(t, root, "rapport.txt", "rapport trimestriel")

	c, err := New("src-dir", map[string]string{"path": root})
	require.NoError(t, err)

	contents, cursor := fetchAll(t, c, domain.SyncState{})
	require.Len(t, contents, 2)
	assert.NotEmpty(t, cursor)

	byTitle := make(map[string]domain.RawContent, len(contents))
	for _, content := range contents {
		byTitle[content.Title] = content
	}
	analyse, ok := byTitle["notes/analyse.md"]
	require.True(t, ok)
	assert.Equal(t, "analyse du marché", analyse.Content)
	assert.Equal(t, "src-dir", analyse.SourceID)
	assert.Equal(t, "directory", analyse.Hints.SourceType)
	assert.Equal(t, "analyse.md", analyse.Hints.Filename)
	assert.Equal(t, "md", analyse.Hints.Format)
}

func TestFetchSkipsUnchangedFilesOnIncrementalPoll(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "ancien.md", "contenu initial")

	c, err := New("src-dir", map[string]string{"path": root})
	require.NoError(t, err)

	contents, cursor := fetchAll(t, c, domain.SyncState{})
	require.Len(t, contents, 1)
	require.NotEmpty(t, cursor)

	// Nothing changed since the cursor.
	contents, _ = fetchAll(t, c, domain.SyncState{Cursor: cursor})
	assert.Empty(t, contents)

	// A newer file shows up on the next incremental fetch.
	path := writeFile(t, root, "nouveau.md", "contenu récent")
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	contents, next := fetchAll(t, c, domain.SyncState{Cursor: cursor})
	require.Len(t, contents, 1)
	assert.Equal(t, "nouveau.md", contents[0].Title)
	assert.NotEqual(t, cursor, next)
}

func TestFetchAppliesExtensionWhitelist(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "garde.md", "note gardée")
	writeFile(t, root, "ignore.bin", "blob ignoré")

	c, err := New("src-dir", map[string]string{"path": root, "extensions": "md, txt"})
	require.NoError(t, err)

	contents, _ := fetchAll(t, c, domain.SyncState{})
	require.Len(t, contents, 1)
	assert.Equal(t, "garde.md", contents[0].Title)
}

func TestFetchSkipsHiddenFilesAndDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "visible.md", "note visible")
	writeFile(t, root, ".cache/interne.md", "état interne")
	writeFile(t, root, ".secret.md", "caché")

	c, err := New("src-dir", map[string]string{"path": root})
	require.NoError(t, err)

	contents, _ := fetchAll(t, c, domain.SyncState{})
	require.Len(t, contents, 1)
	assert.Equal(t, "visible.md", contents[0].Title)
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New("src-dir", map[string]string{})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestValidateRejectsMissingDirectory(t *testing.T) {
	c, err := New("src-dir", map[string]string{"path": filepath.Join(t.TempDir(), "absent")})
	require.NoError(t, err)

	assert.ErrorIs(t, c.Validate(context.Background()), domain.ErrSourceUnavailable)
}

func TestWatchEmitsCreateEvents(t *testing.T) {
	root := t.TempDir()
	c, err := New("src-dir", map[string]string{"path": root, "extensions": ".md"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := c.Watch(ctx)
	require.NoError(t, err)

	writeFile(t, root, "nouvelle-note.md", "contenu surveillé")

	deadline := time.After(2 * time.Second)
	for {
		select {
		case change, ok := <-changes:
			require.True(t, ok, "watch channel closed before event arrived")
			// Create may be followed by Write for the same file.
			if change.Content.Title != "nouvelle-note.md" {
				continue
			}
			assert.Contains(t, []domain.ChangeType{domain.ChangeCreated, domain.ChangeUpdated}, change.Type)
			assert.Equal(t, "contenu surveillé", change.Content.Content)
			return
		case <-deadline:
			t.Fatal("no change event within deadline")
		}
	}
}
