// Package directory implements the directory content source: a local
// folder walked on polls and watched for real-time changes.
package directory

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Gubeli/substans-kb/internal/core/domain"
	"github.com/Gubeli/substans-kb/internal/core/ports/driven"
	"github.com/Gubeli/substans-kb/internal/logger"
)

// Ensure Connector implements the interface.
var _ driven.ContentSource = (*Connector)(nil)

// maxFileSize bounds how much of a file is ingested (4 MiB).
const maxFileSize = 4 << 20

// Connector reads text files from a directory tree. Each file becomes a
// logical document titled by its path relative to the root; the poll
// cursor is the newest modification time seen, so unchanged files are
// skipped on incremental fetches.
type Connector struct {
	sourceID   string
	root       string
	extensions map[string]struct{}

	mu     sync.Mutex
	closed bool
}

// New creates a directory connector from a source configuration.
// Config keys: "path" (required), "extensions" (optional comma-separated
// whitelist, e.g. ".md,.txt").
func New(sourceID string, config map[string]string) (*Connector, error) {
	root := config["path"]
	if root == "" {
		return nil, domain.NewValidationError("path", "must not be empty")
	}

	var extensions map[string]struct{}
	if raw := config["extensions"]; raw != "" {
		extensions = make(map[string]struct{})
		for _, ext := range strings.Split(raw, ",") {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			extensions[ext] = struct{}{}
		}
	}

	return &Connector{
		sourceID:   sourceID,
		root:       filepath.Clean(root),
		extensions: extensions,
	}, nil
}

// Type returns the source type identifier.
func (c *Connector) Type() string {
	return "directory"
}

// SourceID returns the source identifier.
func (c *Connector) SourceID() string {
	return c.sourceID
}

// Validate checks the configured root exists and is a directory.
func (c *Connector) Validate(_ context.Context) error {
	info, err := os.Stat(c.root)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
	}
	if !info.IsDir() {
		return domain.NewValidationError("path", c.root+" is not a directory")
	}
	return nil
}

// Fetch walks the tree and streams files changed since the cursor.
func (c *Connector) Fetch(ctx context.Context, state domain.SyncState) (<-chan domain.RawContent, <-chan error) {
	contentCh := make(chan domain.RawContent)
	errCh := make(chan error, 1)

	go func() {
		defer close(contentCh)
		defer close(errCh)

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			errCh <- domain.ErrSourceUnavailable
			return
		}
		c.mu.Unlock()

		since := parseCursor(state.Cursor)
		newest := since

		err := filepath.WalkDir(c.root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			name := entry.Name()
			if entry.IsDir() {
				if path != c.root && strings.HasPrefix(name, ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(name, ".") || !c.wantFile(name) {
				return nil
			}

			info, err := entry.Info()
			if err != nil {
				return err
			}
			if info.Size() > maxFileSize {
				logger.Warn("skipping %s: larger than %d bytes", path, maxFileSize)
				return nil
			}
			if info.ModTime().After(newest) {
				newest = info.ModTime()
			}
			if !since.IsZero() && !info.ModTime().After(since) {
				return nil
			}

			content, err := c.readFile(path)
			if err != nil {
				logger.Warn("reading %s: %v", path, err)
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case contentCh <- content:
			}
			return nil
		})
		if err != nil {
			errCh <- fmt.Errorf("walking %s: %w", c.root, err)
			return
		}

		errCh <- &driven.FetchComplete{NewCursor: formatCursor(newest)}
	}()

	return contentCh, errCh
}

// Watch streams real-time change events from the directory tree.
func (c *Connector) Watch(ctx context.Context) (<-chan domain.ContentChange, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	// Watch the root and every subdirectory; fsnotify is not recursive.
	err = filepath.WalkDir(c.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if path != c.root && strings.HasPrefix(entry.Name(), ".") {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", c.root, err)
	}

	changes := make(chan domain.ContentChange)
	go func() {
		defer close(changes)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				c.handleEvent(ctx, watcher, event, changes)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("watch error on %s: %v", c.root, err)
			}
		}
	}()
	return changes, nil
}

// handleEvent translates one fsnotify event into a content change.
func (c *Connector) handleEvent(ctx context.Context, watcher *fsnotify.Watcher, event fsnotify.Event, changes chan<- domain.ContentChange) {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := watcher.Add(event.Name); err != nil {
				logger.Warn("watching new directory %s: %v", event.Name, err)
			}
			return
		}
		c.emitChange(ctx, domain.ChangeCreated, event.Name, changes)
	case event.Op.Has(fsnotify.Write):
		c.emitChange(ctx, domain.ChangeUpdated, event.Name, changes)
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		if !c.wantFile(name) {
			return
		}
		select {
		case <-ctx.Done():
		case changes <- domain.ContentChange{
			Type:    domain.ChangeDeleted,
			Content: domain.RawContent{Title: c.title(event.Name), SourceID: c.sourceID, URI: event.Name},
		}:
		}
	}
}

func (c *Connector) emitChange(ctx context.Context, changeType domain.ChangeType, path string, changes chan<- domain.ContentChange) {
	if !c.wantFile(filepath.Base(path)) {
		return
	}
	content, err := c.readFile(path)
	if err != nil {
		logger.Warn("reading %s: %v", path, err)
		return
	}
	select {
	case <-ctx.Done():
	case changes <- domain.ContentChange{Type: changeType, Content: content}:
	}
}

// Close releases resources.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// wantFile applies the extension whitelist.
func (c *Connector) wantFile(name string) bool {
	if c.extensions == nil {
		return true
	}
	_, ok := c.extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// title derives the stable logical-document title for a file: its path
// relative to the watched root.
func (c *Connector) title(path string) string {
	rel, err := filepath.Rel(c.root, path)
	if err != nil {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

// readFile builds the ingestion payload for one file.
func (c *Connector) readFile(path string) (domain.RawContent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.RawContent{}, err
	}
	name := filepath.Base(path)
	return domain.RawContent{
		Title:    c.title(path),
		Content:  string(data),
		SourceID: c.sourceID,
		URI:      path,
		Hints: domain.Hints{
			SourceType: "directory",
			Filename:   name,
			Format:     strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), "."),
		},
	}, nil
}

func parseCursor(cursor string) time.Time {
	if cursor == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, cursor)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatCursor(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
