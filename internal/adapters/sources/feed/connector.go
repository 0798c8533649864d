// Package feed implements the feed content source: a remote JSON feed
// polled over HTTP with proactive rate limiting.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Gubeli/substans-kb/internal/core/domain"
	"github.com/Gubeli/substans-kb/internal/core/ports/driven"
)

// Ensure Connector implements the interface.
var _ driven.ContentSource = (*Connector)(nil)

const (
	// defaultRequestsPerSecond throttles polling against one feed host.
	defaultRequestsPerSecond = 1.0

	// defaultTimeout bounds one feed request.
	defaultTimeout = 30 * time.Second
)

// item is one feed entry on the wire.
type item struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Author      string    `json:"author,omitempty"`
	Language    string    `json:"language,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Keywords    []string  `json:"keywords,omitempty"`
	Sectors     []string  `json:"sectors,omitempty"`
	Domains     []string  `json:"domains,omitempty"`
}

// Connector polls a JSON feed. The cursor is the newest published_at
// seen; incremental fetches skip items at or before it.
type Connector struct {
	sourceID string
	feedURL  string
	client   *http.Client
	limiter  *rate.Limiter

	mu     sync.Mutex
	closed bool
}

// New creates a feed connector from a source configuration.
// Config keys: "url" (required).
func New(sourceID string, config map[string]string) (*Connector, error) {
	feedURL := config["url"]
	if feedURL == "" {
		return nil, domain.NewValidationError("url", "must not be empty")
	}
	parsed, err := url.Parse(feedURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, domain.NewValidationError("url", "must be an absolute http(s) URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, domain.NewValidationError("url", "unsupported scheme "+parsed.Scheme)
	}

	return &Connector{
		sourceID: sourceID,
		feedURL:  feedURL,
		client:   &http.Client{Timeout: defaultTimeout},
		limiter:  rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), 1),
	}, nil
}

// SetHTTPClient replaces the HTTP client. Used by tests.
func (c *Connector) SetHTTPClient(client *http.Client) {
	c.client = client
}

// Type returns the source type identifier.
func (c *Connector) Type() string {
	return "feed"
}

// SourceID returns the source identifier.
func (c *Connector) SourceID() string {
	return c.sourceID
}

// Validate checks the feed configuration. The URL was parsed at
// construction; reachability is left to the first poll, which carries
// retry and stale handling.
func (c *Connector) Validate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrSourceUnavailable
	}
	return nil
}

// Fetch polls the feed once and streams items newer than the cursor.
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

		items, err := c.poll(ctx)
		if err != nil {
			errCh <- err
			return
		}

		since := parseCursor(state.Cursor)
		newest := since
		for _, entry := range items {
			if entry.PublishedAt.After(newest) {
				newest = entry.PublishedAt
			}
			if !since.IsZero() && !entry.PublishedAt.After(since) {
				continue
			}
			if entry.Title == "" || entry.Content == "" {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case contentCh <- c.toRawContent(entry):
			}
		}

		errCh <- &driven.FetchComplete{NewCursor: formatCursor(newest)}
	}()

	return contentCh, errCh
}

// Watch is not supported for feeds; polling is scheduler-driven.
func (c *Connector) Watch(_ context.Context) (<-chan domain.ContentChange, error) {
	return nil, domain.ErrUnsupportedType
}

// Close releases resources.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// poll performs one rate-limited GET of the feed.
func (c *Connector) poll(ctx context.Context) ([]item, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: feed returned status %d", domain.ErrSourceUnavailable, resp.StatusCode)
	}

	var items []item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decoding feed: %w", err)
	}
	return items, nil
}

func (c *Connector) toRawContent(entry item) domain.RawContent {
	uri := c.feedURL
	if entry.ID != "" {
		uri = c.feedURL + "#" + entry.ID
	}
	return domain.RawContent{
		Title:    entry.Title,
		Content:  entry.Content,
		SourceID: c.sourceID,
		URI:      uri,
		Hints: domain.Hints{
			SourceType: "feed",
			Author:     entry.Author,
			Language:   entry.Language,
			Keywords:   entry.Keywords,
			Sectors:    entry.Sectors,
			Domains:    entry.Domains,
		},
	}
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
