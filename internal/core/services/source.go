package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Gubeli/substans-kb/internal/core/domain"
	"github.com/Gubeli/substans-kb/internal/core/ports/driven"
	"github.com/Gubeli/substans-kb/internal/core/ports/driving"
	"github.com/Gubeli/substans-kb/internal/logger"
)

// Ensure SourceService implements the interface.
var _ driving.SourceService = (*SourceService)(nil)

// SourceService manages registered external sources. Polling routes
// fetched content through the same ingestion pipeline as manual
// submissions; a failing source is retried with bounded backoff and then
// marked stale so it can never block other work.
type SourceService struct {
	sources   driven.SourceStore
	syncState driven.SyncStateStore
	factory   driven.SourceFactory
	ingest    driving.IngestService
	meta      driven.MetadataStore
	retry     domain.RetryPolicy
}

// NewSourceService creates the source management service.
func NewSourceService(
	sources driven.SourceStore,
	syncState driven.SyncStateStore,
	factory driven.SourceFactory,
	ingest driving.IngestService,
	meta driven.MetadataStore,
	retry domain.RetryPolicy,
) *SourceService {
	return &SourceService{
		sources:   sources,
		syncState: syncState,
		factory:   factory,
		ingest:    ingest,
		meta:      meta,
		retry:     retry,
	}
}

// Add registers a new source and validates its configuration.
func (s *SourceService) Add(ctx context.Context, sourceType, name string, config map[string]string) (*domain.Source, error) {
	if name == "" {
		return nil, domain.NewValidationError("name", "must not be empty")
	}

	source := domain.Source{
		ID:     uuid.NewString(),
		Type:   sourceType,
		Name:   name,
		Config: config,
	}

	connector, err := s.factory.Create(ctx, source)
	if err != nil {
		return nil, err
	}
	defer connector.Close()

	if err := connector.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validating source: %w", err)
	}

	if err := s.sources.Save(ctx, source); err != nil {
		return nil, fmt.Errorf("saving source: %w", err)
	}
	logger.Info("registered %s source %q (%s)", sourceType, name, source.ID)
	return &source, nil
}

// Remove deletes a source registration. Documents already ingested from
// it remain in the knowledge base.
func (s *SourceService) Remove(ctx context.Context, id string) error {
	return s.sources.Delete(ctx, id)
}

// List returns all registered sources.
func (s *SourceService) List(ctx context.Context) ([]domain.Source, error) {
	return s.sources.List(ctx)
}

// Poll fetches a source once. Fetch failures are retried with bounded
// backoff; an exhausted budget marks the source stale and returns
// ErrSourceStale.
func (s *SourceService) Poll(ctx context.Context, id string) (*driving.BatchReport, error) {
	source, err := s.sources.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	connector, err := s.factory.Create(ctx, *source)
	if err != nil {
		return nil, err
	}
	defer connector.Close()

	state := domain.SyncState{SourceID: id}
	if prev, err := s.syncState.Get(ctx, id); err == nil {
		state = *prev
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("reading sync state: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= s.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := s.retry.Backoff(attempt - 1)
			logger.Debug("retrying source %s in %s (attempt %d/%d)", id, delay, attempt, s.retry.MaxAttempts)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		contents, cursor, err := s.drainFetch(ctx, connector, state)
		if err != nil {
			lastErr = err
			logger.Warn("fetching source %s failed: %v", id, err)
			continue
		}

		report, err := s.ingest.IngestBatch(ctx, contents)
		if err != nil {
			return report, err
		}

		state.Cursor = cursor
		state.LastSync = time.Now().UTC()
		state.Stale = false
		state.Failures = 0
		if err := s.syncState.Save(ctx, state); err != nil {
			return report, fmt.Errorf("saving sync state: %w", err)
		}
		return report, nil
	}

	// Retry budget exhausted: mark stale, never block other work.
	state.Stale = true
	state.Failures++
	if err := s.syncState.Save(ctx, state); err != nil {
		logger.Warn("saving stale state for %s: %v", id, err)
	}
	logger.Warn("source %s marked stale after %d attempts", id, s.retry.MaxAttempts)
	return nil, fmt.Errorf("polling source %s: %w: %w", id, domain.ErrSourceStale, lastErr)
}

// drainFetch consumes a connector's fetch stream into a batch. The
// content channel is drained to the end even when the completion marker
// arrives first, so buffered items are never dropped.
func (s *SourceService) drainFetch(ctx context.Context, connector driven.ContentSource, state domain.SyncState) ([]domain.RawContent, string, error) {
	contentCh, errCh := connector.Fetch(ctx, state)

	var contents []domain.RawContent
	cursor := state.Cursor
	done := false
	for contentCh != nil || !done {
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case content, ok := <-contentCh:
			if !ok {
				contentCh = nil
				continue
			}
			contents = append(contents, content)
		case err := <-errCh:
			if fc, ok := driven.IsFetchComplete(err); ok {
				if fc.NewCursor != "" {
					cursor = fc.NewCursor
				}
				done = true
				errCh = nil
				continue
			}
			return nil, "", err
		}
	}
	return contents, cursor, nil
}

// PollAll polls every registered source. Stale sources are logged and
// skipped over, never fatal.
func (s *SourceService) PollAll(ctx context.Context) error {
	sources, err := s.sources.List(ctx)
	if err != nil {
		return err
	}

	for _, source := range sources {
		if _, err := s.Poll(ctx, source.ID); err != nil {
			if errors.Is(err, domain.ErrSourceStale) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			logger.Warn("polling source %s: %v", source.ID, err)
		}
	}
	return nil
}

// Watch starts real-time watching for a source, routing change events
// through ingestion until the context is cancelled.
func (s *SourceService) Watch(ctx context.Context, id string) error {
	source, err := s.sources.Get(ctx, id)
	if err != nil {
		return err
	}

	connector, err := s.factory.Create(ctx, *source)
	if err != nil {
		return err
	}
	defer connector.Close()

	changes, err := connector.Watch(ctx)
	if err != nil {
		return err
	}

	logger.Info("watching source %q (%s)", source.Name, id)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			s.applyChange(ctx, change)
		}
	}
}

// applyChange routes one watch event. Failures are logged; the watch
// keeps running.
func (s *SourceService) applyChange(ctx context.Context, change domain.ContentChange) {
	switch change.Type {
	case domain.ChangeCreated, domain.ChangeUpdated:
		if _, err := s.ingest.Ingest(ctx, change.Content); err != nil {
			logger.Warn("ingesting watched change %q: %v", change.Content.Title, err)
		}
	case domain.ChangeDeleted:
		doc, err := s.meta.LatestByTitle(ctx, change.Content.Title)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				logger.Warn("resolving deleted document %q: %v", change.Content.Title, err)
			}
			return
		}
		if err := s.ingest.Tombstone(ctx, doc.ID); err != nil {
			logger.Warn("tombstoning %s: %v", doc.ID, err)
		}
	}
}
