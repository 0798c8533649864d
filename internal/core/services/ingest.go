package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Gubeli/substans-kb/internal/core/domain"
	"github.com/Gubeli/substans-kb/internal/core/ports/driven"
	"github.com/Gubeli/substans-kb/internal/core/ports/driving"
	"github.com/Gubeli/substans-kb/internal/graph"
	"github.com/Gubeli/substans-kb/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// IngestService runs the ingestion pipeline: checksum identity,
// classification, persistence, dual indexing, relation linking and the
// snapshot advance that makes it all visible at once.
type IngestService struct {
	meta       driven.MetadataStore
	lexical    driven.LexicalIndex
	vector     driven.VectorIndex
	embedder   driven.EmbeddingService
	graph      *graph.Graph
	classifier *Classifier
	snapshots  *SnapshotManager
	cfg        domain.EngineConfig

	// titles serialises ingestion per logical document so concurrent
	// versions of the same title link into a consistent chain.
	titles keyedMutex
}

// NewIngestService creates the ingestion pipeline service.
func NewIngestService(
	meta driven.MetadataStore,
	lexical driven.LexicalIndex,
	vector driven.VectorIndex,
	embedder driven.EmbeddingService,
	g *graph.Graph,
	classifier *Classifier,
	snapshots *SnapshotManager,
	cfg domain.EngineConfig,
) *IngestService {
	return &IngestService{
		meta:       meta,
		lexical:    lexical,
		vector:     vector,
		embedder:   embedder,
		graph:      g,
		classifier: classifier,
		snapshots:  snapshots,
		cfg:        cfg,
	}
}

// Checksum computes the content identity digest.
func Checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Ingest processes one payload synchronously.
func (s *IngestService) Ingest(ctx context.Context, content domain.RawContent) (*driving.IngestReceipt, error) {
	if content.Title == "" {
		return nil, domain.NewValidationError("title", "must not be empty")
	}
	if content.Content == "" {
		return nil, domain.NewValidationError("content", "must not be empty")
	}
	if content.Hints.Confidentiality != "" && !content.Hints.Confidentiality.Valid() {
		return nil, domain.NewValidationError("confidentiality",
			"unknown level "+string(content.Hints.Confidentiality))
	}

	unlock := s.titles.lock(content.Title)
	defer unlock()

	checksum := Checksum(content.Content)

	// Identical content is a refresh, never a new version.
	if existing, err := s.meta.GetByChecksum(ctx, checksum); err == nil {
		return s.refresh(ctx, existing, content)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("looking up checksum: %w", err)
	}

	classification := s.classifier.Classify(ctx, content)
	if classification.Ambiguous {
		logger.Warn("classifying %q: %v (best confidence %.2f), flagged for review",
			content.Title, domain.ErrClassificationAmbiguous, classification.Confidence)
	}
	doc := s.buildDocument(content, checksum, classification)

	embedding, err := s.embedder.Embed(ctx, content.Title+"\n"+content.Content)
	if err != nil {
		return nil, fmt.Errorf("embedding content: %w", err)
	}

	var prev *domain.Document
	if p, err := s.meta.LatestByTitle(ctx, content.Title); err == nil {
		prev = p
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("looking up previous version: %w", err)
	}

	logger.Debug("ingesting %q (category=%s strategy=%s confidence=%.2f)",
		doc.Title, classification.Category, classification.Strategy, classification.Confidence)

	_, err = s.snapshots.Commit(ctx, func(gen uint64) ([]*domain.Document, error) {
		id, err := s.meta.Put(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("persisting document: %w", err)
		}
		doc.ID = id

		// Index writes and relation linking are independent of each
		// other; dispatch them in parallel.
		eg, egCtx := errgroup.WithContext(ctx)
		eg.Go(func() error {
			return s.lexical.Index(egCtx, doc.ID, gen, doc.Checksum, doc.Title, doc.Content)
		})
		eg.Go(func() error {
			return s.vector.Add(egCtx, doc.ID, gen, doc.Checksum, embedding)
		})
		eg.Go(func() error {
			return s.linkRelations(egCtx, doc, prev, content.Hints, embedding, gen)
		})
		if err := eg.Wait(); err != nil {
			return nil, err
		}
		return []*domain.Document{doc}, nil
	})
	if err != nil {
		return nil, err
	}

	_, info, err := s.graph.VersionChain(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("reading version chain: %w", err)
	}

	return &driving.IngestReceipt{
		DocID:          doc.ID,
		Version:        info,
		Classification: classification,
	}, nil
}

// refresh handles resubmission of already-known content.
func (s *IngestService) refresh(ctx context.Context, existing *domain.Document, content domain.RawContent) (*driving.IngestReceipt, error) {
	resubmitted := *existing
	resubmitted.Keywords = content.Hints.Keywords
	if _, err := s.meta.Put(ctx, &resubmitted); err != nil {
		return nil, fmt.Errorf("refreshing document: %w", err)
	}

	refreshed, err := s.meta.Get(ctx, existing.ID, true)
	if err != nil {
		return nil, fmt.Errorf("reading refreshed document: %w", err)
	}

	// Publish the metadata refresh to readers.
	_, err = s.snapshots.Commit(ctx, func(uint64) ([]*domain.Document, error) {
		return []*domain.Document{refreshed}, nil
	})
	if err != nil {
		return nil, err
	}

	_, info, err := s.graph.VersionChain(ctx, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("reading version chain: %w", err)
	}

	logger.Debug("refreshed %q (doc %s)", existing.Title, existing.ID)
	return &driving.IngestReceipt{
		DocID:     existing.ID,
		Version:   info,
		Refreshed: true,
		Classification: domain.Classification{
			Category:    refreshed.Category,
			Subcategory: refreshed.Subcategory,
			Strategy:    "unchanged",
			Confidence:  1.0,
		},
	}, nil
}

// buildDocument assembles the document record from the payload and the
// classification outcome.
func (s *IngestService) buildDocument(content domain.RawContent, checksum string, cls domain.Classification) *domain.Document {
	hints := content.Hints
	confidentiality := hints.Confidentiality
	if confidentiality == "" {
		confidentiality = domain.ConfidentialityInternal
	}

	now := time.Now().UTC()
	return &domain.Document{
		Checksum:        checksum,
		Title:           content.Title,
		Category:        cls.Category,
		Subcategory:     cls.Subcategory,
		Type:            hints.Type,
		Content:         content.Content,
		CreatedAt:       now,
		ModifiedAt:      now,
		Author:          hints.Author,
		Sectors:         cls.Sectors,
		Domains:         cls.Domains,
		AgentUsers:      domain.NormalizeSet(hints.AgentUsers),
		Keywords:        domain.NormalizeSet(hints.Keywords),
		Confidentiality: confidentiality,
		Language:        hints.Language,
		Format:          hints.Format,
		Size:            int64(len(content.Content)),
		Quality: domain.Quality{
			Relevance:   domain.QualityScore{Value: 0.5},
			Recency:     domain.QualityScore{Value: 0.5},
			Reliability: domain.QualityScore{Value: 0.5},
		},
		PendingReview: cls.Ambiguous,
	}
}

// linkRelations wires the new document into the graph: version edges to
// its predecessor, explicit derive/reference edges declared in the hints,
// concept edges for extracted entities and inferred complement edges to
// similar documents.
func (s *IngestService) linkRelations(ctx context.Context, doc *domain.Document, prev *domain.Document, hints domain.Hints, embedding []float32, gen uint64) error {
	now := time.Now().UTC()

	if prev != nil && prev.ID != doc.ID {
		next := domain.Relation{
			SourceID:  prev.ID,
			TargetID:  doc.ID,
			Type:      domain.RelationVersionNext,
			Weight:    1,
			CreatedAt: now,
		}
		if err := s.graph.AddRelation(ctx, next); err != nil {
			return fmt.Errorf("linking version chain: %w", err)
		}
		back := domain.Relation{
			SourceID:  doc.ID,
			TargetID:  prev.ID,
			Type:      domain.RelationVersionPrev,
			Weight:    1,
			CreatedAt: now,
		}
		if err := s.graph.AddRelation(ctx, back); err != nil {
			return fmt.Errorf("linking version chain: %w", err)
		}
	}

	s.linkExplicit(ctx, doc, hints.DerivesFrom, domain.RelationDerive, now)
	s.linkExplicit(ctx, doc, hints.References, domain.RelationReference, now)

	for _, entity := range append(append([]string{}, doc.Sectors...), doc.Domains...) {
		rel := domain.Relation{
			SourceID:  doc.ID,
			TargetID:  domain.ConceptID(entity),
			Type:      domain.RelationReference,
			Weight:    0.5,
			CreatedAt: now,
		}
		if err := s.graph.AddRelation(ctx, rel); err != nil {
			return fmt.Errorf("linking concept %q: %w", entity, err)
		}
	}

	return s.inferComplements(ctx, doc, embedding, gen)
}

// linkExplicit adds hint-declared edges to already-visible documents.
// A bad target is the submitter's error: logged and skipped, never fatal
// to the ingestion.
func (s *IngestService) linkExplicit(ctx context.Context, doc *domain.Document, targets []string, typ domain.RelationType, now time.Time) {
	if len(targets) == 0 {
		return
	}
	snap := s.snapshots.Current()
	for _, target := range domain.NormalizeSet(targets) {
		if target == doc.ID {
			continue
		}
		if other := snap.Doc(target); other == nil || other.Tombstoned {
			logger.Warn("skipping %s relation from %s: unknown target %s", typ, doc.ID, target)
			continue
		}
		rel := domain.Relation{
			SourceID:  doc.ID,
			TargetID:  target,
			Type:      typ,
			Weight:    1,
			CreatedAt: now,
		}
		if err := s.graph.AddRelation(ctx, rel); err != nil {
			logger.Warn("linking %s -[%s]-> %s: %v", doc.ID, typ, target, err)
		}
	}
}

// inferComplements adds similarity-inferred complement edges, bounded
// per document and never to tombstoned or same-chain documents.
func (s *IngestService) inferComplements(ctx context.Context, doc *domain.Document, embedding []float32, gen uint64) error {
	budget := s.cfg.Graph.MaxInferredPerDoc - s.graph.InferredOutgoing(doc.ID)
	if budget <= 0 {
		return nil
	}

	// Search at the previous generation: only already-visible documents
	// are candidates.
	hits, err := s.vector.Search(ctx, embedding, gen-1, budget*2)
	if err != nil {
		return fmt.Errorf("searching similar documents: %w", err)
	}

	snap := s.snapshots.Current()
	added := 0
	for _, hit := range hits {
		if added >= budget {
			break
		}
		if hit.DocID == doc.ID || hit.Similarity < s.cfg.Graph.SimilarityThreshold {
			continue
		}
		if other := snap.Doc(hit.DocID); other == nil || other.Tombstoned || other.Title == doc.Title {
			continue
		}
		rel := domain.Relation{
			SourceID:  doc.ID,
			TargetID:  hit.DocID,
			Type:      domain.RelationComplement,
			Weight:    hit.Similarity,
			Inferred:  true,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.graph.AddRelation(ctx, rel); err != nil {
			return fmt.Errorf("inferring complement: %w", err)
		}
		added++
	}
	return nil
}

// IngestBatch processes payloads concurrently. Distinct logical
// documents proceed in parallel; same-title payloads serialise on the
// per-title lock inside Ingest.
func (s *IngestService) IngestBatch(ctx context.Context, contents []domain.RawContent) (*driving.BatchReport, error) {
	report := &driving.BatchReport{
		Receipts: make([]*driving.IngestReceipt, len(contents)),
		Errors:   make([]error, len(contents)),
	}

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.Ingest.Workers)

	for i := range contents {
		eg.Go(func() error {
			receipt, err := s.Ingest(egCtx, contents[i])

			mu.Lock()
			defer mu.Unlock()
			report.Receipts[i] = receipt
			report.Errors[i] = err
			switch {
			case err != nil:
				report.Failed++
				logger.Warn("batch item %q failed: %v", contents[i].Title, err)
			case receipt.Refreshed:
				report.Refreshed++
				report.Processed++
			default:
				report.Processed++
			}
			// Item failures are reported, never fatal to the batch.
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return report, err
	}
	return report, nil
}

// Tombstone marks a document deleted while preserving its identity for
// relation integrity. Outgoing edges are removed; incoming edges are
// flagged broken and their owners' metadata records the dangling target.
func (s *IngestService) Tombstone(ctx context.Context, docID string) error {
	doc, err := s.meta.Get(ctx, docID, false)
	if err != nil {
		return err
	}

	unlock := s.titles.lock(doc.Title)
	defer unlock()

	if err := s.meta.Tombstone(ctx, docID); err != nil {
		return err
	}

	referencing, err := s.graph.RemoveNode(ctx, docID)
	if err != nil {
		return fmt.Errorf("detaching relations: %w", err)
	}
	for _, refID := range referencing {
		if err := s.meta.MarkBrokenLink(ctx, refID, docID); err != nil {
			return fmt.Errorf("recording broken link on %s: %w", refID, err)
		}
	}

	changed := make([]*domain.Document, 0, len(referencing)+1)
	tombstoned, err := s.meta.Get(ctx, docID, true)
	if err != nil {
		return err
	}
	changed = append(changed, tombstoned)
	for _, refID := range referencing {
		ref, err := s.meta.Get(ctx, refID, true)
		if err != nil {
			return err
		}
		changed = append(changed, ref)
	}

	_, err = s.snapshots.Commit(ctx, func(uint64) ([]*domain.Document, error) {
		return changed, nil
	})
	if err != nil {
		return err
	}

	logger.Debug("tombstoned %s (%d referencing documents flagged)", docID, len(referencing))
	return nil
}

// UpdateMetadata applies an administrative metadata patch and republishes
// the document. Title edits re-enter both indexes so title terms stay
// searchable and the embedding stays derived from the current text.
func (s *IngestService) UpdateMetadata(ctx context.Context, docID string, patch domain.DocumentPatch) (*domain.Document, error) {
	if patch.Quality != nil && !patch.Quality.InRange() {
		return nil, domain.NewValidationError("quality", "values must be in [0,1]")
	}
	if patch.Confidentiality != nil && !patch.Confidentiality.Valid() {
		return nil, domain.NewValidationError("confidentiality",
			"unknown level "+string(*patch.Confidentiality))
	}

	updated, err := s.meta.Update(ctx, docID, patch)
	if err != nil {
		return nil, err
	}

	// Title edits re-enter both indexes: postings and the embedding are
	// derived from title and content together.
	var embedding []float32
	if patch.Title != nil {
		embedding, err = s.embedder.Embed(ctx, updated.Title+"\n"+updated.Content)
		if err != nil {
			return nil, fmt.Errorf("re-embedding after title change: %w", err)
		}
	}

	_, err = s.snapshots.Commit(ctx, func(gen uint64) ([]*domain.Document, error) {
		if patch.Title != nil {
			if err := s.lexical.Index(ctx, updated.ID, gen, updated.Checksum, updated.Title, updated.Content); err != nil {
				return nil, fmt.Errorf("re-indexing after title change: %w", err)
			}
			if err := s.vector.Add(ctx, updated.ID, gen, updated.Checksum, embedding); err != nil {
				return nil, fmt.Errorf("re-adding vector after title change: %w", err)
			}
		}
		return []*domain.Document{updated}, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// keyedMutex serialises work per string key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
