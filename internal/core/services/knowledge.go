package services

import (
	"context"
	"sort"

	"github.com/Gubeli/substans-kb/internal/core/domain"
	"github.com/Gubeli/substans-kb/internal/core/ports/driving"
)

// Ensure KnowledgeService implements the interface.
var _ driving.KnowledgeService = (*KnowledgeService)(nil)

// KnowledgeService is the Agent Knowledge Interface. It composes the
// ingestion and query services behind the single boundary that agent
// processes are allowed to touch.
type KnowledgeService struct {
	ingest    driving.IngestService
	query     driving.QueryService
	snapshots *SnapshotManager
}

// NewKnowledgeService creates the agent-facing facade.
func NewKnowledgeService(ingest driving.IngestService, query driving.QueryService, snapshots *SnapshotManager) *KnowledgeService {
	return &KnowledgeService{
		ingest:    ingest,
		query:     query,
		snapshots: snapshots,
	}
}

// GetRelevantSources returns live documents matching any of the agent's
// declared sectors or domains, newest first. An agent with no declared
// specialities gets the whole live corpus.
func (s *KnowledgeService) GetRelevantSources(_ context.Context, profile domain.AgentProfile) ([]domain.Document, error) {
	snap := s.snapshots.Current()
	if snap == nil {
		return nil, domain.ErrEngineClosed
	}

	unrestricted := len(profile.Sectors) == 0 && len(profile.Domains) == 0

	var docs []domain.Document
	for _, doc := range snap.Docs() {
		if doc.Tombstoned {
			continue
		}
		if unrestricted || intersectsFold(doc.Sectors, profile.Sectors) ||
			intersectsFold(doc.Domains, profile.Domains) {
			docs = append(docs, *doc)
		}
	}

	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].ModifiedAt.Equal(docs[j].ModifiedAt) {
			return docs[i].ModifiedAt.After(docs[j].ModifiedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

// SearchKnowledge resolves a query into ranked results.
func (s *KnowledgeService) SearchKnowledge(ctx context.Context, spec domain.QuerySpec) ([]domain.QueryResult, error) {
	return s.query.Search(ctx, spec)
}

// AddNewKnowledge ingests new content with metadata hints.
func (s *KnowledgeService) AddNewKnowledge(ctx context.Context, content domain.RawContent) (*driving.IngestReceipt, error) {
	return s.ingest.Ingest(ctx, content)
}

// intersectsFold reports whether the sets share a member under accent
// and case folding.
func intersectsFold(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	folded := make(map[string]struct{}, len(a))
	for _, v := range a {
		folded[foldText(v)] = struct{}{}
	}
	for _, v := range b {
		if _, ok := folded[foldText(v)]; ok {
			return true
		}
	}
	return false
}
