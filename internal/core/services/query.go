package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Gubeli/substans-kb/internal/core/domain"
	"github.com/Gubeli/substans-kb/internal/core/ports/driven"
	"github.com/Gubeli/substans-kb/internal/core/ports/driving"
	"github.com/Gubeli/substans-kb/internal/graph"
	"github.com/Gubeli/substans-kb/internal/logger"
)

// Ensure QueryService implements the interface.
var _ driving.QueryService = (*QueryService)(nil)

const excerptLength = 160

// QueryService resolves queries against the current snapshot. A query
// reads one snapshot throughout: candidate retrieval, facet filtering,
// scoring and hydration all see the same corpus state.
type QueryService struct {
	lexical   driven.LexicalIndex
	vector    driven.VectorIndex
	embedder  driven.EmbeddingService
	snapshots *SnapshotManager
	cfg       domain.QueryConfig

	// repair is invoked asynchronously when an index entry disagrees
	// with document metadata. Optional.
	repair func(docID string)
}

// NewQueryService creates the query engine.
func NewQueryService(
	lexical driven.LexicalIndex,
	vector driven.VectorIndex,
	embedder driven.EmbeddingService,
	snapshots *SnapshotManager,
	cfg domain.QueryConfig,
) *QueryService {
	return &QueryService{
		lexical:   lexical,
		vector:    vector,
		embedder:  embedder,
		snapshots: snapshots,
		cfg:       cfg,
	}
}

// SetRepairFunc installs the callback used to schedule index repairs.
func (s *QueryService) SetRepairFunc(fn func(docID string)) {
	s.repair = fn
}

// Search returns ranked results for the spec. Results are deterministic
// for a fixed snapshot: scores are combined from fixed weights and ties
// break on ascending document id.
func (s *QueryService) Search(ctx context.Context, spec domain.QuerySpec) ([]domain.QueryResult, error) {
	snap := s.snapshots.Current()
	if snap == nil {
		return nil, domain.ErrEngineClosed
	}

	topK := spec.TopK
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}

	weights := s.cfg.Weights
	text := strings.TrimSpace(spec.Text)
	semantic := strings.TrimSpace(spec.SemanticQuery)

	// With no text and no semantic query the spec degenerates to a pure
	// facet filter; the retrieval weights are forced to zero.
	facetOnly := text == "" && semantic == ""
	if facetOnly {
		weights.Lexical = 0
		weights.Semantic = 0
	}

	logger.Section("Query Execution")
	logger.Debug("snapshot=%d text=%q semantic=%q topK=%d", snap.ID(), text, semantic, topK)

	lexScores, err := s.lexicalScores(ctx, text, snap, topK)
	if err != nil {
		return nil, err
	}
	semScores, err := s.semanticScores(ctx, semantic, snap, topK)
	if err != nil {
		return nil, err
	}

	candidates := make(map[string]struct{}, len(lexScores)+len(semScores))
	if facetOnly {
		for id := range snap.Docs() {
			candidates[id] = struct{}{}
		}
	} else {
		for id := range lexScores {
			candidates[id] = struct{}{}
		}
		for id := range semScores {
			candidates[id] = struct{}{}
		}
	}

	matched := matchedFacetNames(spec.Facets)
	contextTerms := contextTermSet(spec)
	now := time.Now().UTC()

	results := make([]domain.QueryResult, 0, len(candidates))
	for id := range candidates {
		doc := snap.Doc(id)
		if doc == nil {
			s.flagInconsistency(id, "document missing from snapshot")
			continue
		}
		if !spec.Facets.Matches(doc) {
			continue
		}
		if _, hit := lexScores[id]; hit && s.lexical.Checksum(id) != doc.Checksum {
			s.flagInconsistency(id, "lexical index checksum mismatch")
			continue
		}
		if _, hit := semScores[id]; hit && s.vector.Checksum(id) != doc.Checksum {
			s.flagInconsistency(id, "vector index checksum mismatch")
			continue
		}

		parts := domain.ScoreParts{
			Lexical:  weights.Lexical * lexScores[id],
			Semantic: weights.Semantic * semScores[id],
			Recency:  weights.Recency * s.recencyScore(doc, now),
			Quality:  weights.Quality * doc.Quality.Relevance.Value,
			Context:  weights.Context * contextOverlap(doc, contextTerms),
		}
		score := parts.Lexical + parts.Semantic + parts.Recency + parts.Quality + parts.Context

		results = append(results, domain.QueryResult{
			DocID:         id,
			Score:         round4(score),
			Parts:         parts,
			MatchedFacets: matched,
			Excerpt:       excerpt(doc.Content, text),
			Title:         doc.Title,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// lexicalScores runs the boolean/phrase query and normalises BM25 scores
// into [0,1) with score/(score+1).
func (s *QueryService) lexicalScores(ctx context.Context, text string, snap *Snapshot, topK int) (map[string]float64, error) {
	if text == "" {
		return nil, nil
	}
	// Over-fetch so facet filtering cannot starve the final page.
	hits, err := s.lexical.Search(ctx, text, snap.ID(), topK*10+50)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	scores := make(map[string]float64, len(hits))
	for _, hit := range hits {
		scores[hit.DocID] = hit.Score / (hit.Score + 1)
	}
	return scores, nil
}

// semanticScores embeds the query and collects cosine similarities.
func (s *QueryService) semanticScores(ctx context.Context, semantic string, snap *Snapshot, topK int) (map[string]float64, error) {
	if semantic == "" {
		return nil, nil
	}
	query, err := s.embedder.Embed(ctx, semantic)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	hits, err := s.vector.Search(ctx, query, snap.ID(), topK*10+50)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	scores := make(map[string]float64, len(hits))
	for _, hit := range hits {
		scores[hit.DocID] = hit.Similarity
	}
	return scores, nil
}

// recencyScore decays exponentially with document age, reaching 0.5 at
// the configured half-life.
func (s *QueryService) recencyScore(doc *domain.Document, now time.Time) float64 {
	if s.cfg.RecencyHalfLife <= 0 {
		return 0
	}
	age := now.Sub(doc.ModifiedAt)
	if age <= 0 {
		return 1
	}
	return math.Exp(-math.Ln2 * age.Seconds() / s.cfg.RecencyHalfLife.Seconds())
}

// flagInconsistency logs an index/metadata disagreement and schedules a
// repair. The query itself degrades by skipping the document.
func (s *QueryService) flagInconsistency(docID, reason string) {
	logger.Warn("index inconsistency for %s: %s (%v)", docID, reason, domain.ErrIndexInconsistency)
	if s.repair != nil {
		go s.repair(docID)
	}
}

// Get retrieves a single document from the current snapshot.
func (s *QueryService) Get(_ context.Context, docID string, includeDeleted bool) (*domain.Document, error) {
	snap := s.snapshots.Current()
	if snap == nil {
		return nil, domain.ErrEngineClosed
	}
	doc := snap.Doc(docID)
	if doc == nil {
		return nil, domain.ErrNotFound
	}
	if doc.Tombstoned && !includeDeleted {
		return nil, domain.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

// Snapshot describes the view queries are currently served from.
func (s *QueryService) Snapshot(_ context.Context) (domain.SnapshotInfo, error) {
	snap := s.snapshots.Current()
	if snap == nil {
		return domain.SnapshotInfo{}, domain.ErrEngineClosed
	}
	return domain.SnapshotInfo{
		ID:         snap.ID(),
		AdvancedAt: snap.AdvancedAt(),
		Documents:  snap.VisibleCount(),
	}, nil
}

// matchedFacetNames lists the populated facet constraints; every result
// satisfied all of them.
func matchedFacetNames(f domain.FacetFilter) []string {
	var names []string
	if len(f.Categories) > 0 {
		names = append(names, "categories")
	}
	if len(f.Subcategories) > 0 {
		names = append(names, "subcategories")
	}
	if len(f.Sectors) > 0 {
		names = append(names, "sectors")
	}
	if len(f.Domains) > 0 {
		names = append(names, "domains")
	}
	if len(f.AgentUsers) > 0 {
		names = append(names, "agent_users")
	}
	if len(f.Keywords) > 0 {
		names = append(names, "keywords")
	}
	if !f.After.IsZero() || !f.Before.IsZero() {
		names = append(names, "date_range")
	}
	if f.MinQuality > 0 {
		names = append(names, "min_quality")
	}
	return names
}

// contextTermSet collects the folded agent and mission context terms.
func contextTermSet(spec domain.QuerySpec) map[string]struct{} {
	terms := make(map[string]struct{})
	add := func(values []string) {
		for _, v := range values {
			if v != "" {
				terms[foldText(v)] = struct{}{}
			}
		}
	}
	if spec.RequestingAgent != nil {
		add(spec.RequestingAgent.Sectors)
		add(spec.RequestingAgent.Domains)
	}
	if spec.Mission != nil {
		add(spec.Mission.Keywords)
		add(spec.Mission.Sectors)
	}
	return terms
}

// contextOverlap is the fraction of requested context terms present in
// the document's sectors, domains or keywords.
func contextOverlap(doc *domain.Document, terms map[string]struct{}) float64 {
	if len(terms) == 0 {
		return 0
	}
	docTerms := make(map[string]struct{}, len(doc.Sectors)+len(doc.Domains)+len(doc.Keywords))
	for _, sets := range [][]string{doc.Sectors, doc.Domains, doc.Keywords} {
		for _, v := range sets {
			docTerms[foldText(v)] = struct{}{}
		}
	}
	hit := 0
	for term := range terms {
		if _, ok := docTerms[term]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(terms))
}

// excerpt cuts a snippet around the first occurrence of a query term,
// falling back to the document head.
func excerpt(content, queryText string) string {
	if content == "" {
		return ""
	}

	folded := foldText(content)
	at := -1
	for _, word := range strings.Fields(foldText(queryText)) {
		word = strings.Trim(word, `"`)
		if word == "" || word == "and" || word == "or" || word == "not" {
			continue
		}
		if i := strings.Index(folded, word); i >= 0 && (at < 0 || i < at) {
			at = i
		}
	}
	if at < 0 {
		at = 0
	}

	// Folding can shift byte offsets for accented text; the snippet
	// window is approximate, it only needs to land near the match.
	start := at - excerptLength/4
	if start < 0 {
		start = 0
	}
	end := start + excerptLength
	if end > len(content) {
		end = len(content)
	}
	for start > 0 && !utf8.RuneStart(content[start]) {
		start--
	}
	for end < len(content) && !utf8.RuneStart(content[end]) {
		end++
	}

	snippet := strings.TrimSpace(content[start:end])
	if start > 0 {
		snippet = "…" + snippet
	}
	if end < len(content) {
		snippet += "…"
	}
	return snippet
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// Ensure GraphQueryService implements the interface.
var _ driving.GraphService = (*GraphQueryService)(nil)

// GraphQueryService answers relation queries against the graph.
type GraphQueryService struct {
	graph *graph.Graph
}

// NewGraphQueryService creates the graph query facade.
func NewGraphQueryService(g *graph.Graph) *GraphQueryService {
	return &GraphQueryService{graph: g}
}

// Neighbors returns edges touching the node filtered by type and minimum
// weight.
func (s *GraphQueryService) Neighbors(ctx context.Context, nodeID string, types []domain.RelationType, minWeight float64) ([]domain.Relation, error) {
	rels, err := s.graph.Neighbors(ctx, nodeID, types...)
	if err != nil {
		return nil, err
	}
	if minWeight <= 0 {
		return rels, nil
	}
	kept := rels[:0]
	for _, rel := range rels {
		if rel.Weight >= minWeight {
			kept = append(kept, rel)
		}
	}
	return kept, nil
}

// VersionChain walks the version chain containing the document, oldest
// first.
func (s *GraphQueryService) VersionChain(ctx context.Context, docID string) ([]string, error) {
	chain, _, err := s.graph.VersionChain(ctx, docID)
	return chain, err
}
