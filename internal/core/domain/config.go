package domain

import (
	"strings"
	"time"
)

// CategoryRule maps a trigger (extension or title keyword) to a taxonomy
// assignment with a fixed confidence.
type CategoryRule struct {
	Category    Category
	Subcategory string
	Confidence  float64
}

// Exemplar is a labeled text used by the semantic classification strategy.
type Exemplar struct {
	Category    Category
	Subcategory string
	Text        string
}

// ClassificationConfig drives the classifier strategy chain.
type ClassificationConfig struct {
	// ConfidenceThreshold is the minimum confidence a strategy must reach
	// to win. Below it the chain continues; when exhausted the document is
	// filed UNCATEGORIZED and flagged pending_review.
	ConfidenceThreshold float64

	// ExtensionRules maps lowercase file extensions (".md") to assignments.
	ExtensionRules map[string]CategoryRule

	// KeywordRules maps lowercase title keywords to assignments.
	KeywordRules map[string]CategoryRule

	// Exemplars feed the content-semantic strategy.
	Exemplars []Exemplar

	// Subcategories validates subcategory values per category. An empty
	// list for a category accepts any subcategory.
	Subcategories map[Category][]string

	// EntityTimeout bounds entity extraction per document.
	EntityTimeout time.Duration

	// SectorVocabulary and DomainVocabulary drive entity extraction.
	SectorVocabulary []string
	DomainVocabulary []string
}

// GraphConfig drives relation inference.
type GraphConfig struct {
	// SimilarityThreshold is the minimum embedding cosine similarity for
	// an inferred complement edge.
	SimilarityThreshold float64

	// MaxInferredPerDoc bounds inferred edges added per ingestion.
	MaxInferredPerDoc int

	// CycleWalkLimit bounds the DFS executed on version-edge insertion.
	CycleWalkLimit int
}

// QueryConfig drives the query engine.
type QueryConfig struct {
	Weights RankingWeights

	// DefaultTopK applies when QuerySpec.TopK is zero.
	DefaultTopK int

	// RecencyHalfLife parameterises the exponential recency decay.
	RecencyHalfLife time.Duration
}

// IngestConfig drives the ingestion pipeline.
type IngestConfig struct {
	// Workers is the ingestion pool size for batch processing.
	Workers int

	// Retry bounds external source fetch retries.
	Retry RetryPolicy
}

// IndexConfig drives the indexer.
type IndexConfig struct {
	// EmbeddingDimensions is the vector size; must match the embedder.
	EmbeddingDimensions int
}

// EngineConfig aggregates the externally supplied configuration surface.
// It is injected at construction; nothing reads ambient global state.
type EngineConfig struct {
	Classification ClassificationConfig
	Graph          GraphConfig
	Query          QueryConfig
	Ingest         IngestConfig
	Index          IndexConfig
	Scheduler      SchedulerConfig
}

// Validate rejects configurations the engine cannot run with.
func (c *EngineConfig) Validate() error {
	if c.Classification.ConfidenceThreshold < 0 || c.Classification.ConfidenceThreshold > 1 {
		return NewValidationError("classification.confidence_threshold", "must be in [0,1]")
	}
	if !c.Query.Weights.Valid() {
		return NewValidationError("query.weights", "must be non-negative")
	}
	for ext, rule := range c.Classification.ExtensionRules {
		if !strings.HasPrefix(ext, ".") {
			return NewValidationError("classification.extension_rules", "extension must start with '.'")
		}
		if !rule.Category.Valid() || rule.Category == CategoryUncategorized {
			return NewValidationError("classification.extension_rules", "invalid category "+string(rule.Category))
		}
	}
	for _, rule := range c.Classification.KeywordRules {
		if !rule.Category.Valid() || rule.Category == CategoryUncategorized {
			return NewValidationError("classification.keyword_rules", "invalid category "+string(rule.Category))
		}
	}
	if c.Graph.SimilarityThreshold < 0 || c.Graph.SimilarityThreshold > 1 {
		return NewValidationError("graph.similarity_threshold", "must be in [0,1]")
	}
	if c.Index.EmbeddingDimensions <= 0 {
		return NewValidationError("index.embedding_dimensions", "must be positive")
	}
	if c.Ingest.Workers <= 0 {
		return NewValidationError("ingest.workers", "must be positive")
	}
	return nil
}

// SubcategoryValid reports whether sub is acceptable for cat under the
// configured table. Unlisted categories accept any subcategory.
func (c *ClassificationConfig) SubcategoryValid(cat Category, sub string) bool {
	allowed, ok := c.Subcategories[cat]
	if !ok || len(allowed) == 0 {
		return true
	}
	return containsString(allowed, sub)
}

// DefaultEngineConfig returns the full default configuration. The rule
// tables mirror the consulting corpus taxonomy the engine was built for.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Classification: ClassificationConfig{
			ConfidenceThreshold: 0.60,
			ExtensionRules: map[string]CategoryRule{
				// Generic text extensions say nothing about content; their
				// confidence sits below the threshold so title keywords and
				// exemplar similarity decide. Format-specific extensions
				// clear it on their own.
				".md":   {Category: CategorySource, Subcategory: "notes", Confidence: 0.55},
				".txt":  {Category: CategorySource, Subcategory: "notes", Confidence: 0.52},
				".pdf":  {Category: CategoryProduction, Subcategory: "rapports", Confidence: 0.70},
				".pptx": {Category: CategoryProduction, Subcategory: "presentations", Confidence: 0.72},
				".csv":  {Category: CategorySource, Subcategory: "donnees", Confidence: 0.70},
				".json": {Category: CategorySource, Subcategory: "donnees", Confidence: 0.68},
			},
			KeywordRules: map[string]CategoryRule{
				"gpu":          {Category: CategoryDomainCorpus, Subcategory: "analyses_marche", Confidence: 0.80},
				"marché":       {Category: CategoryDomainCorpus, Subcategory: "analyses_marche", Confidence: 0.78},
				"marche":       {Category: CategoryDomainCorpus, Subcategory: "analyses_marche", Confidence: 0.78},
				"semiconduct":  {Category: CategoryDomainCorpus, Subcategory: "analyses_marche", Confidence: 0.76},
				"veille":       {Category: CategoryIntelligence, Subcategory: "veille", Confidence: 0.80},
				"signaux":      {Category: CategoryIntelligence, Subcategory: "signaux", Confidence: 0.75},
				"méthodologie": {Category: CategoryMethodology, Subcategory: "frameworks", Confidence: 0.78},
				"methodologie": {Category: CategoryMethodology, Subcategory: "frameworks", Confidence: 0.78},
				"rapport":      {Category: CategoryProduction, Subcategory: "rapports", Confidence: 0.72},
				"livrable":     {Category: CategoryProduction, Subcategory: "livrables", Confidence: 0.74},
				"architecture": {Category: CategoryConstruction, Subcategory: "architecture", Confidence: 0.74},
				"plan":         {Category: CategoryConstruction, Subcategory: "plans", Confidence: 0.68},
			},
			Subcategories: map[Category][]string{
				CategoryDomainCorpus: {"analyses_marche", "veille_technologique", "rapports_sectoriels"},
				CategoryProduction:   {"rapports", "livrables", "presentations"},
				CategorySource:       {"notes", "articles", "etudes", "donnees"},
				CategoryConstruction: {"architecture", "plans", "notes_internes"},
				CategoryMethodology:  {"frameworks", "processus"},
				CategoryIntelligence: {"veille", "signaux"},
			},
			EntityTimeout: 5 * time.Second,
			SectorVocabulary: []string{
				"cloud", "semiconducteurs", "energie", "defense", "banque",
				"assurance", "sante", "telecoms", "automobile", "aerospatial",
			},
			DomainVocabulary: []string{
				"ia", "gpu", "llm", "cybersecurite", "quantique", "blockchain",
				"edge", "robotique", "data",
			},
		},
		Graph: GraphConfig{
			SimilarityThreshold: 0.82,
			MaxInferredPerDoc:   5,
			CycleWalkLimit:      10_000,
		},
		Query: QueryConfig{
			Weights: RankingWeights{
				Lexical:  0.35,
				Semantic: 0.30,
				Recency:  0.15,
				Quality:  0.10,
				Context:  0.10,
			},
			DefaultTopK:     10,
			RecencyHalfLife: 90 * 24 * time.Hour,
		},
		Ingest: IngestConfig{
			Workers: 4,
			Retry:   DefaultRetryPolicy(),
		},
		Index: IndexConfig{
			EmbeddingDimensions: 256,
		},
		Scheduler: DefaultSchedulerConfig(),
	}
}
