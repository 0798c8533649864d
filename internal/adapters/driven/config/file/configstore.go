// Package file is the TOML-backed configuration store. Settings absent
// from the file fall back to the built-in defaults, so a missing or empty
// file yields a fully usable engine configuration.
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/Gubeli/substans-kb/internal/core/domain"
	"github.com/Gubeli/substans-kb/internal/core/ports/driven"
)

// Ensure ConfigStore implements the interface.
var _ driven.ConfigStore = (*ConfigStore)(nil)

// ConfigStore is a file-based implementation of driven.ConfigStore using TOML.
type ConfigStore struct {
	mu       sync.Mutex
	filePath string
}

// NewConfigStore creates a new TOML-based config store.
// If configDir is empty, defaults to ~/.substans-kb/config.toml.
func NewConfigStore(configDir string) (*ConfigStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".substans-kb")
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, err
	}

	return &ConfigStore{
		filePath: filepath.Join(configDir, "config.toml"),
	}, nil
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.filePath
}

// Load reads configuration from disk, applying defaults for anything
// unset. A missing file yields the defaults unchanged.
func (s *ConfigStore) Load() (domain.EngineConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := domain.DefaultEngineConfig()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	fc.applyTo(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Save persists the configuration.
func (s *ConfigStore) Save(cfg domain.EngineConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := toml.Marshal(fromEngineConfig(cfg))
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	return os.WriteFile(s.filePath, data, 0600)
}

// fileConfig is the TOML schema. Pointer scalars distinguish "unset" from
// zero; durations are stored as seconds.
type fileConfig struct {
	Classification classificationSection `toml:"classification"`
	Graph          graphSection          `toml:"graph"`
	Query          querySection          `toml:"query"`
	Ingest         ingestSection         `toml:"ingest"`
	Index          indexSection          `toml:"index"`
	Scheduler      schedulerSection      `toml:"scheduler"`
}

type ruleEntry struct {
	Category    string  `toml:"category"`
	Subcategory string  `toml:"subcategory"`
	Confidence  float64 `toml:"confidence"`
}

type exemplarEntry struct {
	Category    string `toml:"category"`
	Subcategory string `toml:"subcategory"`
	Text        string `toml:"text"`
}

type classificationSection struct {
	ConfidenceThreshold  *float64             `toml:"confidence_threshold"`
	ExtensionRules       map[string]ruleEntry `toml:"extension_rules"`
	KeywordRules         map[string]ruleEntry `toml:"keyword_rules"`
	Exemplars            []exemplarEntry      `toml:"exemplars"`
	Subcategories        map[string][]string  `toml:"subcategories"`
	EntityTimeoutSeconds *int                 `toml:"entity_timeout_seconds"`
	SectorVocabulary     []string             `toml:"sector_vocabulary"`
	DomainVocabulary     []string             `toml:"domain_vocabulary"`
}

type graphSection struct {
	SimilarityThreshold *float64 `toml:"similarity_threshold"`
	MaxInferredPerDoc   *int     `toml:"max_inferred_per_doc"`
	CycleWalkLimit      *int     `toml:"cycle_walk_limit"`
}

type querySection struct {
	WeightLexical       *float64 `toml:"weight_lexical"`
	WeightSemantic      *float64 `toml:"weight_semantic"`
	WeightRecency       *float64 `toml:"weight_recency"`
	WeightQuality       *float64 `toml:"weight_quality"`
	WeightContext       *float64 `toml:"weight_context"`
	DefaultTopK         *int     `toml:"default_top_k"`
	RecencyHalfLifeDays *int     `toml:"recency_half_life_days"`
}

type ingestSection struct {
	Workers             *int `toml:"workers"`
	RetryMaxAttempts    *int `toml:"retry_max_attempts"`
	RetryInitialMillis  *int `toml:"retry_initial_backoff_ms"`
	RetryMaxBackoffSecs *int `toml:"retry_max_backoff_seconds"`
}

type indexSection struct {
	EmbeddingDimensions *int `toml:"embedding_dimensions"`
}

type taskSection struct {
	Enabled         *bool `toml:"enabled"`
	IntervalMinutes *int  `toml:"interval_minutes"`
}

type schedulerSection struct {
	Enabled *bool                  `toml:"enabled"`
	Tasks   map[string]taskSection `toml:"tasks"`
}

// applyTo overlays the file values on a default configuration.
func (fc *fileConfig) applyTo(cfg *domain.EngineConfig) {
	c := fc.Classification
	if c.ConfidenceThreshold != nil {
		cfg.Classification.ConfidenceThreshold = *c.ConfidenceThreshold
	}
	if len(c.ExtensionRules) > 0 {
		cfg.Classification.ExtensionRules = toRules(c.ExtensionRules)
	}
	if len(c.KeywordRules) > 0 {
		cfg.Classification.KeywordRules = toRules(c.KeywordRules)
	}
	if len(c.Exemplars) > 0 {
		exemplars := make([]domain.Exemplar, 0, len(c.Exemplars))
		for _, e := range c.Exemplars {
			exemplars = append(exemplars, domain.Exemplar{
				Category:    domain.Category(e.Category),
				Subcategory: e.Subcategory,
				Text:        e.Text,
			})
		}
		cfg.Classification.Exemplars = exemplars
	}
	if len(c.Subcategories) > 0 {
		subs := make(map[domain.Category][]string, len(c.Subcategories))
		for cat, values := range c.Subcategories {
			subs[domain.Category(cat)] = values
		}
		cfg.Classification.Subcategories = subs
	}
	if c.EntityTimeoutSeconds != nil {
		cfg.Classification.EntityTimeout = time.Duration(*c.EntityTimeoutSeconds) * time.Second
	}
	if len(c.SectorVocabulary) > 0 {
		cfg.Classification.SectorVocabulary = c.SectorVocabulary
	}
	if len(c.DomainVocabulary) > 0 {
		cfg.Classification.DomainVocabulary = c.DomainVocabulary
	}

	g := fc.Graph
	if g.SimilarityThreshold != nil {
		cfg.Graph.SimilarityThreshold = *g.SimilarityThreshold
	}
	if g.MaxInferredPerDoc != nil {
		cfg.Graph.MaxInferredPerDoc = *g.MaxInferredPerDoc
	}
	if g.CycleWalkLimit != nil {
		cfg.Graph.CycleWalkLimit = *g.CycleWalkLimit
	}

	q := fc.Query
	if q.WeightLexical != nil {
		cfg.Query.Weights.Lexical = *q.WeightLexical
	}
	if q.WeightSemantic != nil {
		cfg.Query.Weights.Semantic = *q.WeightSemantic
	}
	if q.WeightRecency != nil {
		cfg.Query.Weights.Recency = *q.WeightRecency
	}
	if q.WeightQuality != nil {
		cfg.Query.Weights.Quality = *q.WeightQuality
	}
	if q.WeightContext != nil {
		cfg.Query.Weights.Context = *q.WeightContext
	}
	if q.DefaultTopK != nil {
		cfg.Query.DefaultTopK = *q.DefaultTopK
	}
	if q.RecencyHalfLifeDays != nil {
		cfg.Query.RecencyHalfLife = time.Duration(*q.RecencyHalfLifeDays) * 24 * time.Hour
	}

	i := fc.Ingest
	if i.Workers != nil {
		cfg.Ingest.Workers = *i.Workers
	}
	if i.RetryMaxAttempts != nil {
		cfg.Ingest.Retry.MaxAttempts = *i.RetryMaxAttempts
	}
	if i.RetryInitialMillis != nil {
		cfg.Ingest.Retry.InitialBackoff = time.Duration(*i.RetryInitialMillis) * time.Millisecond
	}
	if i.RetryMaxBackoffSecs != nil {
		cfg.Ingest.Retry.MaxBackoff = time.Duration(*i.RetryMaxBackoffSecs) * time.Second
	}

	if fc.Index.EmbeddingDimensions != nil {
		cfg.Index.EmbeddingDimensions = *fc.Index.EmbeddingDimensions
	}

	sc := fc.Scheduler
	if sc.Enabled != nil {
		cfg.Scheduler.Enabled = *sc.Enabled
	}
	for id, task := range sc.Tasks {
		tc := cfg.Scheduler.TaskConfigs[id]
		if task.Enabled != nil {
			tc.Enabled = *task.Enabled
		}
		if task.IntervalMinutes != nil {
			tc.Interval = time.Duration(*task.IntervalMinutes) * time.Minute
		}
		if cfg.Scheduler.TaskConfigs == nil {
			cfg.Scheduler.TaskConfigs = make(map[string]domain.TaskConfig)
		}
		cfg.Scheduler.TaskConfigs[id] = tc
	}
}

func toRules(entries map[string]ruleEntry) map[string]domain.CategoryRule {
	rules := make(map[string]domain.CategoryRule, len(entries))
	for key, e := range entries {
		rules[key] = domain.CategoryRule{
			Category:    domain.Category(e.Category),
			Subcategory: e.Subcategory,
			Confidence:  e.Confidence,
		}
	}
	return rules
}

// fromEngineConfig produces the full file representation of a config.
func fromEngineConfig(cfg domain.EngineConfig) fileConfig {
	threshold := cfg.Classification.ConfidenceThreshold
	entityTimeout := int(cfg.Classification.EntityTimeout.Seconds())
	similarity := cfg.Graph.SimilarityThreshold
	maxInferred := cfg.Graph.MaxInferredPerDoc
	walkLimit := cfg.Graph.CycleWalkLimit
	wLex := cfg.Query.Weights.Lexical
	wSem := cfg.Query.Weights.Semantic
	wRec := cfg.Query.Weights.Recency
	wQual := cfg.Query.Weights.Quality
	wCtx := cfg.Query.Weights.Context
	topK := cfg.Query.DefaultTopK
	halfLife := int(cfg.Query.RecencyHalfLife.Hours() / 24)
	workers := cfg.Ingest.Workers
	retryAttempts := cfg.Ingest.Retry.MaxAttempts
	retryInitial := int(cfg.Ingest.Retry.InitialBackoff.Milliseconds())
	retryMax := int(cfg.Ingest.Retry.MaxBackoff.Seconds())
	dims := cfg.Index.EmbeddingDimensions
	schedEnabled := cfg.Scheduler.Enabled

	fc := fileConfig{
		Classification: classificationSection{
			ConfidenceThreshold:  &threshold,
			ExtensionRules:       fromRules(cfg.Classification.ExtensionRules),
			KeywordRules:         fromRules(cfg.Classification.KeywordRules),
			EntityTimeoutSeconds: &entityTimeout,
			SectorVocabulary:     cfg.Classification.SectorVocabulary,
			DomainVocabulary:     cfg.Classification.DomainVocabulary,
		},
		Graph: graphSection{
			SimilarityThreshold: &similarity,
			MaxInferredPerDoc:   &maxInferred,
			CycleWalkLimit:      &walkLimit,
		},
		Query: querySection{
			WeightLexical:       &wLex,
			WeightSemantic:      &wSem,
			WeightRecency:       &wRec,
			WeightQuality:       &wQual,
			WeightContext:       &wCtx,
			DefaultTopK:         &topK,
			RecencyHalfLifeDays: &halfLife,
		},
		Ingest: ingestSection{
			Workers:             &workers,
			RetryMaxAttempts:    &retryAttempts,
			RetryInitialMillis:  &retryInitial,
			RetryMaxBackoffSecs: &retryMax,
		},
		Index: indexSection{
			EmbeddingDimensions: &dims,
		},
		Scheduler: schedulerSection{
			Enabled: &schedEnabled,
			Tasks:   make(map[string]taskSection),
		},
	}

	for _, e := range cfg.Classification.Exemplars {
		fc.Classification.Exemplars = append(fc.Classification.Exemplars, exemplarEntry{
			Category:    string(e.Category),
			Subcategory: e.Subcategory,
			Text:        e.Text,
		})
	}
	if len(cfg.Classification.Subcategories) > 0 {
		fc.Classification.Subcategories = make(map[string][]string, len(cfg.Classification.Subcategories))
		for cat, values := range cfg.Classification.Subcategories {
			fc.Classification.Subcategories[string(cat)] = values
		}
	}
	for id, tc := range cfg.Scheduler.TaskConfigs {
		enabled := tc.Enabled
		minutes := int(tc.Interval.Minutes())
		fc.Scheduler.Tasks[id] = taskSection{Enabled: &enabled, IntervalMinutes: &minutes}
	}
	return fc
}

func fromRules(rules map[string]domain.CategoryRule) map[string]ruleEntry {
	entries := make(map[string]ruleEntry, len(rules))
	for key, r := range rules {
		entries[key] = ruleEntry{
			Category:    string(r.Category),
			Subcategory: r.Subcategory,
			Confidence:  r.Confidence,
		}
	}
	return entries
}
