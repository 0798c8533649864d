package services

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Gubeli/substans-kb/internal/core/domain"
	"github.com/Gubeli/substans-kb/internal/core/ports/driven"
	"github.com/Gubeli/substans-kb/internal/logger"
)

// Classification strategy names, in chain order.
const (
	strategyHint      = "hint"
	strategyExtension = "extension"
	strategyKeyword   = "keyword"
	strategySemantic  = "semantic"
	strategyNone      = "none"
)

// Classifier assigns taxonomy categories through an ordered strategy
// chain: caller hint, filename extension, title keywords, content
// similarity against exemplars. The first strategy clearing the
// confidence threshold wins; an exhausted chain files the document
// UNCATEGORIZED and flags it for review.
type Classifier struct {
	cfg      domain.ClassificationConfig
	embedder driven.EmbeddingService

	exemplarOnce sync.Once
	exemplarVecs []exemplarVec
}

type exemplarVec struct {
	category    domain.Category
	subcategory string
	vec         []float32
}

// NewClassifier creates a classifier over the given configuration.
func NewClassifier(cfg domain.ClassificationConfig, embedder driven.EmbeddingService) *Classifier {
	return &Classifier{cfg: cfg, embedder: embedder}
}

// Classify runs the strategy chain. It always produces an assignment;
// the Ambiguous flag marks assignments that fell through to the
// UNCATEGORIZED fallback.
func (c *Classifier) Classify(ctx context.Context, content domain.RawContent) domain.Classification {
	sectors, domains := c.extractEntities(ctx, content)

	finish := func(cls domain.Classification) domain.Classification {
		cls.Sectors = sectors
		cls.Domains = domains
		return cls
	}

	if cls, ok := c.byHint(content.Hints); ok {
		return finish(cls)
	}
	best := 0.0
	if cls, ok := c.byExtension(content.Hints.Filename); ok {
		if cls.Confidence >= c.cfg.ConfidenceThreshold {
			return finish(cls)
		}
		best = math.Max(best, cls.Confidence)
	}
	if cls, ok := c.byKeyword(content.Title); ok {
		if cls.Confidence >= c.cfg.ConfidenceThreshold {
			return finish(cls)
		}
		best = math.Max(best, cls.Confidence)
	}
	if cls, ok := c.bySemantic(ctx, content.Content); ok {
		if cls.Confidence >= c.cfg.ConfidenceThreshold {
			return finish(cls)
		}
		best = math.Max(best, cls.Confidence)
	}

	logger.Debug("classification ambiguous for %q (best confidence %.2f)", content.Title, best)
	return finish(domain.Classification{
		Category:   domain.CategoryUncategorized,
		Confidence: best,
		Strategy:   strategyNone,
		Ambiguous:  true,
	})
}

// byHint short-circuits the chain on a valid caller-supplied category.
func (c *Classifier) byHint(hints domain.Hints) (domain.Classification, bool) {
	if hints.Category == "" || !hints.Category.Valid() || hints.Category == domain.CategoryUncategorized {
		return domain.Classification{}, false
	}
	sub := hints.Subcategory
	if !c.cfg.SubcategoryValid(hints.Category, sub) {
		sub = ""
	}
	return domain.Classification{
		Category:    hints.Category,
		Subcategory: sub,
		Confidence:  1.0,
		Strategy:    strategyHint,
	}, true
}

// byExtension consults the extension rule table.
func (c *Classifier) byExtension(filename string) (domain.Classification, bool) {
	if filename == "" {
		return domain.Classification{}, false
	}
	ext := strings.ToLower(filepath.Ext(filename))
	rule, ok := c.cfg.ExtensionRules[ext]
	if !ok {
		return domain.Classification{}, false
	}
	return domain.Classification{
		Category:    rule.Category,
		Subcategory: rule.Subcategory,
		Confidence:  rule.Confidence,
		Strategy:    strategyExtension,
	}, true
}

// byKeyword scans the title for configured keywords, highest confidence
// first; ties break on the keyword string so the outcome is stable.
func (c *Classifier) byKeyword(title string) (domain.Classification, bool) {
	folded := foldText(title)

	var bestKeyword string
	var bestRule domain.CategoryRule
	found := false
	for keyword, rule := range c.cfg.KeywordRules {
		if !strings.Contains(folded, foldText(keyword)) {
			continue
		}
		if !found || rule.Confidence > bestRule.Confidence ||
			(rule.Confidence == bestRule.Confidence && keyword < bestKeyword) {
			bestKeyword = keyword
			bestRule = rule
			found = true
		}
	}
	if !found {
		return domain.Classification{}, false
	}
	return domain.Classification{
		Category:    bestRule.Category,
		Subcategory: bestRule.Subcategory,
		Confidence:  bestRule.Confidence,
		Strategy:    strategyKeyword,
	}, true
}

// bySemantic compares the content embedding against the configured
// exemplars, taking the best cosine similarity as confidence.
func (c *Classifier) bySemantic(ctx context.Context, content string) (domain.Classification, bool) {
	if len(c.cfg.Exemplars) == 0 || c.embedder == nil || content == "" {
		return domain.Classification{}, false
	}

	c.exemplarOnce.Do(func() {
		for _, ex := range c.cfg.Exemplars {
			vec, err := c.embedder.Embed(ctx, ex.Text)
			if err != nil {
				logger.Warn("embedding exemplar for %s: %v", ex.Category, err)
				continue
			}
			c.exemplarVecs = append(c.exemplarVecs, exemplarVec{
				category:    ex.Category,
				subcategory: ex.Subcategory,
				vec:         vec,
			})
		}
	})
	if len(c.exemplarVecs) == 0 {
		return domain.Classification{}, false
	}

	vec, err := c.embedder.Embed(ctx, content)
	if err != nil {
		return domain.Classification{}, false
	}

	var best exemplarVec
	bestSim := -1.0
	for _, ex := range c.exemplarVecs {
		sim := cosineSimilarity(vec, ex.vec)
		if sim > bestSim {
			bestSim = sim
			best = ex
		}
	}
	if bestSim <= 0 {
		return domain.Classification{}, false
	}
	return domain.Classification{
		Category:    best.category,
		Subcategory: best.subcategory,
		Confidence:  bestSim,
		Strategy:    strategySemantic,
	}, true
}

// extractEntities scans title and content for configured sector and
// domain vocabulary, merging any hinted values. Extraction is bounded by
// the configured timeout and degrades to the hints alone, never an error.
func (c *Classifier) extractEntities(ctx context.Context, content domain.RawContent) (sectors, domains []string) {
	sectors = domain.NormalizeSet(content.Hints.Sectors)
	domains = domain.NormalizeSet(content.Hints.Domains)

	if c.cfg.EntityTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.EntityTimeout)
		defer cancel()
	}

	text := foldText(content.Title + "\n" + content.Content)

	var foundSectors, foundDomains []string
	for _, term := range c.cfg.SectorVocabulary {
		if ctx.Err() != nil {
			logger.Warn("entity extraction timed out for %q", content.Title)
			return sectors, domains
		}
		if containsWord(text, foldText(term)) {
			foundSectors = append(foundSectors, term)
		}
	}
	for _, term := range c.cfg.DomainVocabulary {
		if ctx.Err() != nil {
			logger.Warn("entity extraction timed out for %q", content.Title)
			return domain.MergeSets(sectors, foundSectors), domains
		}
		if containsWord(text, foldText(term)) {
			foundDomains = append(foundDomains, term)
		}
	}

	return domain.MergeSets(sectors, foundSectors), domain.MergeSets(domains, foundDomains)
}

// foldText lowercases and folds accents so vocabulary matching treats
// "Marché" and "marche" identically.
func foldText(s string) string {
	return accentReplacer.Replace(strings.ToLower(s))
}

var accentReplacer = strings.NewReplacer(
	"à", "a", "â", "a", "ä", "a",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"î", "i", "ï", "i",
	"ô", "o", "ö", "o",
	"ù", "u", "û", "u", "ü", "u",
	"ç", "c", "œ", "oe",
)

// containsWord reports whether term occurs in text on word boundaries,
// so "ia" does not match inside "media".
func containsWord(text, term string) bool {
	for start := 0; ; {
		i := strings.Index(text[start:], term)
		if i < 0 {
			return false
		}
		i += start
		before := i == 0 || !isWordRune(text[i-1])
		end := i + len(term)
		after := end >= len(text) || !isWordRune(text[end])
		if before && after {
			return true
		}
		start = i + 1
	}
}

func isWordRune(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

// cosineSimilarity computes the cosine of two vectors, clamped to [0,1].
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if cos < 0 {
		return 0
	}
	if cos > 1 {
		return 1
	}
	return cos
}
