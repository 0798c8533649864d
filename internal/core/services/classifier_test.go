package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Gubeli/substans-kb/internal/adapters/driven/embedding/hash"
	"github.com/Gubeli/substans-kb/internal/core/domain"
)

func newTestClassifier() *Classifier {
	cfg := domain.DefaultEngineConfig().Classification
	return NewClassifier(cfg, hash.New(64))
}

func TestClassifyHintShortCircuits(t *testing.T) {
	c := newTestClassifier()

	cls := c.Classify(context.Background(), rawContent("Plan projet", "contenu", domain.Hints{
		Category:    domain.CategoryProduction,
		Subcategory: "rapports",
		Filename:    "plan.md", // would classify differently; hint wins
	}))

	assert.Equal(t, domain.CategoryProduction, cls.Category)
	assert.Equal(t, "rapports", cls.Subcategory)
	assert.Equal(t, "hint", cls.Strategy)
	assert.Equal(t, 1.0, cls.Confidence)
	assert.False(t, cls.Ambiguous)
}

func TestClassifyHintClearsInvalidSubcategory(t *testing.T) {
	c := newTestClassifier()

	cls := c.Classify(context.Background(), rawContent("Plan projet", "contenu", domain.Hints{
		Category:    domain.CategoryProduction,
		Subcategory: "inexistante",
	}))

	assert.Equal(t, domain.CategoryProduction, cls.Category)
	assert.Empty(t, cls.Subcategory)
	assert.Equal(t, "hint", cls.Strategy)
}

func TestClassifyUncategorizedHintIsIgnored(t *testing.T) {
	c := newTestClassifier()

	cls := c.Classify(context.Background(), rawContent("Sans indice", "contenu quelconque", domain.Hints{
		Category: domain.CategoryUncategorized,
	}))

	assert.Equal(t, domain.CategoryUncategorized, cls.Category)
	assert.Equal(t, "none", cls.Strategy)
	assert.True(t, cls.Ambiguous)
}

func TestClassifyByExtension(t *testing.T) {
	c := newTestClassifier()

	cls := c.Classify(context.Background(), rawContent("Notes de cadrage", "contenu", domain.Hints{
		Filename: "cadrage.PDF",
	}))

	assert.Equal(t, domain.CategoryProduction, cls.Category)
	assert.Equal(t, "rapports", cls.Subcategory)
	assert.Equal(t, "extension", cls.Strategy)
	assert.InDelta(t, 0.70, cls.Confidence, 1e-9)
}

func TestClassifyKeywordOutranksGenericTextExtension(t *testing.T) {
	c := newTestClassifier()

	// A .md extension carries no content signal; the title keyword rule
	// must decide, not the extension rule.
	cls := c.Classify(context.Background(), rawContent("Analyse du Marché GPU Cloud",
		"Le marché des GPU pour le cloud se tend.", domain.Hints{
			Filename: "analyse-marche-gpu-cloud.md",
		}))

	assert.Equal(t, domain.CategoryDomainCorpus, cls.Category)
	assert.Equal(t, "analyses_marche", cls.Subcategory)
	assert.Equal(t, "keyword", cls.Strategy)
	assert.InDelta(t, 0.80, cls.Confidence, 1e-9)
}

func TestClassifyByTitleKeyword(t *testing.T) {
	c := newTestClassifier()

	cls := c.Classify(context.Background(),
		rawContent("Analyse marché GPU 2026", "La demande explose.", domain.Hints{}))

	// Both "marché" and "gpu" match; the higher-confidence rule wins.
	assert.Equal(t, domain.CategoryDomainCorpus, cls.Category)
	assert.Equal(t, "analyses_marche", cls.Subcategory)
	assert.Equal(t, "keyword", cls.Strategy)
	assert.InDelta(t, 0.80, cls.Confidence, 1e-9)
}

func TestClassifyKeywordTieBreaksOnKeyword(t *testing.T) {
	cfg := domain.DefaultEngineConfig().Classification
	cfg.KeywordRules = map[string]domain.CategoryRule{
		"benchmark": {Category: domain.CategorySource, Subcategory: "etudes", Confidence: 0.7},
		"audit":     {Category: domain.CategoryProduction, Subcategory: "rapports", Confidence: 0.7},
	}
	c := NewClassifier(cfg, hash.New(64))

	cls := c.Classify(context.Background(),
		rawContent("Benchmark et audit interne", "contenu", domain.Hints{}))

	// Equal confidence: the lexicographically smallest keyword decides.
	assert.Equal(t, domain.CategoryProduction, cls.Category)
	assert.Equal(t, "keyword", cls.Strategy)
}

func TestClassifyBySemanticExemplar(t *testing.T) {
	cfg := domain.DefaultEngineConfig().Classification
	cfg.Exemplars = []domain.Exemplar{
		{
			Category:    domain.CategoryMethodology,
			Subcategory: "frameworks",
			Text:        "framework de travail et processus interne de cadrage",
		},
	}
	c := NewClassifier(cfg, hash.New(64))

	cls := c.Classify(context.Background(), rawContent("Document quelconque",
		"framework de travail et processus interne de cadrage", domain.Hints{}))

	assert.Equal(t, domain.CategoryMethodology, cls.Category)
	assert.Equal(t, "frameworks", cls.Subcategory)
	assert.Equal(t, "semantic", cls.Strategy)
	assert.InDelta(t, 1.0, cls.Confidence, 1e-6)
}

func TestClassifyFallsBackToUncategorized(t *testing.T) {
	c := newTestClassifier()

	cls := c.Classify(context.Background(),
		rawContent("Divers", "texte sans aucun signal", domain.Hints{}))

	assert.Equal(t, domain.CategoryUncategorized, cls.Category)
	assert.Equal(t, "none", cls.Strategy)
	assert.True(t, cls.Ambiguous)
}

func TestClassifyBelowThresholdKeepsBestConfidence(t *testing.T) {
	cfg := domain.DefaultEngineConfig().Classification
	cfg.ConfidenceThreshold = 0.95
	c := NewClassifier(cfg, hash.New(64))

	cls := c.Classify(context.Background(),
		rawContent("Analyse marché GPU", "contenu", domain.Hints{}))

	assert.Equal(t, domain.CategoryUncategorized, cls.Category)
	assert.True(t, cls.Ambiguous)
	assert.InDelta(t, 0.80, cls.Confidence, 1e-9)
}

func TestExtractEntitiesFromContent(t *testing.T) {
	c := newTestClassifier()

	cls := c.Classify(context.Background(), rawContent("Étude",
		"Étude du marché cloud et des GPU pour l'IA, données des data centers.",
		domain.Hints{Sectors: []string{"energie"}}))

	assert.Equal(t, []string{"cloud", "energie"}, cls.Sectors)
	assert.Contains(t, cls.Domains, "gpu")
	assert.Contains(t, cls.Domains, "ia")
	assert.Contains(t, cls.Domains, "data")
}

func TestContainsWordRespectsBoundaries(t *testing.T) {
	assert.True(t, containsWord("l'ia en entreprise", "ia"))
	assert.True(t, containsWord("ia", "ia"))
	assert.False(t, containsWord("la media locale", "ia"))
	assert.False(t, containsWord("diagramme", "ia"))
}

func TestFoldTextNormalisesAccents(t *testing.T) {
	assert.Equal(t, "marche", foldText("Marché"))
	assert.Equal(t, "methodologie cadree", foldText("Méthodologie Cadrée"))
	assert.Equal(t, "coeur", foldText("cœur"))
}

func TestExtractEntitiesDegradesOnTimeout(t *testing.T) {
	cfg := domain.DefaultEngineConfig().Classification
	cfg.EntityTimeout = time.Nanosecond
	c := NewClassifier(cfg, hash.New(64))

	cls := c.Classify(context.Background(), rawContent("Étude", "cloud gpu", domain.Hints{
		Sectors: []string{"banque"},
	}))

	// Hinted values survive even when the vocabulary scan never completes.
	assert.Contains(t, cls.Sectors, "banque")
}
