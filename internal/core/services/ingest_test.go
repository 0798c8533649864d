package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gubeli/substans-kb/internal/core/domain"
	"github.com/Gubeli/substans-kb/internal/logger"
)

func TestIngestAssignsIdentityAndClassifies(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	content := "La demande de GPU explose, portée par les data centers et le cloud."
	receipt, err := e.ingest.Ingest(ctx, rawContent("Analyse marché GPU", content, domain.Hints{}))
	require.NoError(t, err)

	assert.NotEmpty(t, receipt.DocID)
	assert.False(t, receipt.Refreshed)
	assert.Equal(t, 1, receipt.Version.Position)
	assert.Empty(t, receipt.Version.PreviousID)
	assert.Equal(t, domain.CategoryDomainCorpus, receipt.Classification.Category)
	assert.Equal(t, "keyword", receipt.Classification.Strategy)

	doc, err := e.query.Get(ctx, receipt.DocID, false)
	require.NoError(t, err)
	assert.Equal(t, Checksum(content), doc.Checksum)
	assert.Equal(t, domain.ConfidentialityInternal, doc.Confidentiality)
	assert.Equal(t, int64(len(content)), doc.Size)
	assert.Contains(t, doc.Sectors, "cloud")
	assert.Contains(t, doc.Domains, "gpu")
	assert.False(t, doc.PendingReview)
}

func TestIngestIdenticalContentRefreshes(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	first, err := e.ingest.Ingest(ctx,
		rawContent("Veille fournisseurs", "Synthèse des annonces fournisseurs.", domain.Hints{}))
	require.NoError(t, err)

	second, err := e.ingest.Ingest(ctx,
		rawContent("Veille fournisseurs", "Synthèse des annonces fournisseurs.", domain.Hints{
			Keywords: []string{"nvidia"},
		}))
	require.NoError(t, err)

	assert.True(t, second.Refreshed)
	assert.Equal(t, first.DocID, second.DocID)
	assert.Equal(t, "unchanged", second.Classification.Strategy)
	assert.Equal(t, 1, second.Version.Position)

	doc, err := e.query.Get(ctx, first.DocID, false)
	require.NoError(t, err)
	assert.Contains(t, doc.Keywords, "nvidia")
}

func TestIngestNewContentCreatesVersion(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	v1, err := e.ingest.Ingest(ctx,
		rawContent("Veille IA", "Premier état des lieux.", domain.Hints{}))
	require.NoError(t, err)

	v2, err := e.ingest.Ingest(ctx,
		rawContent("Veille IA", "État des lieux révisé après annonce.", domain.Hints{}))
	require.NoError(t, err)

	assert.NotEqual(t, v1.DocID, v2.DocID)
	assert.Equal(t, 2, v2.Version.Position)
	assert.Equal(t, v1.DocID, v2.Version.PreviousID)

	chain, _, err := e.graph.VersionChain(ctx, v1.DocID)
	require.NoError(t, err)
	assert.Equal(t, []string{v1.DocID, v2.DocID}, chain)

	// Both versions remain retrievable; the chain preserves history.
	for _, id := range chain {
		_, err := e.query.Get(ctx, id, false)
		assert.NoError(t, err)
	}
}

func TestIngestRejectsInvalidPayloads(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.ingest.Ingest(ctx, rawContent("", "contenu", domain.Hints{}))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = e.ingest.Ingest(ctx, rawContent("Titre", "", domain.Hints{}))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = e.ingest.Ingest(ctx, rawContent("Titre", "contenu", domain.Hints{
		Confidentiality: "secret",
	}))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestIngestLinksConceptRelations(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	receipt, err := e.ingest.Ingest(ctx,
		rawContent("Note cloud", "Le cloud transforme la banque.", domain.Hints{}))
	require.NoError(t, err)

	rels, err := e.graph.Neighbors(ctx, receipt.DocID, domain.RelationReference)
	require.NoError(t, err)

	targets := make([]string, 0, len(rels))
	for _, rel := range rels {
		targets = append(targets, rel.TargetID)
	}
	assert.Contains(t, targets, domain.ConceptID("cloud"))
	assert.Contains(t, targets, domain.ConceptID("banque"))
}

func TestIngestLinksExplicitRelationHints(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	base, err := e.ingest.Ingest(ctx,
		rawContent("Étude de base", "contenu initial de l'étude", domain.Hints{}))
	require.NoError(t, err)
	cited, err := e.ingest.Ingest(ctx,
		rawContent("Source citée", "contenu de la source", domain.Hints{}))
	require.NoError(t, err)

	receipt, err := e.ingest.Ingest(ctx,
		rawContent("Synthèse dérivée", "synthèse construite sur l'étude", domain.Hints{
			DerivesFrom: []string{base.DocID},
			References:  []string{cited.DocID, "doc-inconnu"},
		}))
	require.NoError(t, err)

	derives, err := e.graph.Neighbors(ctx, receipt.DocID, domain.RelationDerive)
	require.NoError(t, err)
	require.Len(t, derives, 1)
	assert.Equal(t, base.DocID, derives[0].TargetID)
	assert.Equal(t, 1.0, derives[0].Weight)
	assert.False(t, derives[0].Inferred)

	refs, err := e.graph.Neighbors(ctx, receipt.DocID, domain.RelationReference)
	require.NoError(t, err)
	targets := make([]string, 0, len(refs))
	for _, rel := range refs {
		targets = append(targets, rel.TargetID)
	}
	assert.Contains(t, targets, cited.DocID)
	// Unknown targets are skipped, never fatal.
	assert.NotContains(t, targets, "doc-inconnu")
}

func TestIngestAmbiguousClassificationLogsWarning(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(os.Stderr)

	receipt, err := e.ingest.Ingest(ctx,
		rawContent("Divers", "texte sans aucun signal", domain.Hints{}))
	require.NoError(t, err)

	assert.True(t, receipt.Classification.Ambiguous)
	assert.Equal(t, domain.CategoryUncategorized, receipt.Classification.Category)
	assert.Contains(t, buf.String(), "classification ambiguous")
}

func TestIngestInfersComplementRelations(t *testing.T) {
	cfg := domain.DefaultEngineConfig()
	cfg.Index.EmbeddingDimensions = 64
	cfg.Graph.SimilarityThreshold = 0.2
	e := newTestEngineWith(t, cfg)
	ctx := context.Background()

	base := strings.Repeat("analyse detaillee du marche des accelerateurs graphiques et de la demande ", 4)

	a, err := e.ingest.Ingest(ctx, rawContent("Analyse T1", base+"premier trimestre", domain.Hints{}))
	require.NoError(t, err)
	b, err := e.ingest.Ingest(ctx, rawContent("Analyse T2", base+"second trimestre", domain.Hints{}))
	require.NoError(t, err)

	rels, err := e.graph.Neighbors(ctx, b.DocID, domain.RelationComplement)
	require.NoError(t, err)
	require.NotEmpty(t, rels)
	assert.Equal(t, a.DocID, rels[0].TargetID)
	assert.True(t, rels[0].Inferred)
	assert.GreaterOrEqual(t, rels[0].Weight, cfg.Graph.SimilarityThreshold)
}

func TestIngestBatchReportsPerItemFailures(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	contents := []domain.RawContent{
		rawContent("Doc un", "premier contenu", domain.Hints{}),
		rawContent("Doc deux", "", domain.Hints{}),
		rawContent("Doc trois", "troisième contenu", domain.Hints{}),
	}

	report, err := e.ingest.IngestBatch(ctx, contents)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Failed)
	assert.NoError(t, report.Errors[0])
	assert.ErrorIs(t, report.Errors[1], domain.ErrValidation)
	assert.Nil(t, report.Receipts[1])
	require.NotNil(t, report.Receipts[2])
}

func TestIngestBatchConcurrentSameTitle(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	contents := make([]domain.RawContent, 6)
	for i := range contents {
		contents[i] = rawContent("Rapport mensuel",
			fmt.Sprintf("Édition numéro %d du rapport.", i), domain.Hints{})
	}

	report, err := e.ingest.IngestBatch(ctx, contents)
	require.NoError(t, err)
	assert.Equal(t, 6, report.Processed)
	assert.Zero(t, report.Failed)

	// Per-title serialisation yields one well-formed chain of 6 versions.
	chain, _, err := e.graph.VersionChain(ctx, report.Receipts[0].DocID)
	require.NoError(t, err)
	assert.Len(t, chain, 6)
}

func TestTombstonePreservesIdentityAndFlagsReferences(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	target, err := e.ingest.Ingest(ctx, rawContent("Étude citée", "contenu de référence", domain.Hints{}))
	require.NoError(t, err)
	citing, err := e.ingest.Ingest(ctx, rawContent("Rapport final", "synthèse citant l'étude", domain.Hints{}))
	require.NoError(t, err)

	require.NoError(t, e.graph.AddRelation(ctx, domain.Relation{
		SourceID:  citing.DocID,
		TargetID:  target.DocID,
		Type:      domain.RelationReference,
		Weight:    0.9,
		CreatedAt: time.Now().UTC(),
	}))

	require.NoError(t, e.ingest.Tombstone(ctx, target.DocID))

	_, err = e.query.Get(ctx, target.DocID, false)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	deleted, err := e.query.Get(ctx, target.DocID, true)
	require.NoError(t, err)
	assert.True(t, deleted.Tombstoned)
	assert.Equal(t, target.DocID, deleted.ID)

	ref, err := e.query.Get(ctx, citing.DocID, false)
	require.NoError(t, err)
	assert.Contains(t, ref.BrokenLinks, target.DocID)

	rels, err := e.graph.Neighbors(ctx, citing.DocID, domain.RelationReference)
	require.NoError(t, err)
	var edge *domain.Relation
	for i := range rels {
		if rels[i].TargetID == target.DocID {
			edge = &rels[i]
		}
	}
	require.NotNil(t, edge)
	assert.True(t, edge.BrokenLink)

	// A second tombstone of the same document is an error.
	assert.ErrorIs(t, e.ingest.Tombstone(ctx, target.DocID), domain.ErrNotFound)
}

func TestUpdateMetadataValidatesAndRepublishes(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	receipt, err := e.ingest.Ingest(ctx,
		rawContent("Note interne", "contenu de la note", domain.Hints{}))
	require.NoError(t, err)

	_, err = e.ingest.UpdateMetadata(ctx, receipt.DocID, domain.DocumentPatch{
		Quality: &domain.Quality{Relevance: domain.QualityScore{Value: 1.5}},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	newTitle := "Rapport consolidé"
	updated, err := e.ingest.UpdateMetadata(ctx, receipt.DocID, domain.DocumentPatch{
		Title:       &newTitle,
		AddKeywords: []string{"h100"},
	})
	require.NoError(t, err)
	assert.Equal(t, newTitle, updated.Title)
	assert.Contains(t, updated.Keywords, "h100")
	assert.Equal(t, Checksum("contenu de la note"), updated.Checksum)

	// The snapshot sees the patch and the new title is searchable.
	doc, err := e.query.Get(ctx, receipt.DocID, false)
	require.NoError(t, err)
	assert.Equal(t, newTitle, doc.Title)

	results, err := e.query.Search(ctx, domain.QuerySpec{Text: "consolidé"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, receipt.DocID, results[0].DocID)
}

func TestUpdateMetadataTitleChangeFollowsInSemanticSearch(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	receipt, err := e.ingest.Ingest(ctx,
		rawContent("Note interne", "contenu de la note", domain.Hints{}))
	require.NoError(t, err)

	newTitle := "Calcul quantique distribué"
	updated, err := e.ingest.UpdateMetadata(ctx, receipt.DocID, domain.DocumentPatch{
		Title: &newTitle,
	})
	require.NoError(t, err)
	assert.Equal(t, Checksum("contenu de la note"), updated.Checksum)

	// Embeddings cover title and content together, so a title edit must
	// refresh the vector or semantic search keeps the old wording.
	results, err := e.query.Search(ctx, domain.QuerySpec{SemanticQuery: newTitle})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, receipt.DocID, results[0].DocID)
	assert.Positive(t, results[0].Parts.Semantic)
}
