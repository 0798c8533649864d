package domain

import (
	"sort"
	"time"
)

// Category is the closed taxonomy for documents.
// New values require a schema migration; anything else is a validation error.
type Category string

const (
	// CategoryConstruction covers internal build artefacts (plans, notes).
	CategoryConstruction Category = "CONSTRUCTION"

	// CategoryProduction covers delivered outputs (reports, presentations).
	CategoryProduction Category = "PRODUCTION"

	// CategorySource covers raw ingested source material.
	CategorySource Category = "SOURCE"

	// CategoryDomainCorpus covers curated domain knowledge (market analyses).
	CategoryDomainCorpus Category = "DOMAIN_CORPUS"

	// CategoryMethodology covers frameworks and internal processes.
	CategoryMethodology Category = "METHODOLOGY"

	// CategoryIntelligence covers monitoring and weak-signal collection.
	CategoryIntelligence Category = "INTELLIGENCE"

	// CategoryUncategorized is the reserved fallback when no classification
	// strategy clears the confidence threshold. It is never a valid input
	// category; documents carrying it are flagged for review.
	CategoryUncategorized Category = "UNCATEGORIZED"
)

// Categories lists the valid input categories in stable order.
// CategoryUncategorized is excluded: it is assigned, never requested.
func Categories() []Category {
	return []Category{
		CategoryConstruction,
		CategoryProduction,
		CategorySource,
		CategoryDomainCorpus,
		CategoryMethodology,
		CategoryIntelligence,
	}
}

// Valid reports whether c is a member of the closed enum.
// CategoryUncategorized is valid as a stored value.
func (c Category) Valid() bool {
	switch c {
	case CategoryConstruction, CategoryProduction, CategorySource,
		CategoryDomainCorpus, CategoryMethodology, CategoryIntelligence,
		CategoryUncategorized:
		return true
	}
	return false
}

// Confidentiality is the document access level.
type Confidentiality string

const (
	ConfidentialityPublic       Confidentiality = "public"
	ConfidentialityInternal     Confidentiality = "internal"
	ConfidentialityConfidential Confidentiality = "confidential"
)

// Valid reports whether the confidentiality level is known.
func (c Confidentiality) Valid() bool {
	switch c {
	case ConfidentialityPublic, ConfidentialityInternal, ConfidentialityConfidential:
		return true
	}
	return false
}

// QualityScore is a single quality dimension in [0,1] with its verification
// timestamp. A nil LastVerified means the score was never verified; it is
// never substituted with a default.
type QualityScore struct {
	Value        float64
	LastVerified *time.Time
}

// Quality aggregates the three quality dimensions of a document.
type Quality struct {
	Relevance   QualityScore
	Recency     QualityScore
	Reliability QualityScore
}

// InRange reports whether every quality value lies in [0,1].
func (q Quality) InRange() bool {
	for _, s := range []QualityScore{q.Relevance, q.Recency, q.Reliability} {
		if s.Value < 0 || s.Value > 1 {
			return false
		}
	}
	return true
}

// Document is a versioned, classified unit of content with metadata.
// ID is assigned once and never changes; Checksum identifies exactly one
// content version. Content changes never mutate a Document in place, they
// produce a new Document linked through version relations.
type Document struct {
	// ID is the stable document identifier (doc_id).
	ID string

	// Checksum is the SHA-256 hex digest of Content.
	Checksum string

	// Title is the human-readable title. Documents sharing a title form a
	// logical document whose versions are chained.
	Title string

	// Category is the closed-enum taxonomy assignment.
	Category Category

	// Subcategory is an open string validated against the configured table.
	Subcategory string

	// Type is the free-form document type (rapport, note, article, ...).
	Type string

	// Content is the full raw text. Index entries are always derived from
	// it and reconstructible.
	Content string

	CreatedAt  time.Time
	ModifiedAt time.Time

	// Author is the originating author or agent.
	Author string

	// Sectors, Domains, AgentUsers and Keywords are facet sets, kept
	// sorted and deduplicated.
	Sectors    []string
	Domains    []string
	AgentUsers []string
	Keywords   []string

	Confidentiality Confidentiality
	Language        string
	Format          string

	// Size is the content length in bytes.
	Size int64

	Quality Quality

	// PendingReview marks documents whose classification did not clear the
	// confidence threshold.
	PendingReview bool

	// Tombstoned documents keep their identity for relation-integrity
	// checks but are excluded from query results.
	Tombstoned   bool
	TombstonedAt *time.Time

	// BrokenLinks lists tombstoned documents this document still refers to.
	BrokenLinks []string
}

// DocumentPatch is an administrative metadata edit. It never touches ID,
// Checksum or Content; content changes route through ingestion with version
// linkage. Nil fields are left unchanged; slice fields are merged in.
type DocumentPatch struct {
	Title           *string
	Subcategory     *string
	Type            *string
	Author          *string
	Confidentiality *Confidentiality
	Language        *string
	Quality         *Quality
	PendingReview   *bool

	// AddSectors, AddDomains, AddAgentUsers and AddKeywords are merged
	// into the corresponding facet sets.
	AddSectors    []string
	AddDomains    []string
	AddAgentUsers []string
	AddKeywords   []string
}

// FacetFilter selects documents by facet values. Filters are conjunctive
// across facet types and disjunctive within a facet's value set.
type FacetFilter struct {
	Categories    []Category
	Subcategories []string
	Sectors       []string
	Domains       []string
	AgentUsers    []string
	Keywords      []string

	// After/Before bound ModifiedAt. Zero values mean unbounded.
	After  time.Time
	Before time.Time

	// MinQuality bounds Quality.Relevance.Value from below.
	MinQuality float64

	// IncludeDeleted admits tombstoned documents.
	IncludeDeleted bool
}

// Matches reports whether doc satisfies every populated facet constraint.
func (f FacetFilter) Matches(doc *Document) bool {
	if doc.Tombstoned && !f.IncludeDeleted {
		return false
	}
	if len(f.Categories) > 0 && !containsCategory(f.Categories, doc.Category) {
		return false
	}
	if len(f.Subcategories) > 0 && !containsString(f.Subcategories, doc.Subcategory) {
		return false
	}
	if len(f.Sectors) > 0 && !intersects(doc.Sectors, f.Sectors) {
		return false
	}
	if len(f.Domains) > 0 && !intersects(doc.Domains, f.Domains) {
		return false
	}
	if len(f.AgentUsers) > 0 && !intersects(doc.AgentUsers, f.AgentUsers) {
		return false
	}
	if len(f.Keywords) > 0 && !intersects(doc.Keywords, f.Keywords) {
		return false
	}
	if !f.After.IsZero() && doc.ModifiedAt.Before(f.After) {
		return false
	}
	if !f.Before.IsZero() && doc.ModifiedAt.After(f.Before) {
		return false
	}
	if f.MinQuality > 0 && doc.Quality.Relevance.Value < f.MinQuality {
		return false
	}
	return true
}

// NormalizeSet sorts and deduplicates a facet set in place-compatible form.
func NormalizeSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// MergeSets unions two facet sets, returning a sorted deduplicated copy.
func MergeSets(a, b []string) []string {
	merged := make([]string, 0, len(a)+len(b))
	merged = append(merged, a...)
	merged = append(merged, b...)
	return NormalizeSet(merged)
}

func containsCategory(set []Category, c Category) bool {
	for _, v := range set {
		if v == c {
			return true
		}
	}
	return false
}

func containsString(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, v := range a {
		if containsString(b, v) {
			return true
		}
	}
	return false
}
