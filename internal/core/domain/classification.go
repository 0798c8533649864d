package domain

// Hints carries optional caller-supplied classification hints.
type Hints struct {
	// Category short-circuits the strategy chain when valid.
	Category Category

	// Subcategory is applied when Category is hinted.
	Subcategory string

	// SourceType identifies the producing source (manual, directory, feed).
	SourceType string

	// Filename drives the extension rule table.
	Filename string

	// Format is the declared content format (md, pdf, html, ...).
	Format string

	// Author, Language and Keywords seed the corresponding metadata.
	Author   string
	Language string
	Keywords []string

	// Sectors and Domains seed entity extraction.
	Sectors []string
	Domains []string

	// Confidentiality defaults to internal when empty.
	Confidentiality Confidentiality

	// AgentUsers lists agents expected to consume the document.
	AgentUsers []string

	// DerivesFrom and References declare explicit relation targets by
	// document id: a derive respectively reference edge is added from
	// this document to each target. Unknown targets are skipped.
	DerivesFrom []string
	References  []string

	// Type is the free-form document type.
	Type string
}

// Classification is the outcome of the strategy chain.
type Classification struct {
	Category    Category
	Subcategory string

	// Confidence is the winning strategy's confidence in [0,1].
	Confidence float64

	// Strategy names the strategy that produced the assignment.
	Strategy string

	// Ambiguous is set when no strategy cleared the threshold and the
	// reserved UNCATEGORIZED value was assigned.
	Ambiguous bool

	// Sectors and Domains are the extracted entities. Extraction failure
	// yields empty sets, never an error.
	Sectors []string
	Domains []string
}

// RawContent is an ingestion payload before classification.
// Manual submissions, directory events and feed items all produce this.
type RawContent struct {
	// Content is the raw text.
	Content string

	// Hints are the optional classification hints.
	Hints Hints

	// Title is the logical document title. Required.
	Title string

	// SourceID links to the registered source, empty for manual ingestion.
	SourceID string

	// URI is the original location (file path, feed URL), informational.
	URI string
}

// ChangeType is the kind of change reported by a watching source.
type ChangeType int

const (
	// ChangeCreated indicates new content.
	ChangeCreated ChangeType = iota

	// ChangeUpdated indicates modified content.
	ChangeUpdated

	// ChangeDeleted indicates removed content.
	ChangeDeleted
)

// ContentChange is a change event emitted by a watching source.
type ContentChange struct {
	Type    ChangeType
	Content RawContent
}
