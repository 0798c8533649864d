package domain

import "time"

// RelationType labels a directed edge in the relation graph.
type RelationType string

const (
	// RelationReference links a document to material it cites.
	RelationReference RelationType = "reference"

	// RelationDerive links a document to the material it was derived from.
	RelationDerive RelationType = "derive"

	// RelationComplement links documents covering the same subject.
	RelationComplement RelationType = "complement"

	// RelationContradiction links documents taking opposing positions.
	// Never inferred without a stance signal; explicit metadata only.
	RelationContradiction RelationType = "contradiction"

	// RelationVersionPrev points from a version to its predecessor.
	RelationVersionPrev RelationType = "version_prev"

	// RelationVersionNext points from a version to its successor.
	RelationVersionNext RelationType = "version_next"
)

// Valid reports whether the relation type is known.
func (t RelationType) Valid() bool {
	switch t {
	case RelationReference, RelationDerive, RelationComplement,
		RelationContradiction, RelationVersionPrev, RelationVersionNext:
		return true
	}
	return false
}

// IsVersion reports whether the type participates in version chains.
// Version edges are subject to the acyclicity check.
func (t RelationType) IsVersion() bool {
	return t == RelationVersionPrev || t == RelationVersionNext
}

// Relation is a directed, typed, weighted edge between two nodes. Node ids
// are document ids or synthetic concept ids (see ConceptID).
type Relation struct {
	SourceID string
	TargetID string
	Type     RelationType

	// Weight is the edge strength in [0,1].
	Weight float64

	// Inferred marks edges derived from embedding similarity rather than
	// explicit metadata.
	Inferred bool

	// BrokenLink marks an edge whose target was tombstoned. The edge is
	// preserved on the referencing side rather than deleted.
	BrokenLink bool

	CreatedAt time.Time

	// Metadata carries optional edge annotations.
	Metadata map[string]string
}

// ConceptID builds the synthetic node id for an extracted entity.
// Concept nodes share the relation graph namespace with documents.
func ConceptID(entity string) string {
	return "concept:" + entity
}

// IsConceptID reports whether a node id names a synthetic concept node.
func IsConceptID(id string) bool {
	return len(id) > 8 && id[:8] == "concept:"
}

// VersionInfo describes where a document sits in its version chain.
type VersionInfo struct {
	// PreviousID is the predecessor version, empty for the first version.
	PreviousID string

	// Position is the 1-based position in the chain.
	Position int
}
