package domain

import "time"

// RankingWeights are the non-negative ranking weight knobs.
type RankingWeights struct {
	Lexical  float64
	Semantic float64
	Recency  float64
	Quality  float64
	Context  float64
}

// Valid reports whether every weight is non-negative.
func (w RankingWeights) Valid() bool {
	return w.Lexical >= 0 && w.Semantic >= 0 && w.Recency >= 0 &&
		w.Quality >= 0 && w.Context >= 0
}

// AgentProfile describes a requesting agent for context biasing and
// pre-filtered source listing.
type AgentProfile struct {
	// Name identifies the agent.
	Name string

	// Sectors and Domains are the agent's declared specialities.
	Sectors []string
	Domains []string
}

// MissionContext carries caller-supplied hints biasing ranking toward the
// requester's current task.
type MissionContext struct {
	Keywords []string
	Sectors  []string
}

// QuerySpec is a multi-modal retrieval request. Text and SemanticQuery are
// both optional; when both are empty the query degenerates to a pure facet
// filter with the lexical and semantic weights forced to zero.
type QuerySpec struct {
	// Text is a boolean/phrase expression (AND, OR, NOT, "exact phrase").
	Text string

	// SemanticQuery is embedded and matched by cosine similarity.
	SemanticQuery string

	// Facets filter the candidate set before ranking.
	Facets FacetFilter

	// RequestingAgent optionally biases ranking via context overlap.
	RequestingAgent *AgentProfile

	// Mission optionally biases ranking toward the current task.
	Mission *MissionContext

	// TopK bounds the result count. Zero means the configured default.
	TopK int
}

// ScoreParts breaks a result score into its weighted components so results
// are explainable.
type ScoreParts struct {
	Lexical  float64
	Semantic float64
	Recency  float64
	Quality  float64
	Context  float64
}

// QueryResult is a single ranked hit.
type QueryResult struct {
	DocID string

	// Score is the combined weighted score.
	Score float64

	// Parts are the weighted score components.
	Parts ScoreParts

	// MatchedFacets names the facet constraints the document satisfied.
	MatchedFacets []string

	// Excerpt is a short content snippet around a lexical match.
	Excerpt string

	// Title is carried for display without a second lookup.
	Title string
}

// SnapshotInfo identifies the consistent view a query was served from.
type SnapshotInfo struct {
	// ID is the monotonically increasing snapshot identifier.
	ID uint64

	// AdvancedAt is when the snapshot became visible to readers.
	AdvancedAt time.Time

	// Documents is the number of visible (non-tombstoned) documents.
	Documents int
}
