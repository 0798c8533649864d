package domain

import "time"

// Source represents a configured external content source.
// Each source feeds the same ingestion entry point as manual submissions.
type Source struct {
	// ID is the unique identifier for the source.
	ID string

	// Type identifies the source type (e.g., "directory", "feed").
	Type string

	// Name is the human-readable name for this source.
	Name string

	// Config contains source-specific configuration
	// (directory: path; feed: url).
	Config map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SyncState tracks polling progress and health for a source.
type SyncState struct {
	// SourceID links to the Source being polled.
	SourceID string

	// Cursor is an opaque token for incremental fetches.
	Cursor string

	// LastSync is when the last successful cycle completed.
	LastSync time.Time

	// Stale marks a source that exhausted its retry budget this cycle.
	// A stale source never blocks other ingestion work; the flag clears
	// on the next successful fetch.
	Stale bool

	// Failures counts consecutive failed cycles.
	Failures int
}

// RetryPolicy bounds retries for external source fetches.
type RetryPolicy struct {
	// MaxAttempts is the fixed attempt budget per cycle.
	MaxAttempts int

	// InitialBackoff is the first retry delay; doubles per attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the per-attempt delay.
	MaxBackoff time.Duration
}

// DefaultRetryPolicy returns the default bounded backoff parameters.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    4,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     15 * time.Second,
	}
}

// Backoff returns the delay before the given 1-based attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return p.InitialBackoff
	}
	d := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return d
}
