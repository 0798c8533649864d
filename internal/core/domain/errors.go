package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist, or is
	// tombstoned and the caller did not request deleted documents.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates malformed metadata or a schema violation.
	// Rejected synchronously; nothing is persisted.
	ErrValidation = errors.New("validation error")

	// ErrClassificationAmbiguous indicates no strategy cleared the
	// confidence threshold. Non-fatal: the document is persisted as
	// UNCATEGORIZED and flagged for review.
	ErrClassificationAmbiguous = errors.New("classification ambiguous")

	// ErrRelationCycle indicates a version-chain cycle was attempted.
	// The offending edge is rejected; ingestion otherwise succeeds.
	ErrRelationCycle = errors.New("relation cycle detected")

	// ErrIndexInconsistency indicates a checksum mismatch between the
	// metadata store and an index entry. Triggers background repair.
	ErrIndexInconsistency = errors.New("index inconsistency")

	// ErrSourceUnavailable indicates an external feed or directory could
	// not be fetched. Retried with backoff, then the source is marked
	// stale for the cycle.
	ErrSourceUnavailable = errors.New("external source unavailable")

	// ErrSourceStale indicates a source exhausted its retry budget and is
	// skipped until the next cycle.
	ErrSourceStale = errors.New("source marked stale")

	// ErrEngineClosed indicates the engine was shut down.
	ErrEngineClosed = errors.New("engine closed")

	// ErrRebuildCancelled indicates a maintenance rebuild was cancelled.
	// The previous snapshot remains fully valid.
	ErrRebuildCancelled = errors.New("rebuild cancelled")

	// ErrUnsupportedType indicates an unknown source or strategy type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrSyncInProgress indicates a sync is already running for a source.
	ErrSyncInProgress = errors.New("sync in progress")
)

// ValidationError wraps ErrValidation with the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

// Unwrap makes errors.Is(err, ErrValidation) succeed.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a field-level validation failure.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// RelationCycleError wraps ErrRelationCycle with the rejected edge.
type RelationCycleError struct {
	SourceID string
	TargetID string
	Type     RelationType
}

// Error implements the error interface.
func (e *RelationCycleError) Error() string {
	return fmt.Sprintf("relation cycle detected: %s -[%s]-> %s", e.SourceID, e.Type, e.TargetID)
}

// Unwrap makes errors.Is(err, ErrRelationCycle) succeed.
func (e *RelationCycleError) Unwrap() error { return ErrRelationCycle }
