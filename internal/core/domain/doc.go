// Package domain defines the core business entities for the substans
// knowledge base.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: A versioned, classified unit of content with metadata
//   - Relation: A directed, typed edge between documents or concepts
//   - QuerySpec: A multi-modal retrieval request
//   - Classification: The outcome of the strategy chain
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
