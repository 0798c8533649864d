// Package driven provides interfaces for infrastructure adapters
// (secondary/outbound ports): storage, indexes, embeddings, sources
// and configuration.
package driven
