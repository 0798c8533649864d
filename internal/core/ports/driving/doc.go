// Package driving provides interfaces for application entry points
// (primary/inbound ports): the agent knowledge interface, ingestion,
// querying, source management and maintenance.
package driving
