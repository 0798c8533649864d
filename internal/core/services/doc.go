// Package services contains the core application logic of the knowledge
// base: ingestion, classification, querying, source polling, scheduling
// and maintenance. Services speak to the outside world exclusively
// through the port interfaces.
package services
