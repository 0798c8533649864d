package agent

import (
	"github.com/Gubeli/substans-kb/internal/core/ports/driving"
)

// Ports aggregates the driving port interfaces the MCP server is wired to.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Knowledge is the Agent Knowledge Interface backing the tools.
	Knowledge driving.KnowledgeService

	// Query backs the document resources.
	Query driving.QueryService

	// Source backs the source listing resource.
	Source driving.SourceService

	// Maintenance backs the engine status resource.
	Maintenance driving.MaintenanceService
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Knowledge == nil {
		return ErrMissingKnowledgeService
	}
	// Query, Source and Maintenance only back resources and are optional.
	return nil
}
