// Package agent exposes the knowledge base to agent processes over MCP
// (Model Context Protocol). The tools map one-to-one onto the Agent
// Knowledge Interface; everything else in the engine stays behind it.
package agent

import "errors"

// ErrMissingKnowledgeService is returned when the knowledge service is not provided.
var ErrMissingKnowledgeService = errors.New("agent: knowledge service is required")
