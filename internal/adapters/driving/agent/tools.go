package agent

import (
	"context"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Gubeli/substans-kb/internal/core/domain"
)

// SearchInput is the input schema for the search_knowledge tool.
type SearchInput struct {
	Query         string   `json:"query,omitempty" jsonschema:"boolean/phrase text query (AND, OR, NOT, quoted phrases)"`
	SemanticQuery string   `json:"semantic_query,omitempty" jsonschema:"natural-language query matched by semantic similarity"`
	Categories    []string `json:"categories,omitempty" jsonschema:"restrict results to these taxonomy categories"`
	Sectors       []string `json:"sectors,omitempty" jsonschema:"restrict results to these sectors"`
	Domains       []string `json:"domains,omitempty" jsonschema:"restrict results to these domains"`
	Keywords      []string `json:"keywords,omitempty" jsonschema:"restrict results to documents carrying these keywords"`
	TopK          int      `json:"top_k,omitempty" jsonschema:"maximum number of results to return (default from engine config)"`

	AgentName    string   `json:"agent_name,omitempty" jsonschema:"requesting agent name, enables context biasing"`
	AgentSectors []string `json:"agent_sectors,omitempty" jsonschema:"requesting agent sector specialities"`
	AgentDomains []string `json:"agent_domains,omitempty" jsonschema:"requesting agent domain specialities"`

	MissionKeywords []string `json:"mission_keywords,omitempty" jsonschema:"keywords of the current mission, bias ranking toward the task"`
	MissionSectors  []string `json:"mission_sectors,omitempty" jsonschema:"sectors of the current mission"`
}

// SearchOutput is the output schema for the search_knowledge tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput represents a single search result.
type SearchResultOutput struct {
	DocID         string   `json:"doc_id"`
	Title         string   `json:"title"`
	Score         float64  `json:"score"`
	Excerpt       string   `json:"excerpt,omitempty"`
	MatchedFacets []string `json:"matched_facets,omitempty"`
}

// AddInput is the input schema for the add_new_knowledge tool.
type AddInput struct {
	Title           string   `json:"title" jsonschema:"logical document title, versions are chained by title"`
	Content         string   `json:"content" jsonschema:"the raw text content"`
	Category        string   `json:"category,omitempty" jsonschema:"taxonomy category hint, short-circuits classification when valid"`
	Subcategory     string   `json:"subcategory,omitempty" jsonschema:"subcategory hint, applied with the category hint"`
	Type            string   `json:"type,omitempty" jsonschema:"free-form document type (rapport, note, article)"`
	Author          string   `json:"author,omitempty" jsonschema:"originating author or agent"`
	Language        string   `json:"language,omitempty" jsonschema:"content language code"`
	Confidentiality string   `json:"confidentiality,omitempty" jsonschema:"access level (public, internal, confidential)"`
	Keywords        []string `json:"keywords,omitempty" jsonschema:"seed keywords"`
	Sectors         []string `json:"sectors,omitempty" jsonschema:"seed sectors for entity extraction"`
	Domains         []string `json:"domains,omitempty" jsonschema:"seed domains for entity extraction"`
	DerivesFrom     []string `json:"derives_from,omitempty" jsonschema:"ids of documents this one derives from, linked with derive edges"`
	References      []string `json:"references,omitempty" jsonschema:"ids of documents this one references, linked with reference edges"`
}

// AddOutput is the output schema for the add_new_knowledge tool.
type AddOutput struct {
	DocID           string  `json:"doc_id"`
	VersionPosition int     `json:"version_position"`
	PreviousVersion string  `json:"previous_version,omitempty"`
	Refreshed       bool    `json:"refreshed"`
	Category        string  `json:"category"`
	Subcategory     string  `json:"subcategory,omitempty"`
	Strategy        string  `json:"strategy"`
	Confidence      float64 `json:"confidence"`
	PendingReview   bool    `json:"pending_review"`
}

// RelevantSourcesInput is the input schema for the get_relevant_sources tool.
type RelevantSourcesInput struct {
	AgentName string   `json:"agent_name,omitempty" jsonschema:"requesting agent name"`
	Sectors   []string `json:"sectors,omitempty" jsonschema:"agent sector specialities to filter by"`
	Domains   []string `json:"domains,omitempty" jsonschema:"agent domain specialities to filter by"`
}

// RelevantSourcesOutput is the output schema for the get_relevant_sources tool.
type RelevantSourcesOutput struct {
	Documents []RelevantDocOutput `json:"documents"`
	Count     int                 `json:"count"`
}

// RelevantDocOutput summarises one document for source discovery.
type RelevantDocOutput struct {
	DocID      string   `json:"doc_id"`
	Title      string   `json:"title"`
	Category   string   `json:"category"`
	Sectors    []string `json:"sectors,omitempty"`
	Domains    []string `json:"domains,omitempty"`
	ModifiedAt string   `json:"modified_at"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_knowledge",
		Description: "Search the knowledge base by text, semantic similarity and facets",
	}, s.handleSearchKnowledge)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "add_new_knowledge",
		Description: "Ingest a new document into the knowledge base",
	}, s.handleAddNewKnowledge)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_relevant_sources",
		Description: "List documents matching an agent's declared specialities",
	}, s.handleGetRelevantSources)
}

// handleSearchKnowledge handles the search_knowledge tool invocation.
func (s *Server) handleSearchKnowledge(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	spec := domain.QuerySpec{
		Text:          input.Query,
		SemanticQuery: input.SemanticQuery,
		TopK:          input.TopK,
		Facets: domain.FacetFilter{
			Categories: toCategories(input.Categories),
			Sectors:    input.Sectors,
			Domains:    input.Domains,
			Keywords:   input.Keywords,
		},
	}
	if input.AgentName != "" || len(input.AgentSectors) > 0 || len(input.AgentDomains) > 0 {
		spec.RequestingAgent = &domain.AgentProfile{
			Name:    input.AgentName,
			Sectors: input.AgentSectors,
			Domains: input.AgentDomains,
		}
	}
	if len(input.MissionKeywords) > 0 || len(input.MissionSectors) > 0 {
		spec.Mission = &domain.MissionContext{
			Keywords: input.MissionKeywords,
			Sectors:  input.MissionSectors,
		}
	}

	results, err := s.ports.Knowledge.SearchKnowledge(ctx, spec)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(results)),
		Count:   len(results),
	}
	for i := range results {
		output.Results[i] = SearchResultOutput{
			DocID:         results[i].DocID,
			Title:         results[i].Title,
			Score:         results[i].Score,
			Excerpt:       results[i].Excerpt,
			MatchedFacets: results[i].MatchedFacets,
		}
	}

	return nil, output, nil
}

// handleAddNewKnowledge handles the add_new_knowledge tool invocation.
func (s *Server) handleAddNewKnowledge(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AddInput,
) (*mcp.CallToolResult, AddOutput, error) {
	content := domain.RawContent{
		Title:   input.Title,
		Content: input.Content,
		Hints: domain.Hints{
			Category:        domain.Category(strings.ToUpper(input.Category)),
			Subcategory:     input.Subcategory,
			Type:            input.Type,
			Author:          input.Author,
			Language:        input.Language,
			Confidentiality: domain.Confidentiality(strings.ToLower(input.Confidentiality)),
			Keywords:        input.Keywords,
			Sectors:         input.Sectors,
			Domains:         input.Domains,
			DerivesFrom:     input.DerivesFrom,
			References:      input.References,
			SourceType:      "agent",
		},
	}

	receipt, err := s.ports.Knowledge.AddNewKnowledge(ctx, content)
	if err != nil {
		return nil, AddOutput{}, err
	}

	return nil, AddOutput{
		DocID:           receipt.DocID,
		VersionPosition: receipt.Version.Position,
		PreviousVersion: receipt.Version.PreviousID,
		Refreshed:       receipt.Refreshed,
		Category:        string(receipt.Classification.Category),
		Subcategory:     receipt.Classification.Subcategory,
		Strategy:        receipt.Classification.Strategy,
		Confidence:      receipt.Classification.Confidence,
		PendingReview:   receipt.Classification.Ambiguous,
	}, nil
}

// handleGetRelevantSources handles the get_relevant_sources tool invocation.
func (s *Server) handleGetRelevantSources(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RelevantSourcesInput,
) (*mcp.CallToolResult, RelevantSourcesOutput, error) {
	profile := domain.AgentProfile{
		Name:    input.AgentName,
		Sectors: input.Sectors,
		Domains: input.Domains,
	}

	docs, err := s.ports.Knowledge.GetRelevantSources(ctx, profile)
	if err != nil {
		return nil, RelevantSourcesOutput{}, err
	}

	output := RelevantSourcesOutput{
		Documents: make([]RelevantDocOutput, len(docs)),
		Count:     len(docs),
	}
	for i := range docs {
		output.Documents[i] = RelevantDocOutput{
			DocID:      docs[i].ID,
			Title:      docs[i].Title,
			Category:   string(docs[i].Category),
			Sectors:    docs[i].Sectors,
			Domains:    docs[i].Domains,
			ModifiedAt: docs[i].ModifiedAt.UTC().Format(time.RFC3339),
		}
	}

	return nil, output, nil
}

func toCategories(names []string) []domain.Category {
	if len(names) == 0 {
		return nil
	}
	categories := make([]domain.Category, 0, len(names))
	for _, name := range names {
		categories = append(categories, domain.Category(strings.ToUpper(strings.TrimSpace(name))))
	}
	return categories
}
