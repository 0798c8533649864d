package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Gubeli/substans-kb/internal/core/domain"
)

var (
	searchSemantic   string
	searchCategories []string
	searchSectors    []string
	searchDomains    []string
	searchKeywords   []string
	searchTopK       int
	searchJSON       bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the knowledge base",
	Long: `Searches the knowledge base with a boolean/phrase text query.
Supports AND, OR, NOT and "exact phrases". Facet flags filter the
candidate set; with no query at all the command degenerates to a pure
facet listing.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchSemantic, "semantic", "", "natural-language semantic query")
	searchCmd.Flags().StringSliceVar(&searchCategories, "category", nil, "filter by category (repeatable)")
	searchCmd.Flags().StringSliceVar(&searchSectors, "sector", nil, "filter by sector (repeatable)")
	searchCmd.Flags().StringSliceVar(&searchDomains, "domain", nil, "filter by domain (repeatable)")
	searchCmd.Flags().StringSliceVar(&searchKeywords, "keyword", nil, "filter by keyword (repeatable)")
	searchCmd.Flags().IntVarP(&searchTopK, "top", "n", 0, "maximum number of results (0 = engine default)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if err := setup(cmd.Context()); err != nil {
		return err
	}

	spec := domain.QuerySpec{
		SemanticQuery: searchSemantic,
		TopK:          searchTopK,
		Facets: domain.FacetFilter{
			Sectors:  searchSectors,
			Domains:  searchDomains,
			Keywords: searchKeywords,
		},
	}
	if len(args) > 0 {
		spec.Text = args[0]
	}
	for _, name := range searchCategories {
		spec.Facets.Categories = append(spec.Facets.Categories,
			domain.Category(strings.ToUpper(strings.TrimSpace(name))))
	}

	results, err := queryService.Search(cmd.Context(), spec)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("marshalling results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		cmd.Printf("  [%d] %s (%.4f)\n", i+1, results[i].Title, results[i].Score)
		cmd.Printf("      %s\n", results[i].DocID)
		if results[i].Excerpt != "" {
			cmd.Printf("      %s\n", results[i].Excerpt)
		}
		cmd.Println()
	}
	return nil
}
