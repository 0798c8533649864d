package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Gubeli/substans-kb/internal/core/domain"
)

var (
	ingestTitle       string
	ingestCategory    string
	ingestAuthor      string
	ingestKeywords    []string
	ingestSectors     []string
	ingestDomains     []string
	ingestDerivesFrom []string
	ingestReferences  []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Ingest documents into the knowledge base",
	Long: `Reads one or more files and ingests them as documents.
Re-ingesting identical content refreshes metadata; changed content under
the same title creates a new version linked to its predecessor.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "document title (default: file name, single file only)")
	ingestCmd.Flags().StringVar(&ingestCategory, "category", "", "category hint (CONSTRUCTION, PRODUCTION, ...)")
	ingestCmd.Flags().StringVar(&ingestAuthor, "author", "", "document author")
	ingestCmd.Flags().StringSliceVar(&ingestKeywords, "keyword", nil, "seed keyword (repeatable)")
	ingestCmd.Flags().StringSliceVar(&ingestSectors, "sector", nil, "seed sector (repeatable)")
	ingestCmd.Flags().StringSliceVar(&ingestDomains, "domain", nil, "seed domain (repeatable)")
	ingestCmd.Flags().StringSliceVar(&ingestDerivesFrom, "derives-from", nil, "id of a document this one derives from (repeatable)")
	ingestCmd.Flags().StringSliceVar(&ingestReferences, "references", nil, "id of a document this one references (repeatable)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestTitle != "" && len(args) > 1 {
		return fmt.Errorf("--title applies to a single file, got %d", len(args))
	}
	if err := setup(cmd.Context()); err != nil {
		return err
	}

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		title := ingestTitle
		if title == "" {
			title = filepath.Base(path)
		}

		receipt, err := ingestService.Ingest(cmd.Context(), domain.RawContent{
			Title:   title,
			Content: string(data),
			URI:     path,
			Hints: domain.Hints{
				Category:    domain.Category(strings.ToUpper(ingestCategory)),
				Author:      ingestAuthor,
				Keywords:    ingestKeywords,
				Sectors:     ingestSectors,
				Domains:     ingestDomains,
				DerivesFrom: ingestDerivesFrom,
				References:  ingestReferences,
				SourceType:  "manual",
				Filename:    filepath.Base(path),
				Format:      strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
			},
		})
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", path, err)
		}

		action := "ingested"
		if receipt.Refreshed {
			action = "refreshed"
		}
		cmd.Printf("%s %s: %s (version %d, %s/%s via %s)\n",
			action, title, receipt.DocID,
			receipt.Version.Position,
			receipt.Classification.Category, receipt.Classification.Subcategory,
			receipt.Classification.Strategy)
		if receipt.Classification.Ambiguous {
			cmd.Println("  classification ambiguous, flagged for review")
		}
	}
	return nil
}
