// Package cli wires the knowledge base into a cobra command tree.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Gubeli/substans-kb/internal/adapters/driven/config/file"
	"github.com/Gubeli/substans-kb/internal/adapters/driven/embedding/hash"
	"github.com/Gubeli/substans-kb/internal/adapters/driven/storage/sqlite"
	"github.com/Gubeli/substans-kb/internal/adapters/sources"
	"github.com/Gubeli/substans-kb/internal/core/domain"
	"github.com/Gubeli/substans-kb/internal/core/services"
	"github.com/Gubeli/substans-kb/internal/graph"
	"github.com/Gubeli/substans-kb/internal/index/lexical"
	"github.com/Gubeli/substans-kb/internal/index/vector"
	"github.com/Gubeli/substans-kb/internal/logger"
)

// version is the CLI version, overridable at build time with -ldflags.
var version = "0.1.0"

var (
	verbose   bool
	dataDir   string
	configDir string
)

// Package-level services, populated by setup before a command runs.
var (
	store              *sqlite.Store
	engineCfg          domain.EngineConfig
	ingestService      *services.IngestService
	queryService       *services.QueryService
	graphService       *services.GraphQueryService
	knowledgeService   *services.KnowledgeService
	sourceService      *services.SourceService
	maintenanceService *services.MaintenanceService
	scheduler          *services.Scheduler
)

var rootCmd = &cobra.Command{
	Use:   "substans-kb",
	Short: "Knowledge base for consulting agents",
	Long: `substans-kb manages a versioned, classified, indexed knowledge base.
Documents are ingested from files, directories and feeds, classified into
a fixed taxonomy, linked into a relation graph and served to agents
through search, MCP tools and this CLI.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default ~/.substans-kb/data)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "config directory (default ~/.substans-kb)")
}

// setup builds the engine once for commands that need it. Commands like
// version run without touching storage.
func setup(ctx context.Context) error {
	if store != nil {
		return nil
	}

	configStore, err := file.NewConfigStore(configDir)
	if err != nil {
		return fmt.Errorf("opening config: %w", err)
	}
	cfg, err := configStore.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	engineCfg = cfg

	s, err := sqlite.NewStore(dataDir)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	embedder := hash.New(cfg.Index.EmbeddingDimensions)
	lexIndex := lexical.NewPersistent(s.LexicalIndexStore())
	vecIndex := vector.NewPersistent(cfg.Index.EmbeddingDimensions, s.VectorIndexStore())

	g := graph.New(s.RelationStore(), cfg.Graph)
	if err := g.Load(ctx); err != nil {
		s.Close()
		return fmt.Errorf("loading relation graph: %w", err)
	}

	snapshots := services.NewSnapshotManager(s.MetadataStore(), s.SnapshotStore())
	if err := snapshots.Load(ctx); err != nil {
		s.Close()
		return fmt.Errorf("loading snapshot state: %w", err)
	}

	classifier := services.NewClassifier(cfg.Classification, embedder)
	ingest := services.NewIngestService(s.MetadataStore(), lexIndex, vecIndex, embedder, g, classifier, snapshots, cfg)
	query := services.NewQueryService(lexIndex, vecIndex, embedder, snapshots, cfg.Query)
	maintenance := services.NewMaintenanceService(
		s.MetadataStore(), lexIndex, vecIndex, embedder, g, snapshots,
		s.SourceStore(), s.SyncStateStore(),
	)
	// Inconsistent index entries found during queries are repaired in the
	// background, detached from the query's lifetime.
	query.SetRepairFunc(func(docID string) {
		if err := maintenance.Repair(context.Background(), docID); err != nil {
			logger.Warn("repairing %s: %v", docID, err)
		}
	})

	srcService := services.NewSourceService(
		s.SourceStore(), s.SyncStateStore(), sources.NewFactory(),
		ingest, s.MetadataStore(), cfg.Ingest.Retry,
	)

	// Index state is persisted alongside metadata; load it instead of
	// re-embedding the corpus on every start.
	if err := lexIndex.Load(ctx); err != nil {
		s.Close()
		return fmt.Errorf("loading lexical index: %w", err)
	}
	if err := vecIndex.Load(ctx); err != nil {
		s.Close()
		return fmt.Errorf("loading vector index: %w", err)
	}
	// A database written before index state was persisted has documents
	// but no stored postings; rebuild once to backfill.
	if lexIndex.Docs() == 0 && snapshots.Current().VisibleCount() > 0 {
		if err := maintenance.Rebuild(ctx); err != nil {
			s.Close()
			return fmt.Errorf("rebuilding indexes: %w", err)
		}
	}

	store = s
	ingestService = ingest
	queryService = query
	graphService = services.NewGraphQueryService(g)
	knowledgeService = services.NewKnowledgeService(ingest, query, snapshots)
	sourceService = srcService
	maintenanceService = maintenance
	scheduler = services.NewScheduler(cfg.Scheduler, s.SchedulerStore(), srcService)

	return nil
}

// teardown releases engine resources after a command finishes.
func teardown() {
	if store != nil {
		store.Close()
		store = nil
	}
}

// Execute runs the command tree.
func Execute(ctx context.Context) error {
	defer teardown()
	return rootCmd.ExecuteContext(ctx)
}
