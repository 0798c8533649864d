package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Gubeli/substans-kb/internal/adapters/driving/agent"
	"github.com/Gubeli/substans-kb/internal/logger"
)

var (
	servePort      int
	serveScheduler bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server for agent access",
	Long: `Start the Model Context Protocol server exposing the Agent Knowledge
Interface (search_knowledge, add_new_knowledge, get_relevant_sources).

By default the server communicates over stdio using JSON-RPC. Use --port
to serve streamable HTTP instead, which enables remote agents and the
MCP Inspector web UI.

Examples:
  # Stdio mode (default)
  substans-kb serve

  # HTTP mode with background source polling
  substans-kb serve --port 8080 --scheduler`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "HTTP port (0 = use stdio)")
	serveCmd.Flags().BoolVar(&serveScheduler, "scheduler", false, "run scheduled source polling in the background")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := setup(cmd.Context()); err != nil {
		return err
	}

	ports := &agent.Ports{
		Knowledge:   knowledgeService,
		Query:       queryService,
		Source:      sourceService,
		Maintenance: maintenanceService,
	}

	server, err := agent.NewServer(ports)
	if err != nil {
		return err
	}

	if serveScheduler {
		go func() {
			if err := scheduler.Start(cmd.Context()); err != nil {
				logger.Warn("scheduler stopped: %v", err)
			}
		}()
		defer scheduler.Stop() //nolint:errcheck
	}

	if servePort > 0 {
		addr := fmt.Sprintf(":%d", servePort)
		fmt.Fprintf(cmd.OutOrStdout(), "MCP server listening on http://localhost%s\n", addr)
		return server.RunHTTP(cmd.Context(), addr)
	}

	return server.Run(cmd.Context())
}
