package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [source-id]",
	Short: "Watch a source for real-time changes",
	Long: `Starts real-time watching for a source that supports it (directory
sources). Changed files are ingested as they appear; deletions tombstone
the corresponding documents. Blocks until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := setup(cmd.Context()); err != nil {
		return err
	}

	cmd.Printf("Watching source %s (ctrl-c to stop)...\n", args[0])
	if err := sourceService.Watch(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("watching source: %w", err)
	}
	return nil
}
