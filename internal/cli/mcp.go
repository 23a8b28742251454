package cli

import (
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/serpcluster/internal/tools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve clustering tools over MCP on stdio",
	Long: `Run a Model Context Protocol server on stdin/stdout exposing
cluster_keywords, start_run, get_run, list_runs and cache_lookup.

Logs go to stderr and the log file, never stdout.`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	defaults, err := defaultOptions()
	if err != nil {
		return err
	}

	server := tools.NewServer(Version, &tools.Dependencies{
		Runs:     runManager,
		Pipeline: pipeline,
		Store:    store,
		Defaults: defaults,
		Logger:   logger,
	})

	ctx := cmd.Context()
	if err := tools.Serve(ctx, server, logger); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("mcp shutdown complete")
	return nil
}
