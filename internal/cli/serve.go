package cli

import (
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/serpcluster/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve runs and cache-only clustering over HTTP.

Endpoints:
  GET  /health
  GET  /metrics         Prometheus metrics
  POST /v1/runs         start a fetch-and-cluster run
  GET  /v1/runs         list runs
  GET  /v1/runs/:id     run status and report
  POST /v1/cluster      cluster from cache only`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	defaults, err := defaultOptions()
	if err != nil {
		return err
	}
	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	srv := server.New(server.Deps{
		Runs:     runManager,
		Pipeline: pipeline,
		Defaults: defaults,
		Metrics:  collector,
		Logger:   logger,
		Version:  Version,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-cmd.Context().Done():
	}

	logger.Info("shutting down server...")
	if err := srv.Shutdown(); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}
