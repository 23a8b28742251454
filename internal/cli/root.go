// Package cli provides the command-line interface for serpcluster.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/serpcluster/internal/cache"
	"github.com/raphaelgruber/serpcluster/internal/cluster"
	"github.com/raphaelgruber/serpcluster/internal/config"
	"github.com/raphaelgruber/serpcluster/internal/fetch"
	"github.com/raphaelgruber/serpcluster/internal/metrics"
	"github.com/raphaelgruber/serpcluster/internal/remote"
	"github.com/raphaelgruber/serpcluster/internal/service"
)

// annotationRemote marks commands that only talk to a running server.
const annotationRemote = "remote"

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose      bool
	outputFormat string

	// Initialized in PersistentPreRunE
	cfg        *config.Config
	logger     *slog.Logger
	closeLog   func() error
	collector  *metrics.Collector
	store      cache.Store
	fetcher    *fetch.Orchestrator
	pipeline   *service.Pipeline
	runManager *service.RunManager
)

var rootCmd = &cobra.Command{
	Use:   "serpcluster",
	Short: "Group keywords by shared search results",
	Long: `serpcluster fetches the top organic results for each keyword, caches them,
and groups keywords whose result pages overlap into clusters.

Credentials are read from DATAFORSEO_LOGIN and DATAFORSEO_PASSWORD. Without
them only cache-only commands work.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		if err := checkFormat(outputFormat); err != nil {
			return err
		}
		if isRemote(cmd) {
			var err error
			cfg, err = config.Load()
			return err
		}
		return setup(cmd.Context(), cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		teardown()
	},
}

// isRemote reports whether cmd talks to a server instead of the local cache.
func isRemote(cmd *cobra.Command) bool {
	if cmd.Annotations[annotationRemote] != "" {
		return true
	}
	f := cmd.Flags().Lookup("server")
	return f != nil && f.Changed
}

// longRunning commands log at the configured level on stderr.
func longRunning(cmd *cobra.Command) bool {
	return cmd == serveCmd || cmd == mcpCmd
}

func setup(ctx context.Context, cmd *cobra.Command) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return err
	}

	level := cfg.LogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	stderrLevel := level
	if !verbose && !longRunning(cmd) {
		stderrLevel = max(level, slog.LevelWarn)
	}
	logger, closeLog = config.SetupSplitLogger(cfg.Log.File, stderrLevel, level)
	slog.SetDefault(logger)

	collector = metrics.NewCollector()

	backend, err := cache.Open(ctx, cfg.CacheOptions())
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	store = cache.Instrument(backend, collector)

	if cfg.HasCredentials() {
		rc := cfg.RemoteConfig()
		rc.Metrics = collector
		rc.Logger = logger
		api := remote.New(rc)

		opts := cfg.FetchOptions()
		opts.Logger = logger
		opts.Metrics = collector
		fetcher = fetch.New(store, api, api, opts)
	} else {
		logger.Debug("no API credentials, remote fetching disabled")
	}

	pipeline = service.NewPipeline(fetcher, store, cluster.NewEngine(logger, collector), logger)
	runManager = service.NewRunManager(pipeline, collector)
	return nil
}

func teardown() {
	if runManager != nil {
		runManager.Close()
	}
	if store != nil {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close cache: %v\n", err)
		}
	}
	if closeLog != nil {
		_ = closeLog()
	}
}

// defaultOptions returns pipeline options from config.
func defaultOptions() (service.PipelineOptions, error) {
	opts := service.DefaultPipelineOptions()

	sc, err := cfg.SearchContext()
	if err != nil {
		return opts, err
	}
	policy, err := cfg.CachePolicy()
	if err != nil {
		return opts, err
	}
	cc, err := cfg.ClusterDefaults()
	if err != nil {
		return opts, err
	}

	opts.Context = sc
	opts.Policy = policy
	opts.Cluster = cc
	return opts, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", formatTable, "output format: table, json or yaml")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(versionCmd)
}
