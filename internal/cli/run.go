package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/serpcluster/internal/client"
	"github.com/raphaelgruber/serpcluster/internal/service"
)

var (
	runFlags  requestFlags
	runServer string
)

var runCmd = &cobra.Command{
	Use:   "run [keywords...]",
	Short: "Fetch search results and cluster keywords",
	Long: `Fetch the top organic results for every keyword (reusing the cache per
the cache policy), attach keyword metrics and cluster the keywords.

With --server the run is started on a serpcluster server and followed
from here; Ctrl+C detaches and leaves it running.

Examples:
  serpcluster run "running shoes" "best running shoes" "trail shoes"
  serpcluster run -f keywords.csv --algorithm strict --min 4
  serpcluster run -f keywords.txt --cache fresh-within:30 -o json
  serpcluster run -f keywords.csv --server http://localhost:8484`,
	RunE: runRun,
}

func init() {
	runFlags.register(runCmd.Flags(), true)
	runCmd.Flags().StringVar(&runServer, "server", "", "start the run on this server instead of locally")
}

func runRun(cmd *cobra.Command, args []string) error {
	req, err := runFlags.request(args)
	if err != nil {
		return err
	}
	if len(req.Keywords) == 0 {
		return service.ErrNoKeywords
	}

	if runServer != "" {
		return runOnServer(cmd.Context(), client.New(runServer), req)
	}

	defaults, err := defaultOptions()
	if err != nil {
		return err
	}
	opts, err := req.Options(defaults)
	if err != nil {
		return err
	}

	run, err := runManager.Start(req.Keywords, opts)
	if err != nil {
		return err
	}

	source := func(context.Context) (*service.RunSnapshot, error) {
		r, err := runManager.Get(run.ID)
		if err != nil {
			return nil, err
		}
		snap := r.Snapshot()
		return &snap, nil
	}

	snap := run.Snapshot()
	final, err := followRun(cmd.Context(), source, &snap, false)
	if err != nil {
		return err
	}
	return printReport(os.Stdout, outputFormat, final.Report)
}

func runOnServer(ctx context.Context, c *client.Client, req service.RunRequest) error {
	started, err := c.StartRun(ctx, req)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}

	source := func(ctx context.Context) (*service.RunSnapshot, error) {
		return c.GetRun(ctx, started.ID)
	}

	final, err := followRun(ctx, source, started, true)
	if errors.Is(err, errInterrupted) {
		return nil
	}
	if err != nil {
		return err
	}
	return printReport(os.Stdout, outputFormat, final.Report)
}
