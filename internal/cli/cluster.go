package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/serpcluster/internal/service"
)

var clusterFlags requestFlags

var clusterCmd = &cobra.Command{
	Use:   "cluster [keywords...]",
	Short: "Cluster keywords using cached data only",
	Long: `Cluster keywords from the local cache without calling the API.
Keywords with no cached results are listed and left out.

The always-fetch policy is treated as use-forever here.

Examples:
  serpcluster cluster -f keywords.csv
  serpcluster cluster -f keywords.csv --algorithm default --min 2 -o yaml`,
	RunE: runCluster,
}

func init() {
	clusterFlags.register(clusterCmd.Flags(), true)
}

func runCluster(cmd *cobra.Command, args []string) error {
	req, err := clusterFlags.request(args)
	if err != nil {
		return err
	}
	if len(req.Keywords) == 0 {
		return service.ErrNoKeywords
	}

	defaults, err := defaultOptions()
	if err != nil {
		return err
	}
	opts, err := req.Options(defaults)
	if err != nil {
		return err
	}

	report, err := pipeline.ClusterCached(cmd.Context(), req.Keywords, opts)
	if err != nil {
		return err
	}
	return printReport(os.Stdout, outputFormat, report)
}
