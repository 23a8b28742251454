package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/serpcluster/internal/client"
	"github.com/raphaelgruber/serpcluster/internal/service"
)

var runsServer string

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List or inspect runs on a server",
	Long: `List all runs on a serpcluster server or inspect one by ID.

Examples:
  serpcluster runs           # List all runs
  serpcluster runs abc123    # Show run abc123 and its clusters`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{annotationRemote: "true"},
	RunE:        runRuns,
}

func init() {
	runsCmd.Flags().StringVar(&runsServer, "server", "", "server URL (default from config)")
}

func runRuns(cmd *cobra.Command, args []string) error {
	url := runsServer
	if url == "" {
		url = cfg.Server.URL
	}
	c := client.New(url)

	if len(args) == 1 {
		run, err := c.GetRun(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("get run: %w", err)
		}
		return showRun(run)
	}

	runs, err := c.ListRuns(cmd.Context())
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	return listRuns(runs)
}

func listRuns(runs []service.RunSnapshot) error {
	if done, err := encode(os.Stdout, outputFormat, runs); done || err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs found")
		return nil
	}

	fmt.Printf("%-10s %-10s %-9s %-14s %-10s %s\n", "ID", "STATUS", "KEYWORDS", "PHASE", "PROGRESS", "STARTED")
	fmt.Println("------------------------------------------------------------------------")
	for _, r := range runs {
		progress := ""
		if r.Total > 0 {
			progress = fmt.Sprintf("%d/%d", r.Progress, r.Total)
		}
		phase := ""
		if r.Kind != "" {
			phase = fmt.Sprintf("%s %s", r.Kind, r.Phase)
		}
		fmt.Printf("%-10s %-10s %-9d %-14s %-10s %s\n", r.ID, r.Status, r.Keywords, phase, progress, r.StartedAt.Format("15:04:05"))
	}
	return nil
}

func showRun(run *service.RunSnapshot) error {
	if done, err := encode(os.Stdout, outputFormat, run); done || err != nil {
		return err
	}

	fmt.Printf("Run: %s\n", run.ID)
	fmt.Printf("  Status: %s\n", run.Status)
	fmt.Printf("  Keywords: %d\n", run.Keywords)
	if run.Total > 0 && !run.Done() {
		fmt.Printf("  Progress: %s %s %d/%d\n", run.Kind, run.Phase, run.Progress, run.Total)
	}
	fmt.Printf("  Started: %s\n", run.StartedAt.Format(time.RFC3339))
	if run.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", run.CompletedAt.Format(time.RFC3339))
		fmt.Printf("  Duration: %s\n", run.CompletedAt.Sub(run.StartedAt).Round(time.Second))
	}
	if run.Error != "" {
		fmt.Printf("  Error: %s\n", run.Error)
	}

	if run.Report != nil {
		fmt.Println()
		return printReport(os.Stdout, formatTable, run.Report)
	}
	return nil
}
