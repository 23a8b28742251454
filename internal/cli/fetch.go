package cli

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/serpcluster/internal/fetch"
	"github.com/raphaelgruber/serpcluster/internal/models"
	"github.com/raphaelgruber/serpcluster/internal/service"
)

var fetchFlags requestFlags

var fetchCmd = &cobra.Command{
	Use:   "fetch [keywords...]",
	Short: "Fill the cache without clustering",
	Long: `Fetch search results and keyword metrics into the cache. Later runs and
the cluster command reuse them.

Examples:
  serpcluster fetch -f keywords.csv
  serpcluster fetch -f keywords.txt --cache always-fetch --metrics volume,difficulty`,
	RunE: runFetch,
}

func init() {
	fetchFlags.register(fetchCmd.Flags(), false)
}

// fetchSummary is the machine-readable output of the fetch command.
type fetchSummary struct {
	Keywords   int             `json:"keywords" yaml:"keywords"`
	ResultSets int             `json:"result_sets" yaml:"result_sets"`
	Metrics    int             `json:"metrics" yaml:"metrics"`
	Failures   []fetch.Failure `json:"failures,omitempty" yaml:"failures,omitempty"`
}

func runFetch(cmd *cobra.Command, args []string) error {
	if fetcher == nil {
		return service.ErrNoFetcher
	}

	req, err := fetchFlags.request(args)
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

	ctx := cmd.Context()
	progress := newEventPrinter(os.Stderr)

	sets, failures, err := fetcher.ResultSets(ctx, req.Keywords, opts.Context, opts.Policy, progress.print)
	if err != nil {
		return err
	}
	summary := fetchSummary{
		Keywords:   len(req.Keywords),
		ResultSets: len(sets),
		Failures:   failures,
	}

	if !opts.SkipMetrics {
		kinds := opts.MetricsKinds
		if len(kinds) == 0 {
			kinds = models.DefaultMetricsKinds()
		}
		kwMetrics, mFailures, err := fetcher.Metrics(ctx, req.Keywords, opts.Context, opts.Policy, kinds, progress.print)
		if err != nil {
			return err
		}
		summary.Metrics = len(kwMetrics)
		summary.Failures = append(summary.Failures, mFailures...)
	}

	if done, err := encode(os.Stdout, outputFormat, summary); done || err != nil {
		return err
	}
	fmt.Printf("Fetched %d of %d keywords, metrics for %d\n", summary.ResultSets, summary.Keywords, summary.Metrics)
	printFailures(os.Stdout, summary.Failures)
	return nil
}

// eventPrinter writes one line per phase change.
type eventPrinter struct {
	mu   sync.Mutex
	w    io.Writer
	last fetch.Event
}

func newEventPrinter(w io.Writer) *eventPrinter {
	return &eventPrinter{w: w}
}

func (p *eventPrinter) print(e fetch.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e.Kind == p.last.Kind && e.Phase == p.last.Phase && e.Phase != fetch.PhaseDone && !verbose {
		return
	}
	p.last = e

	line := fmt.Sprintf("%s %s: %d/%d", e.Kind, e.Phase, e.Done, e.Total)
	if e.Message != "" {
		line += " " + dimStyle.Render(e.Message)
	}
	fmt.Fprintln(p.w, line)
}
