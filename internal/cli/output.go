package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/serpcluster/internal/cluster"
	"github.com/raphaelgruber/serpcluster/internal/fetch"
	"github.com/raphaelgruber/serpcluster/internal/models"
	"github.com/raphaelgruber/serpcluster/internal/service"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF00"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6C6C"))
)

func checkFormat(f string) error {
	switch f {
	case formatTable, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", f)
	}
}

// encode writes v as JSON or YAML. It reports false for the table format so
// the caller renders its own view.
func encode(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return true, enc.Encode(v)
	default:
		return false, nil
	}
}

func printReport(w io.Writer, format string, report *service.Report) error {
	if done, err := encode(w, format, report); done || err != nil {
		return err
	}

	if report.Clusters != nil {
		printClusters(w, report.Clusters)
	}
	if len(report.Missing) > 0 {
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("\nNot cached (%d): %s", len(report.Missing), strings.Join(report.Missing, ", "))))
	}
	printFailures(w, report.Failures)
	return nil
}

func printClusters(w io.Writer, out *cluster.Output) {
	s := out.Stats
	fmt.Fprintln(w, headingStyle.Render(fmt.Sprintf("%d clusters from %d keywords (%s, %s, min %d of top %d)",
		s.Clusters, s.Keywords, out.Config.Algorithm, out.Config.Strategy, out.Config.MinIntersections, out.Config.URLsToCheck)))
	fmt.Fprintf(w, "  average size %.1f, largest %d, %d with %d+ keywords, %d single, %d without results\n\n",
		s.AverageSize, s.Largest, s.LargeClusters, cluster.LargeClusterSize, s.Singletons, s.NoResults)

	const row = "%-5s %-40s %-8s %-10s %-8s %-6s %s\n"
	fmt.Fprintf(w, row, "ID", "KEYWORD", "SHARED", "VOLUME", "CPC", "KD", "INTENT")
	fmt.Fprintln(w, strings.Repeat("-", 94))
	for _, c := range out.Clusters {
		for i, m := range c.Members {
			id := ""
			kw := "  " + m.Keyword
			if i == 0 {
				id = fmt.Sprint(c.ID)
				kw = m.Keyword
			}
			shared := fmt.Sprint(m.Intersections)
			if c.NoResults {
				shared = "-"
			}
			fmt.Fprintf(w, row, id, kw, shared, volumeText(m.Metrics), cpcText(m.Metrics), kdText(m.Metrics), intentText(m.Metrics))
		}
		if c.Size() > 1 {
			sum := c.Summary
			fmt.Fprintln(w, dimStyle.Render(strings.TrimSuffix(fmt.Sprintf(row, "", "  = cluster total",
				fmt.Sprintf("%.1f", sum.AverageIntersections),
				fmt.Sprint(sum.TotalVolume),
				floatText(sum.AverageCPC, "%.2f"),
				floatText(sum.AverageDifficulty, "%.1f"),
				orDash(sum.PrimaryIntent)), "\n")))
		}
	}

	for _, warning := range out.Warnings {
		fmt.Fprintln(w, warnStyle.Render("\nWarning: "+warning))
	}
}

func printFailures(w io.Writer, failures []fetch.Failure) {
	if len(failures) == 0 {
		return
	}
	fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("\nFailed (%d):", len(failures))))
	for _, f := range failures {
		line := fmt.Sprintf("  - %s [%s] %s", f.Keyword, f.Kind, f.Reason)
		if verbose && f.Detail != "" {
			line += dimStyle.Render(": " + f.Detail)
		}
		fmt.Fprintln(w, line)
	}
}

func volumeText(m *models.Metrics) string {
	if m == nil || m.SearchVolume == nil {
		return "-"
	}
	return fmt.Sprint(*m.SearchVolume)
}

func cpcText(m *models.Metrics) string {
	if m == nil || m.CPC == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *m.CPC)
}

func kdText(m *models.Metrics) string {
	if m == nil || m.Difficulty == nil {
		return "-"
	}
	return fmt.Sprint(*m.Difficulty)
}

func intentText(m *models.Metrics) string {
	if m == nil || m.Intent == nil {
		return "-"
	}
	return orDash(*m.Intent)
}

func floatText(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
