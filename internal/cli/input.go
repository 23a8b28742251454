package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/raphaelgruber/serpcluster/internal/models"
	"github.com/raphaelgruber/serpcluster/internal/service"
)

// requestFlags are shared by commands that fetch or cluster keywords.
type requestFlags struct {
	file             string
	location         int
	language         string
	device           string
	policy           string
	algorithm        string
	strategy         string
	minIntersections int
	urlsToCheck      int
	metrics          []string
	skipMetrics      bool
}

func (f *requestFlags) register(fs *pflag.FlagSet, clustering bool) {
	fs.StringVarP(&f.file, "file", "f", "", "read keywords from a .csv or text file ('-' for stdin)")
	fs.IntVar(&f.location, "location", 0, "location code (default from config)")
	fs.StringVar(&f.language, "language", "", "language code (default from config)")
	fs.StringVar(&f.device, "device", "", "desktop or mobile (default from config)")
	fs.StringVar(&f.policy, "cache", "", "cache policy: use-forever, always-fetch or fresh-within:<days>")
	fs.StringSliceVar(&f.metrics, "metrics", nil, "metrics kinds to attach: volume, difficulty, intent")
	fs.BoolVar(&f.skipMetrics, "skip-metrics", false, "do not fetch keyword metrics")
	if !clustering {
		return
	}
	fs.StringVarP(&f.algorithm, "algorithm", "a", "", "default, strict or balanced_strict")
	fs.StringVarP(&f.strategy, "strategy", "s", "", "primary keyword strategy: volume or cpc")
	fs.IntVarP(&f.minIntersections, "min", "m", 0, "minimum shared URLs to link two keywords")
	fs.IntVarP(&f.urlsToCheck, "urls", "u", 0, "number of top URLs compared per keyword")
}

// request builds a RunRequest from args and flags.
func (f *requestFlags) request(args []string) (service.RunRequest, error) {
	keywords, err := readKeywords(args, f.file)
	if err != nil {
		return service.RunRequest{}, err
	}
	return service.RunRequest{
		Keywords:         keywords,
		LocationCode:     f.location,
		LanguageCode:     f.language,
		Device:           f.device,
		CachePolicy:      f.policy,
		Algorithm:        f.algorithm,
		Strategy:         f.strategy,
		MinIntersections: f.minIntersections,
		URLsToCheck:      f.urlsToCheck,
		Metrics:          f.metrics,
		SkipMetrics:      f.skipMetrics,
	}, nil
}

// readKeywords combines positional keywords with those read from file.
func readKeywords(args []string, file string) ([]string, error) {
	keywords := append([]string(nil), args...)
	if file == "" {
		return models.NormalizeKeywords(keywords), nil
	}

	var r io.Reader
	if file == "-" {
		r = os.Stdin
	} else {
		fh, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("open keyword file: %w", err)
		}
		defer fh.Close()
		r = fh
	}

	var (
		fromFile []string
		err      error
	)
	if strings.EqualFold(filepath.Ext(file), ".csv") {
		fromFile, err = models.ParseKeywordCSV(r)
	} else {
		fromFile, err = models.ParseKeywordLines(r)
	}
	if err != nil {
		return nil, err
	}
	return models.NormalizeKeywords(append(keywords, fromFile...)), nil
}
