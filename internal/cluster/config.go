package cluster

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is returned by Validate and Run before any clustering work.
var ErrInvalidConfig = errors.New("invalid cluster config")

// Algorithm selects how a candidate is tested against an existing cluster.
type Algorithm string

const (
	// AlgorithmDefault joins the first cluster whose primary is linked.
	AlgorithmDefault Algorithm = "default"
	// AlgorithmStrict joins the first cluster whose members are all linked.
	AlgorithmStrict Algorithm = "strict"
	// AlgorithmBalancedStrict relaxes the strict rule as clusters grow.
	AlgorithmBalancedStrict Algorithm = "balanced_strict"
)

// Strategy selects how keywords are ranked before clustering. The highest
// ranked member of a cluster is its primary.
type Strategy string

const (
	StrategyVolume Strategy = "volume"
	StrategyCPC    Strategy = "cpc"
)

const maxURLsToCheck = 100

// Config controls one clustering run.
type Config struct {
	Algorithm        Algorithm `json:"algorithm" yaml:"algorithm"`
	Strategy         Strategy  `json:"strategy" yaml:"strategy"`
	MinIntersections int       `json:"min_intersections" yaml:"min_intersections"`
	URLsToCheck      int       `json:"urls_to_check" yaml:"urls_to_check"`
}

// DefaultConfig returns balanced strict clustering ranked by volume,
// linking keywords that share 3 of their top 10 URLs.
func DefaultConfig() Config {
	return Config{
		Algorithm:        AlgorithmBalancedStrict,
		Strategy:         StrategyVolume,
		MinIntersections: 3,
		URLsToCheck:      10,
	}
}

// Validate checks every field. Errors wrap ErrInvalidConfig.
func (c Config) Validate() error {
	if _, err := ParseAlgorithm(string(c.Algorithm)); err != nil {
		return err
	}
	if _, err := ParseStrategy(string(c.Strategy)); err != nil {
		return err
	}
	if c.URLsToCheck < 1 || c.URLsToCheck > maxURLsToCheck {
		return fmt.Errorf("%w: urls_to_check must be between 1 and %d, got %d", ErrInvalidConfig, maxURLsToCheck, c.URLsToCheck)
	}
	if c.MinIntersections < 1 || c.MinIntersections > c.URLsToCheck {
		return fmt.Errorf("%w: min_intersections must be between 1 and urls_to_check (%d), got %d", ErrInvalidConfig, c.URLsToCheck, c.MinIntersections)
	}
	return nil
}

// ParseAlgorithm accepts the algorithm names, with "-" or "_" separators.
func ParseAlgorithm(s string) (Algorithm, error) {
	a := Algorithm(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	switch a {
	case AlgorithmDefault, AlgorithmStrict, AlgorithmBalancedStrict:
		return a, nil
	}
	return "", fmt.Errorf("%w: unknown algorithm %q", ErrInvalidConfig, s)
}

func ParseStrategy(s string) (Strategy, error) {
	st := Strategy(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StrategyVolume, StrategyCPC:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, s)
}
