package fetch

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/raphaelgruber/serpcluster/internal/models"
)

// PolicyMode selects how cached entries are reused.
type PolicyMode int

const (
	// AlwaysFetch ignores the cache on read. Results are still written.
	AlwaysFetch PolicyMode = iota
	// FreshWithin reuses entries younger than Policy.MaxAge.
	FreshWithin
	// UseForever reuses any cached entry regardless of age.
	UseForever
)

// Policy is the freshness rule applied during the cache partition.
type Policy struct {
	Mode   PolicyMode
	MaxAge time.Duration
}

// FreshWithinDays is shorthand for a FreshWithin policy measured in days.
func FreshWithinDays(days int) Policy {
	return Policy{Mode: FreshWithin, MaxAge: time.Duration(days) * 24 * time.Hour}
}

// ParsePolicy accepts "always-fetch", "use-forever" and "fresh-within:D" where
// D is a number of days or a Go duration such as "36h".
func ParsePolicy(s string) (Policy, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "always-fetch":
		return Policy{Mode: AlwaysFetch}, nil
	case "use-forever", "":
		return Policy{Mode: UseForever}, nil
	}

	rest, ok := strings.CutPrefix(s, "fresh-within:")
	if !ok {
		return Policy{}, fmt.Errorf("unknown cache policy: %q", s)
	}
	if days, err := strconv.Atoi(rest); err == nil {
		if days < 0 {
			return Policy{}, fmt.Errorf("negative freshness window: %q", s)
		}
		return FreshWithinDays(days), nil
	}
	d, err := time.ParseDuration(rest)
	if err != nil || d < 0 {
		return Policy{}, fmt.Errorf("invalid freshness window: %q", s)
	}
	return Policy{Mode: FreshWithin, MaxAge: d}, nil
}

// Usable reports whether entry may be served instead of fetching.
func (p Policy) Usable(entry *models.CacheEntry, now time.Time) bool {
	if entry == nil {
		return false
	}
	switch p.Mode {
	case UseForever:
		return true
	case FreshWithin:
		return entry.Age(now) <= p.MaxAge
	default:
		return false
	}
}

func (p Policy) String() string {
	switch p.Mode {
	case AlwaysFetch:
		return "always-fetch"
	case FreshWithin:
		if p.MaxAge%(24*time.Hour) == 0 {
			return fmt.Sprintf("fresh-within:%d", p.MaxAge/(24*time.Hour))
		}
		return "fresh-within:" + p.MaxAge.String()
	default:
		return "use-forever"
	}
}
