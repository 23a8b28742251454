package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/serpcluster/internal/cache"
	"github.com/raphaelgruber/serpcluster/internal/models"
)

var (
	cacheDevice   string
	cacheLocation int
	cacheLanguage string
	cacheLimit    int
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage cached entries",
	Long: `Inspect and manage cached search results and metrics.

Keys have the form kind|keyword|location|language, with |device appended
for serp entries.

Examples:
  serpcluster cache get serp "running shoes"
  serpcluster cache list "serp|running"
  serpcluster cache delete "volume|running shoes|2840|en"`,
}

var cacheGetCmd = &cobra.Command{
	Use:   "get <kind> <keyword>",
	Short: "Show a cached payload",
	Args:  cobra.ExactArgs(2),
	RunE:  runCacheGet,
}

var cacheListCmd = &cobra.Command{
	Use:   "list [prefix]",
	Short: "List cache keys",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCacheList,
}

var cacheDeleteCmd = &cobra.Command{
	Use:   "delete <key>...",
	Short: "Delete cache entries by key",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCacheDelete,
}

func init() {
	cacheGetCmd.Flags().StringVar(&cacheDevice, "device", "", "device (default from config)")
	cacheGetCmd.Flags().IntVar(&cacheLocation, "location", 0, "location code (default from config)")
	cacheGetCmd.Flags().StringVar(&cacheLanguage, "language", "", "language code (default from config)")
	cacheListCmd.Flags().IntVarP(&cacheLimit, "limit", "n", 100, "max entries")

	cacheCmd.AddCommand(cacheGetCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheDeleteCmd)
}

// cachedEntry is the displayed form of a cache entry.
type cachedEntry struct {
	Key       string    `json:"key" yaml:"key"`
	FetchedAt time.Time `json:"fetched_at" yaml:"fetched_at"`
	Payload   any       `json:"payload,omitempty" yaml:"payload,omitempty"`
}

func runCacheGet(cmd *cobra.Command, args []string) error {
	kind, err := models.ParseDataKind(args[0])
	if err != nil {
		return err
	}
	sc, err := cfg.SearchContext()
	if err != nil {
		return err
	}
	if cacheLocation != 0 {
		sc.LocationCode = cacheLocation
	}
	if cacheLanguage != "" {
		sc.LanguageCode = cacheLanguage
	}
	if cacheDevice != "" {
		if sc.Device, err = models.ParseDevice(cacheDevice); err != nil {
			return err
		}
	}

	key := models.NewCacheKey(kind, args[1], sc).String()
	entry, err := store.Get(cmd.Context(), key)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("not cached: %s", key)
	}

	var payload any
	if err := json.Unmarshal(entry.Payload, &payload); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	out := cachedEntry{Key: entry.Key, FetchedAt: entry.FetchedAt, Payload: payload}
	if done, err := encode(os.Stdout, outputFormat, out); done || err != nil {
		return err
	}

	fmt.Printf("%s\n", headingStyle.Render(entry.Key))
	fmt.Printf("  Fetched: %s (%s ago)\n", entry.FetchedAt.Format(time.RFC3339), time.Since(entry.FetchedAt).Round(time.Minute))
	switch p := payload.(type) {
	case []any:
		fmt.Printf("  URLs (%d):\n", len(p))
		for i, u := range p {
			fmt.Printf("  %3d. %v\n", i+1, u)
		}
	default:
		fmt.Printf("  %s\n", string(entry.Payload))
	}
	return nil
}

func runCacheList(cmd *cobra.Command, args []string) error {
	lister, ok := store.(cache.Lister)
	if !ok {
		return fmt.Errorf("cache backend %q cannot list entries", cfg.Cache.Backend)
	}

	prefix := ""
	if len(args) == 1 {
		prefix = args[0]
	}
	entries, err := lister.List(cmd.Context(), prefix, cacheLimit)
	if errors.Is(err, cache.ErrNotSupported) {
		return fmt.Errorf("cache backend %q cannot list entries", cfg.Cache.Backend)
	}
	if err != nil {
		return err
	}

	out := make([]cachedEntry, len(entries))
	for i, e := range entries {
		out[i] = cachedEntry{Key: e.Key, FetchedAt: e.FetchedAt}
	}
	if done, err := encode(os.Stdout, outputFormat, out); done || err != nil {
		return err
	}

	if len(out) == 0 {
		fmt.Println("No cached entries found.")
		return nil
	}
	fmt.Printf("%-60s %s\n", "KEY", "FETCHED")
	fmt.Println(strings.Repeat("-", 82))
	for _, e := range out {
		fmt.Printf("%-60s %s\n", e.Key, e.FetchedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runCacheDelete(cmd *cobra.Command, args []string) error {
	deleter, ok := store.(cache.Deleter)
	if !ok {
		return fmt.Errorf("cache backend %q cannot delete entries", cfg.Cache.Backend)
	}

	for _, key := range args {
		if _, err := models.ParseCacheKey(key); err != nil {
			return err
		}
		if err := deleter.Delete(cmd.Context(), key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		fmt.Printf("Deleted %s\n", key)
	}
	return nil
}
