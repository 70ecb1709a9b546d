package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-finder/internal/config"
)

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show encoding cache statistics",
	Long: `Show how many images and face encodings the cache currently holds
and whether a persisted blob exists on disk.

Example:
  face-finder cache stats --json`,
	RunE: runCacheStats,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)

	cacheStatsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	cache := newCacheOnly(cfg)
	stats := cache.Stats()

	if mustGetBool(cmd, "json") {
		out, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("Cache blob:      %s\n", cfg.CachePath)
	fmt.Printf("Cached images:   %d\n", stats.CachedImages)
	fmt.Printf("Total encodings: %d\n", stats.TotalEncodings)
	fmt.Printf("Blob on disk:    %v\n", stats.BlobPresent)
	return nil
}
