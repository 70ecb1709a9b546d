package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-finder/internal/config"
)

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the encoding cache",
	Long: `Discard all cached face encodings and delete the persisted blob.

The next search or preprocess run will re-extract encodings from scratch.

Example:
  face-finder cache clear --yes`,
	RunE: runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)

	cacheClearCmd.Flags().Bool("yes", false, "Skip confirmation prompt")
}

func confirmAction(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	cache := newCacheOnly(cfg)

	stats := cache.Stats()
	if stats.CachedImages == 0 && !stats.BlobPresent {
		fmt.Println("Cache is already empty.")
		return nil
	}

	if !mustGetBool(cmd, "yes") &&
		!confirmAction(fmt.Sprintf("Discard %d cached image(s)? [y/N]: ", stats.CachedImages)) {
		fmt.Println("Cancelled.")
		return nil
	}

	if err := cache.Clear(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	fmt.Println("Face encoding cache cleared.")
	return nil
}
