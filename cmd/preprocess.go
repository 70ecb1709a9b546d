package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-finder/internal/config"
)

var preprocessCmd = &cobra.Command{
	Use:   "preprocess [corpus-dir]",
	Short: "Pre-extract face encodings for the whole photo corpus",
	Long: `Pre-extract face encodings for every photo in the corpus and persist
them to the encoding cache.

Run this after new photos are added so interactive searches only pay for
cache hits instead of face detection. Photos whose cache entry is still
valid are skipped cheaply; per-file errors are counted and do not abort
the run.

Examples:
  # Warm the cache for the configured corpus
  face-finder preprocess

  # Warm a specific directory with the faster detector
  face-finder preprocess /data/event-photos --model hog`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPreprocess,
}

func init() {
	rootCmd.AddCommand(preprocessCmd)

	preprocessCmd.Flags().String("model", "", "Detection model: hog or cnn (empty = use config)")
	preprocessCmd.Flags().StringSlice("ext", nil, "Allowed file extensions (empty = use config)")
	preprocessCmd.Flags().Bool("json", false, "Output as JSON")
}

func runPreprocess(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cmd.Flags().Changed("model") {
		cfg.DetectionModel = mustGetString(cmd, "model")
	}
	if cmd.Flags().Changed("ext") {
		cfg.Extensions = mustGetStringSlice(cmd, "ext")
	}
	jsonOutput := mustGetBool(cmd, "json")

	corpusDir := cfg.PhotosDir
	if len(args) > 0 {
		corpusDir = args[0]
	}

	deps, err := newMatcherDeps(cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		deps.matcher.Progress = func(done, total int) {
			if bar == nil {
				bar = newScanProgressBar(total, "Extracting faces")
			}
			_ = bar.Add(1)
		}
	}

	result, err := deps.matcher.WarmCache(corpusDir, cfg.Extensions)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("Processed %d/%d photo(s), found %d face(s)\n",
		result.Processed, result.TotalFiles, result.TotalFacesFound)
	if result.Errors > 0 {
		fmt.Printf("Errors: %d\n", result.Errors)
	}
	fmt.Printf("Cache now holds %d image(s)\n", result.CacheSize)
	return nil
}
