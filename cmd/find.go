package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-finder/internal/config"
)

var findCmd = &cobra.Command{
	Use:   "find <query-photo> [corpus-dir]",
	Short: "Find all photos containing the person from the query photo",
	Long: `Find all photos in the corpus directory containing the person shown
in the query photo.

The first detected face in the query photo is used as the query identity.
A corpus face counts as a match only when its distance is within the
tolerance AND its confidence (1 - distance) reaches the minimum. Results
are sorted by confidence, best first.

When corpus-dir is omitted, the configured photos directory is used.

Examples:
  # Search the configured corpus
  face-finder find guest.jpg

  # Search a specific directory
  face-finder find guest.jpg /data/event-photos

  # Stricter matching
  face-finder find guest.jpg --tolerance 0.4 --min-confidence 0.6

  # Use the faster HOG detector
  face-finder find guest.jpg --model hog

  # Output as JSON
  face-finder find guest.jpg --json`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runFind,
}

func init() {
	rootCmd.AddCommand(findCmd)

	findCmd.Flags().Float64("tolerance", 0, "Maximum face distance for a match (0 = use config)")
	findCmd.Flags().Float64("min-confidence", 0, "Minimum confidence to accept a match (0 = use config)")
	findCmd.Flags().String("model", "", "Detection model: hog or cnn (empty = use config)")
	findCmd.Flags().StringSlice("ext", nil, "Allowed file extensions (empty = use config)")
	findCmd.Flags().Bool("json", false, "Output as JSON")
}

func runFind(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applyMatchFlags(cmd, cfg)
	jsonOutput := mustGetBool(cmd, "json")

	queryPath := args[0]
	corpusDir := cfg.PhotosDir
	if len(args) > 1 {
		corpusDir = args[1]
	}

	deps, err := newMatcherDeps(cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		fmt.Printf("Query: %s\n", queryPath)
		fmt.Printf("Tolerance: %.2f, minimum confidence: %.2f\n", cfg.Tolerance, cfg.MinConfidence)
		deps.matcher.Progress = func(done, total int) {
			if bar == nil {
				bar = newScanProgressBar(total, "Scanning photos")
			}
			_ = bar.Add(1)
		}
	}

	outcome := deps.matcher.FindMatches(queryPath, corpusDir, cfg.Extensions)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}

	if jsonOutput {
		out, err := json.MarshalIndent(outcome, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		fmt.Println(string(out))
		if !outcome.Success {
			os.Exit(1)
		}
		return nil
	}

	if !outcome.Success {
		return fmt.Errorf("search failed: %s", outcome.Error)
	}

	if outcome.TotalMatches == 0 {
		fmt.Println("No matching photos found.")
	} else {
		fmt.Printf("Found %d matching photo(s):\n", outcome.TotalMatches)
		for i, match := range outcome.Matches {
			fmt.Printf("  %2d. %-40s confidence %.3f  distance %.3f\n",
				i+1, match.Filename, match.Confidence, match.Distance)
		}
	}

	stats := outcome.Stats
	fmt.Println()
	fmt.Printf("Photos processed: %d\n", stats.PhotosProcessed)
	fmt.Printf("Faces found:      %d\n", stats.FacesFound)
	fmt.Printf("Rejected (low confidence): %d\n", stats.RejectedLowConfidence)
	fmt.Printf("Errors:           %d\n", stats.Errors)
	if outcome.TotalMatches > 0 {
		fmt.Printf("Average confidence: %.3f\n", stats.AverageConfidence)
	}
	return nil
}

// applyMatchFlags overrides configuration values with explicitly set flags.
func applyMatchFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("tolerance") {
		cfg.Tolerance = mustGetFloat64(cmd, "tolerance")
	}
	if cmd.Flags().Changed("min-confidence") {
		cfg.MinConfidence = mustGetFloat64(cmd, "min-confidence")
	}
	if cmd.Flags().Changed("model") {
		cfg.DetectionModel = mustGetString(cmd, "model")
	}
	if cmd.Flags().Changed("ext") {
		cfg.Extensions = mustGetStringSlice(cmd, "ext")
	}
}

func newScanProgressBar(count int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(count,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}
