package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-finder/internal/config"
)

var facesCmd = &cobra.Command{
	Use:   "faces <photo>",
	Short: "Show detected faces in a photo",
	Long: `Show the bounding box of every face detected in a photo.

Useful for debugging why a photo does or does not match: a face the
detector never finds can never pass the thresholds.

Examples:
  face-finder faces photos/IMG_0042.jpg
  face-finder faces photos/IMG_0042.jpg --json`,
	Args: cobra.ExactArgs(1),
	RunE: runFaces,
}

func init() {
	rootCmd.AddCommand(facesCmd)

	facesCmd.Flags().String("model", "", "Detection model: hog or cnn (empty = use config)")
	facesCmd.Flags().Bool("json", false, "Output as JSON")
}

func runFaces(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cmd.Flags().Changed("model") {
		cfg.DetectionModel = mustGetString(cmd, "model")
	}

	deps, err := newMatcherDeps(cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	infos, err := deps.matcher.InspectFaces(args[0])
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", args[0], err)
	}

	if mustGetBool(cmd, "json") {
		out, err := json.MarshalIndent(infos, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	if len(infos) == 0 {
		fmt.Println("No faces detected.")
		return nil
	}

	fmt.Printf("Detected %d face(s) in %s:\n", len(infos), args[0])
	for _, info := range infos {
		fmt.Printf("  face %d: top=%d right=%d bottom=%d left=%d (%dx%d)\n",
			info.FaceID, info.Location.Top, info.Location.Right,
			info.Location.Bottom, info.Location.Left, info.Width, info.Height)
	}
	return nil
}
