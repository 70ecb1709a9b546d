package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-finder",
	Short: "A CLI tool for finding every photo of a person in a photo collection",
	Long: `Face Finder matches a single reference photo of a person against a
directory of event photos and returns every photo that likely contains
that person, ranked by confidence.

Extracted face encodings are cached on disk, so repeated searches over
the same collection only pay for the comparison, not for detection.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
