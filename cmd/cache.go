package cmd

import (
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Encoding cache management commands",
	Long:  `Commands for inspecting and clearing the persisted face encoding cache.`,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
}
