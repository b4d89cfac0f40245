// Package cmd implements the burnmeter CLI commands.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	flagClaudeDir string
	flagNoCache   bool
	flagVerbose   bool
	flagJSON      bool
)

var rootCmd = &cobra.Command{
	Use:   "burnmeter",
	Short: "Claude subscription usage meter",
	Long: "Estimate weekly, daily and 5-hour session usage of a Claude subscription\n" +
		"from live claude.ai data, calibrated local counts or statistical estimates.",
	SilenceUsage: true,
	RunE:         runEstimate,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagClaudeDir, "claude-dir", "d", "", "Claude data directory (default ~/.claude)")
	rootCmd.PersistentFlags().BoolVar(&flagNoCache, "no-cache", false, "Run memory-only without the SQLite cache")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log debug output to stderr")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Print machine-readable JSON")
}
