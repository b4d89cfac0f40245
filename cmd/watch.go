package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/burnmeter/internal/tui"
	"github.com/theirongolddev/burnmeter/internal/tui/theme"
)

var flagWatchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live usage dashboard",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().DurationVarP(&flagWatchInterval, "interval", "i", 0, "Refresh interval (default from [daemon] interval)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(_ *cobra.Command, _ []string) error {
	e, err := newEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	theme.SetActive(e.cfg.General.Theme)
	// Force TrueColor so themed colors render even when lipgloss cannot
	// detect the terminal profile.
	lipgloss.SetColorProfile(termenv.TrueColor)

	interval := e.cfg.Daemon.Interval.Duration
	if flagWatchInterval > 0 {
		interval = flagWatchInterval
	}

	app := tui.NewApp(e.pipe.Refresh, interval, e.cfg.Thresholds)
	if _, err := tea.NewProgram(app, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
