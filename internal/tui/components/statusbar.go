package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/burnmeter/internal/tui/theme"
)

// RenderStatusBar renders the bottom status bar with key hints on the left
// and the data age on the right.
func RenderStatusBar(width int, hints, dataAge string) string {
	t := theme.Active

	style := lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Width(width)

	left := " " + hints
	right := ""
	if dataAge != "" {
		right = dataAge + " "
	}
	padding := max(width-lipgloss.Width(left)-lipgloss.Width(right), 0)

	return style.Render(left + strings.Repeat(" ", padding) + right)
}
