package components

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/burnmeter/internal/cli"
	"github.com/theirongolddev/burnmeter/internal/model"
	"github.com/theirongolddev/burnmeter/internal/tui/theme"
)

// Thresholds are the warning and critical ratios used to color a bar.
type Thresholds struct {
	Warning  float64
	Critical float64
}

// ScopeBar renders one budget window: label, bar, percentage, tokens
// over limit, confidence tier and reset countdown.
func ScopeBar(label string, u model.ScopeUsage, th Thresholds, labelW, barWidth int) string {
	t := theme.Active
	pct := min(max(u.Ratio, 0), 1)
	color := t.ForRatio(u.Ratio, th.Warning, th.Critical)

	bar := progress.New(
		progress.WithSolidFill(string(color)),
		progress.WithWidth(barWidth),
		progress.WithoutPercentage(),
	)
	bar.EmptyColor = string(t.TextDim)

	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	pctStyle := lipgloss.NewStyle().Foreground(color).Bold(true)
	valueStyle := lipgloss.NewStyle().Foreground(t.TextPrimary)
	dimStyle := lipgloss.NewStyle().Foreground(t.TextDim)

	return labelStyle.Render(fmt.Sprintf("%-*s", labelW, label)) + " " +
		bar.ViewAs(pct) + " " +
		pctStyle.Render(fmt.Sprintf("%5.1f%%", u.Ratio*100)) + "  " +
		valueStyle.Render(cli.FormatTokens(u.Tokens)+" / "+cli.FormatTokens(u.Limit)) + "  " +
		dimStyle.Render("["+cli.FormatTier(u.Tier)+"] resets in "+cli.FormatCountdown(u.ResetsIn))
}
