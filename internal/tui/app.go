// Package tui provides the live Bubble Tea dashboard for burnmeter.
package tui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"github.com/theirongolddev/burnmeter/internal/cli"
	"github.com/theirongolddev/burnmeter/internal/config"
	"github.com/theirongolddev/burnmeter/internal/model"
	"github.com/theirongolddev/burnmeter/internal/pipeline"
	"github.com/theirongolddev/burnmeter/internal/tui/components"
	"github.com/theirongolddev/burnmeter/internal/tui/theme"
	"github.com/theirongolddev/burnmeter/internal/worktime"
)

// RefreshFunc runs one refresh cycle.
type RefreshFunc func(ctx context.Context) (*model.UsageEstimate, error)

// EstimateMsg carries the outcome of a refresh cycle.
type EstimateMsg struct {
	Estimate *model.UsageEstimate
	Err      error
	Elapsed  time.Duration
}

type tickMsg struct{}

const (
	maxContentWidth = 120
	labelWidth      = 8
	topProjects     = 5
	minInterval     = time.Second
)

// App is the root Bubble Tea model of the watch dashboard.
type App struct {
	refresh    RefreshFunc
	interval   time.Duration
	thresholds config.ThresholdsConfig
	now        func() time.Time

	est         *model.UsageEstimate
	lastErr     error
	lastRefresh time.Time
	elapsed     time.Duration
	refreshing  bool

	width   int
	height  int
	spinner spinner.Model
}

// NewApp creates the dashboard. The first refresh starts from Init and the
// next one is scheduled interval after each completion.
func NewApp(refresh RefreshFunc, interval time.Duration, thresholds config.ThresholdsConfig) App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Active.Accent)

	return App{
		refresh:    refresh,
		interval:   max(interval, minInterval),
		thresholds: thresholds,
		now:        time.Now,
		refreshing: true,
		spinner:    sp,
	}
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.refreshCmd())
}

func (a App) refreshCmd() tea.Cmd {
	refresh, now := a.refresh, a.now
	return func() tea.Msg {
		start := now()
		est, err := refresh(context.Background())
		return EstimateMsg{Estimate: est, Err: err, Elapsed: now().Sub(start)}
	}
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return a, tea.Quit
		case "r":
			if a.refreshing {
				return a, nil
			}
			a.refreshing = true
			return a, a.refreshCmd()
		}
		return a, nil

	case spinner.TickMsg:
		if a.est != nil {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case EstimateMsg:
		a.refreshing = false
		switch {
		case errors.Is(msg.Err, pipeline.ErrRefreshInFlight):
		case msg.Err != nil:
			a.lastErr = msg.Err
		case msg.Estimate != nil:
			a.est = msg.Estimate
			a.lastErr = nil
			a.lastRefresh = a.now()
			a.elapsed = msg.Elapsed
		}
		return a, tickCmd(a.interval)

	case tickMsg:
		if a.refreshing {
			return a, nil
		}
		a.refreshing = true
		return a, a.refreshCmd()
	}
	return a, nil
}

// View implements tea.Model.
func (a App) View() string {
	if a.width == 0 {
		return ""
	}
	if a.est == nil {
		return a.viewLoading()
	}
	return a.viewMain()
}

func (a App) contentWidth() int {
	return min(a.width, maxContentWidth)
}

func (a App) viewLoading() string {
	t := theme.Active

	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Foreground(t.Accent).Bold(true).Render("◈ burnmeter"))
	b.WriteString("\n\n")
	b.WriteString(a.spinner.View())
	b.WriteString(lipgloss.NewStyle().Foreground(t.TextMuted).Render(" Measuring usage..."))
	if a.lastErr != nil {
		b.WriteString("\n\n")
		b.WriteString(lipgloss.NewStyle().Foreground(t.Red).Render(a.lastErr.Error()))
	}

	card := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Accent).
		Padding(1, 3).
		Render(b.String())
	return lipgloss.Place(a.width, max(a.height, lipgloss.Height(card)), lipgloss.Center, lipgloss.Center, card)
}

func (a App) viewMain() string {
	t := theme.Active
	est := a.est
	cw := a.contentWidth()
	barWidth := max(cw-70, 10)

	weekly := components.Thresholds{Warning: a.thresholds.WeeklyWarning, Critical: a.thresholds.WeeklyCritical}
	session := components.Thresholds{Warning: a.thresholds.SessionWarning, Critical: a.thresholds.SessionCritical}

	var b strings.Builder
	title := lipgloss.NewStyle().Foreground(t.Accent).Bold(true).Render("◈ burnmeter")
	if est.SessionID != "" {
		title += lipgloss.NewStyle().Foreground(t.TextDim).Render("  session " + shortID(est.SessionID))
	}
	b.WriteString(title + "\n\n")

	b.WriteString(components.ScopeBar("Weekly", est.Weekly, weekly, labelWidth, barWidth) + "\n")
	b.WriteString(components.ScopeBar("Daily", est.Daily, weekly, labelWidth, barWidth) + "\n")
	b.WriteString(components.ScopeBar("Session", est.Session, session, labelWidth, barWidth) + "\n\n")

	w := est.Windows
	b.WriteString(components.MetricCardRow([]components.Metric{
		windowMetric("24h", w.Day),
		windowMetric("7d", w.Week),
		windowMetric("30d", w.Month),
		windowMetric("All time", w.AllTime),
	}, cw) + "\n")
	b.WriteString(components.MetricCardRow([]components.Metric{
		{Label: "Worked today", Value: worktime.FormatCompact(est.WorkSecondsToday)},
		{Label: "Worked this week", Value: worktime.FormatCompact(est.WorkSecondsWeek)},
		{Label: "Cache multiplier", Value: fmt.Sprintf("×%.1f", est.CacheMultiplier)},
		{Label: "API equivalent", Value: cli.FormatCost(est.EquivalentCostUSD)},
	}, cw) + "\n")

	cards := components.LayoutRow(cw, 2)
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		components.ContentCard("Projects (7d)", projectLines(est.Projects, components.CardInnerWidth(cards[0])), cards[0]),
		components.ContentCard("Models (7d)", modelLines(est.ModelShare), cards[1]),
	) + "\n")

	age := ""
	if !a.lastRefresh.IsZero() {
		age = fmt.Sprintf("updated %s ago in %s", a.now().Sub(a.lastRefresh).Round(time.Second), a.elapsed.Round(time.Millisecond))
	}
	if a.lastErr != nil {
		age = lipgloss.NewStyle().Foreground(t.Red).Render(a.lastErr.Error())
	}
	b.WriteString(components.RenderStatusBar(cw, "[r]efresh  [q]uit", age))
	return b.String()
}

func windowMetric(label string, w model.WindowCounts) components.Metric {
	return components.Metric{
		Label: label,
		Value: cli.FormatTokens(w.Tokens),
		Sub:   fmt.Sprintf("%s msgs · %s sessions", cli.FormatNumber(int64(w.Messages)), cli.FormatNumber(int64(w.Sessions))),
	}
}

func projectLines(projects map[string]int64, width int) string {
	if len(projects) == 0 {
		return cli.Muted("no project activity")
	}
	names := lo.Keys(projects)
	sort.Slice(names, func(i, j int) bool {
		if projects[names[i]] != projects[names[j]] {
			return projects[names[i]] > projects[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > topProjects {
		names = names[:topProjects]
	}
	nameW := max(width-10, 4)
	lines := lo.Map(names, func(n string, _ int) string {
		return fmt.Sprintf("%-*s %8s", nameW, truncate(n, nameW), cli.FormatTokens(projects[n]))
	})
	return strings.Join(lines, "\n")
}

func modelLines(share map[string]float64) string {
	if len(share) == 0 {
		return cli.Muted("no model activity")
	}
	names := lo.Keys(share)
	sort.Slice(names, func(i, j int) bool {
		if share[names[i]] != share[names[j]] {
			return share[names[i]] > share[names[j]]
		}
		return names[i] < names[j]
	})
	lines := lo.Map(names, func(n string, _ int) string {
		return fmt.Sprintf("%-24s %6s", truncate(config.NormalizeModelName(n), 24), cli.FormatPercent(share[n]))
	})
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
