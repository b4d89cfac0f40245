package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/burnmeter/internal/claudeai"
	"github.com/theirongolddev/burnmeter/internal/cli"
	"github.com/theirongolddev/burnmeter/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show live claude.ai subscription utilization",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfg, _ := config.Load()
	sessionKey := config.GetSessionKey(cfg)
	if sessionKey == "" {
		fmt.Println()
		fmt.Println("  No session key configured.")
		fmt.Println()
		fmt.Println("  To get your session key:")
		fmt.Println("    1. Open claude.ai in your browser")
		fmt.Println("    2. DevTools (F12) > Application > Cookies > claude.ai")
		fmt.Println("    3. Copy the 'sessionKey' value (starts with sk-ant-sid...)")
		fmt.Println()
		fmt.Println("  Then configure it:")
		fmt.Println("    burnmeter setup                                     (interactive)")
		fmt.Println("    CLAUDE_SESSION_KEY=sk-ant-sid... burnmeter status    (one-shot)")
		fmt.Println()
		return nil
	}

	client := newClaudeClient(cfg)
	if client == nil {
		return errors.New("invalid session key format (expected sk-ant-sid... prefix)")
	}

	if !flagJSON {
		fmt.Fprintf(os.Stderr, "  Fetching subscription data...\n")
	}

	timeout := max(cfg.ClaudeAI.FetchTimeout.Duration*3, 30*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	data := client.FetchAll(ctx)

	if data.Error != nil {
		if errors.Is(data.Error, claudeai.ErrUnauthorized) {
			return errors.New("session key expired or invalid, grab a fresh one from claude.ai cookies")
		}
		if errors.Is(data.Error, claudeai.ErrRateLimited) {
			return errors.New("rate limited by claude.ai, try again in a minute")
		}
		// Partial data may still be available, continue rendering
		if data.Usage == nil && data.Overage == nil {
			return fmt.Errorf("fetch failed: %w", data.Error)
		}
	}

	if flagJSON {
		return printJSON(statusJSON(data))
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle("CLAUDE.AI STATUS"))
	fmt.Println()

	if data.Org.UUID != "" {
		fmt.Printf("  Organization: %s\n", data.Org.Name)
		if len(data.Org.Capabilities) > 0 {
			fmt.Printf("  Capabilities: %s\n", strings.Join(data.Org.Capabilities, ", "))
		}
		fmt.Println()
	}

	if data.Usage != nil {
		rows := [][]string{}
		if w := data.Usage.FiveHour; w != nil {
			rows = append(rows, rateLimitRow("5-hour session", w, cfg.Thresholds.SessionWarning, cfg.Thresholds.SessionCritical))
		}
		if w := data.Usage.SevenDay; w != nil {
			rows = append(rows, rateLimitRow("7-day (all)", w, cfg.Thresholds.WeeklyWarning, cfg.Thresholds.WeeklyCritical))
		}
		if w := data.Usage.SevenDayOpus; w != nil {
			rows = append(rows, rateLimitRow("7-day Opus", w, cfg.Thresholds.WeeklyWarning, cfg.Thresholds.WeeklyCritical))
		}
		if w := data.Usage.SevenDaySonnet; w != nil {
			rows = append(rows, rateLimitRow("7-day Sonnet", w, cfg.Thresholds.WeeklyWarning, cfg.Thresholds.WeeklyCritical))
		}
		if len(rows) > 0 {
			fmt.Print(cli.RenderTable(cli.Table{
				Title:   "Rate Limits",
				Headers: []string{"Window", "Used", "Bar", "Resets"},
				Rows:    rows,
			}))
		}
	}

	if ol := data.Overage; ol != nil {
		status := "disabled"
		if ol.IsEnabled {
			status = "enabled"
		}
		rows := [][]string{
			{"Overage", status},
			{"Used Credits", fmt.Sprintf("%.2f %s", ol.UsedCredits, ol.Currency)},
			{"Monthly Limit", fmt.Sprintf("%.2f %s", ol.MonthlyCreditLimit, ol.Currency)},
		}
		if ol.IsEnabled && ol.MonthlyCreditLimit > 0 {
			rows = append(rows, []string{"Usage", cli.FormatPercent(ol.UsedCredits / ol.MonthlyCreditLimit)})
		}
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   "Overage Spend",
			Headers: []string{"Setting", "Value"},
			Rows:    rows,
		}))
	}

	if data.Error != nil {
		warnStyle := lipgloss.NewStyle().Foreground(cli.ColorOrange)
		fmt.Printf("  %s\n\n", warnStyle.Render(fmt.Sprintf("Partial data: %s", data.Error)))
	}

	fmt.Printf("  Fetched at %s\n\n", data.FetchedAt.Format("3:04:05 PM"))
	return nil
}

func rateLimitRow(label string, w *claudeai.ParsedWindow, warning, critical float64) []string {
	resets := ""
	if !w.ResetsAt.IsZero() {
		resets = cli.FormatCountdown(time.Until(w.ResetsAt))
	}
	bar := cli.RenderUsageBar(w.Pct, 20, cli.LevelColor(w.Pct, warning, critical))
	return []string{label, fmt.Sprintf("%.0f%%", w.Pct*100), bar, resets}
}

type windowJSON struct {
	Percent  float64   `json:"percent"`
	ResetsAt time.Time `json:"resets_at,omitzero"`
}

type statusOutput struct {
	Organization string                 `json:"organization,omitempty"`
	Windows      map[string]windowJSON  `json:"windows"`
	Overage      *claudeai.OverageLimit `json:"overage,omitempty"`
	FetchedAt    time.Time              `json:"fetched_at"`
	Error        string                 `json:"error,omitempty"`
}

func statusJSON(data *claudeai.SubscriptionData) statusOutput {
	out := statusOutput{
		Organization: data.Org.Name,
		Windows:      map[string]windowJSON{},
		Overage:      data.Overage,
		FetchedAt:    data.FetchedAt,
	}
	if data.Error != nil {
		out.Error = data.Error.Error()
	}
	if u := data.Usage; u != nil {
		for name, w := range map[string]*claudeai.ParsedWindow{
			"five_hour":        u.FiveHour,
			"seven_day":        u.SevenDay,
			"seven_day_opus":   u.SevenDayOpus,
			"seven_day_sonnet": u.SevenDaySonnet,
		} {
			if w != nil {
				out.Windows[name] = windowJSON{Percent: w.Pct * 100, ResetsAt: w.ResetsAt}
			}
		}
	}
	return out
}
