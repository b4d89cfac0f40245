package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/burnmeter/internal/cli"
	"github.com/theirongolddev/burnmeter/internal/config"
	"github.com/theirongolddev/burnmeter/internal/model"
	"github.com/theirongolddev/burnmeter/internal/pipeline"
	"github.com/theirongolddev/burnmeter/internal/worktime"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Run one refresh cycle and print the usage estimate",
	RunE:  runEstimate,
}

func init() {
	rootCmd.AddCommand(estimateCmd)
}

func runEstimate(_ *cobra.Command, _ []string) error {
	e, err := newEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	est, err := e.pipe.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	if flagJSON {
		return printJSON(est)
	}

	th := e.cfg.Thresholds
	fmt.Println()
	fmt.Println(cli.RenderTitle("BURNMETER"))
	fmt.Println()
	fmt.Println(cli.RenderScope("Weekly", est.Weekly, th.WeeklyWarning, th.WeeklyCritical))
	fmt.Println(cli.RenderScope("Daily", est.Daily, th.WeeklyWarning, th.WeeklyCritical))
	fmt.Println(cli.RenderScope("Session", est.Session, th.SessionWarning, th.SessionCritical))
	fmt.Println()

	fmt.Print(cli.RenderTable(windowsTable(est.Windows)))

	weekStart := pipeline.WeekStart(est.GeneratedAt, e.pipe.Limits().WeeklyResetDay)
	if rows := costRows(pipeline.CostBreakdown(e.pricer, e.counter.ModelUsageSince(weekStart))); len(rows) > 0 {
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   "This Week by Model",
			Headers: []string{"Model", "Tokens", "API Cost", "Cache Saved"},
			Rows:    rows,
		}))
	}

	fmt.Printf("\n  Worked today %s, this week %s\n",
		worktime.Format(est.WorkSecondsToday), worktime.Format(est.WorkSecondsWeek))
	fmt.Printf("  Cache multiplier ×%.1f, API equivalent %s this week\n",
		est.CacheMultiplier, cli.FormatCost(est.EquivalentCostUSD))
	if len(est.ModelShare) > 0 {
		fmt.Printf("  Model mix (7d): %s\n", formatShare(est.ModelShare))
	}
	fmt.Println()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func windowsTable(w model.RollingWindows) cli.Table {
	row := func(label string, c model.WindowCounts) []string {
		return []string{label, cli.FormatTokens(c.Tokens), cli.FormatNumber(int64(c.Messages)), cli.FormatNumber(int64(c.Sessions))}
	}
	return cli.Table{
		Title:   "Rolling Windows",
		Headers: []string{"Window", "Tokens", "Messages", "Sessions"},
		Rows: [][]string{
			row("24h", w.Day),
			row("7d", w.Week),
			row("30d", w.Month),
			{"---"},
			row("All time", w.AllTime),
		},
	}
}

func costRows(costs []pipeline.ModelCost) [][]string {
	rows := make([][]string, 0, len(costs))
	for _, c := range costs {
		rows = append(rows, []string{
			config.NormalizeModelName(c.Model),
			cli.FormatTokens(c.Tokens),
			cli.FormatCost(c.CostUSD),
			cli.FormatCost(c.SavedUSD),
		})
	}
	return rows
}

func formatShare(share map[string]float64) string {
	names := make([]string, 0, len(share))
	for n := range share {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return share[names[i]] > share[names[j]] })

	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s %s", config.NormalizeModelName(n), cli.FormatPercent(share[n]))
	}
	return out
}
