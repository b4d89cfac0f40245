package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/theirongolddev/burnmeter/internal/cli"
	"github.com/theirongolddev/burnmeter/internal/pipeline"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Show this week's tokens per project",
	RunE:  runProjects,
}

var flagProjectsAll bool

func init() {
	projectsCmd.Flags().BoolVar(&flagProjectsAll, "all", false, "Include lifetime tokens per project")
	rootCmd.AddCommand(projectsCmd)
}

type projectsOutput struct {
	Exact     map[string]int64 `json:"exact"`
	Estimated map[string]int64 `json:"estimated"`
	Lifetime  map[string]int64 `json:"lifetime,omitempty"`
}

func runProjects(_ *cobra.Command, _ []string) error {
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
	weekStart := pipeline.WeekStart(est.GeneratedAt, e.pipe.Limits().WeeklyResetDay)
	exact := e.counter.ProjectTokensSince(weekStart)
	var lifetime map[string]int64
	if flagProjectsAll {
		lifetime = e.counter.ScanAllProjects()
	}
	e.log.Debug("session files tracked", zap.Int("files", e.counter.Len()))

	if flagJSON {
		return printJSON(projectsOutput{Exact: exact, Estimated: est.Projects, Lifetime: lifetime})
	}

	fmt.Println()
	if len(exact) == 0 && len(est.Projects) == 0 {
		fmt.Println("  No project activity this week.")
		fmt.Println()
		return nil
	}
	if len(exact) > 0 {
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   "Session Logs (exact, this week)",
			Headers: []string{"Project", "Tokens"},
			Rows:    tokenRows(exact),
		}))
	}
	if len(est.Projects) > 0 {
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   "Weekly Share (by recent sessions)",
			Headers: []string{"Project", "Tokens"},
			Rows:    tokenRows(est.Projects),
		}))
	}
	if len(lifetime) > 0 {
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   "Session Logs (all time)",
			Headers: []string{"Project", "Tokens"},
			Rows:    tokenRows(lifetime),
		}))
	}
	fmt.Println()
	return nil
}

func tokenRows(m map[string]int64) [][]string {
	names := make([]string, 0, len(m))
	var total int64
	for n, v := range m {
		names = append(names, n)
		total += v
	}
	sort.Slice(names, func(i, j int) bool {
		if m[names[i]] != m[names[j]] {
			return m[names[i]] > m[names[j]]
		}
		return names[i] < names[j]
	})

	rows := make([][]string, 0, len(names)+2)
	for _, n := range names {
		rows = append(rows, []string{n, cli.FormatTokens(m[n])})
	}
	return append(rows, []string{"---"}, []string{"Total", cli.FormatTokens(total)})
}
