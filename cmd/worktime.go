package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/burnmeter/internal/cli"
	"github.com/theirongolddev/burnmeter/internal/worktime"
)

var flagWorkDays int

var worktimeCmd = &cobra.Command{
	Use:   "worktime",
	Short: "Show active work time per day",
	RunE:  runWorktime,
}

func init() {
	worktimeCmd.Flags().IntVarP(&flagWorkDays, "days", "n", 7, "Number of days to show")
	rootCmd.AddCommand(worktimeCmd)
}

type workDay struct {
	Date    string  `json:"date"`
	Seconds float64 `json:"seconds"`
}

func runWorktime(_ *cobra.Command, _ []string) error {
	if flagWorkDays < 1 {
		return fmt.Errorf("--days must be at least 1, got %d", flagWorkDays)
	}

	e, err := newEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	days := e.work.LastDays(flagWorkDays)

	if flagJSON {
		out := make([]workDay, len(days))
		for i, d := range days {
			out[i] = workDay{Date: d.Day.Format("2006-01-02"), Seconds: d.Seconds}
		}
		return printJSON(out)
	}

	var total float64
	rows := make([][]string, 0, len(days)+2)
	trend := make([]float64, len(days))
	for i, d := range days {
		total += d.Seconds
		trend[len(days)-1-i] = d.Seconds
		rows = append(rows, []string{
			d.Day.Format("2006-01-02") + " " + cli.FormatDayOfWeek(int(d.Day.Weekday())),
			worktime.Format(d.Seconds),
		})
	}
	rows = append(rows, []string{"---"}, []string{"Total", worktime.Format(total)})

	fmt.Println()
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "Active Work Time",
		Headers: []string{"Day", "Worked"},
		Rows:    rows,
	}))
	fmt.Printf("  %s %s\n", cli.Muted("trend"), cli.RenderSparkline(trend))
	fmt.Println()
	return nil
}
