package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/burnmeter/internal/calibration"
	"github.com/theirongolddev/burnmeter/internal/cli"
	"github.com/theirongolddev/burnmeter/internal/model"
)

var calibrationCmd = &cobra.Command{
	Use:   "calibration",
	Short: "Inspect or clear calibration snapshots",
	RunE:  runCalibrationList,
}

var calibrationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored snapshots and the effective limits derived from them",
	RunE:  runCalibrationList,
}

var calibrationClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every stored snapshot",
	RunE:  runCalibrationClear,
}

func init() {
	calibrationCmd.AddCommand(calibrationListCmd)
	calibrationCmd.AddCommand(calibrationClearCmd)
	rootCmd.AddCommand(calibrationCmd)
}

type effectiveLimit struct {
	Scope      string `json:"scope"`
	Configured int64  `json:"configured"`
	Effective  int64  `json:"effective,omitempty"`
	Calibrated bool   `json:"calibrated"`
}

type calibrationOutput struct {
	Snapshots []model.CalibrationSnapshot `json:"snapshots"`
	Limits    []effectiveLimit            `json:"limits"`
}

func runCalibrationList(_ *cobra.Command, _ []string) error {
	e, err := newEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := context.Background()
	snaps, err := e.calib.Snapshots(ctx)
	if err != nil {
		return fmt.Errorf("loading snapshots: %w", err)
	}

	limits := e.pipe.Limits()
	out := calibrationOutput{Snapshots: snaps}
	for _, scope := range model.Scopes {
		var (
			eff int64
			ok  bool
		)
		if scope == model.ScopeDaily {
			eff, ok = e.calib.EffectiveDailyLimit(ctx, limits)
		} else {
			eff, ok = e.calib.EffectiveLimit(ctx, scope, limits.For(scope))
		}
		out.Limits = append(out.Limits, effectiveLimit{
			Scope:      scope.String(),
			Configured: limits.For(scope),
			Effective:  eff,
			Calibrated: ok,
		})
	}

	if flagJSON {
		return printJSON(out)
	}

	fmt.Println()
	if len(snaps) == 0 {
		fmt.Println("  No calibration snapshots yet. They are recorded whenever live")
		fmt.Println("  claude.ai data reports a window at 100%.")
		fmt.Println()
	} else {
		now := time.Now()
		rows := make([][]string, 0, len(snaps))
		for _, s := range snaps {
			age := now.Sub(s.Timestamp)
			stale := ""
			if age > calibration.MaxAge {
				stale = " (stale)"
			}
			rows = append(rows, []string{
				s.Timestamp.Local().Format("Jan 02 15:04"),
				fmt.Sprintf("%.0f%%", s.WeeklyPercent),
				cli.FormatTokens(s.LocalWeeklyTokens),
				fmt.Sprintf("%.0f%%", s.SessionPercent),
				cli.FormatTokens(s.LocalSessionTokens),
				cli.FormatCountdown(age) + stale,
			})
		}
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   "Calibration Snapshots",
			Headers: []string{"Taken", "Weekly", "Local Weekly", "Session", "Local Session", "Age"},
			Rows:    rows,
		}))
	}

	rows := make([][]string, 0, len(out.Limits))
	for _, l := range out.Limits {
		eff := cli.Muted("fallback")
		if l.Calibrated {
			eff = cli.FormatTokens(l.Effective)
		}
		rows = append(rows, []string{l.Scope, cli.FormatTokens(l.Configured), eff})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "Limits",
		Headers: []string{"Scope", "Configured", "Effective"},
		Rows:    rows,
	}))
	fmt.Println()
	return nil
}

func runCalibrationClear(_ *cobra.Command, _ []string) error {
	e, err := newEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.calib.Clear(context.Background()); err != nil {
		return fmt.Errorf("clearing snapshots: %w", err)
	}
	fmt.Println("  Calibration snapshots cleared.")
	return nil
}
