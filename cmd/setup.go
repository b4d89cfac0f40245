package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/burnmeter/internal/claudeai"
	"github.com/theirongolddev/burnmeter/internal/cli"
	"github.com/theirongolddev/burnmeter/internal/config"
	"github.com/theirongolddev/burnmeter/internal/source"
	"github.com/theirongolddev/burnmeter/internal/tui/theme"
)

const planAuto = "auto"

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-time setup wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

type setupValues struct {
	Plan       string
	SessionKey string
	ResetDay   int
	Theme      string
}

func runSetup(_ *cobra.Command, _ []string) error {
	cfg, _ := config.Load()
	claudeDir := flagClaudeDir
	if claudeDir == "" {
		claudeDir = config.ClaudeDir(cfg)
	}

	fmt.Println()
	fmt.Println("  Welcome to burnmeter!")
	if files, err := source.ScanDir(claudeDir); err == nil && len(files) > 0 {
		fmt.Printf("  Found %s session logs in %s (%d projects)\n",
			cli.FormatNumber(int64(len(files))), claudeDir, source.CountProjects(files))
	}
	fmt.Println()

	vals := initialSetupValues(cfg)
	existing := config.GetSessionKey(cfg)
	if err := newSetupForm(&vals, existing, config.DetectPlan(claudeDir).Plan).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("  Setup cancelled, nothing saved.")
			return nil
		}
		return fmt.Errorf("setup form: %w", err)
	}

	applySetup(&cfg, vals)
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Saved to %s\n", config.ConfigPath())
	fmt.Println("  Run `burnmeter setup` anytime to reconfigure.")
	fmt.Println()
	return nil
}

func initialSetupValues(cfg config.Config) setupValues {
	vals := setupValues{
		Plan:     cfg.General.Plan,
		ResetDay: int(time.Monday),
		Theme:    cfg.General.Theme,
	}
	if vals.Plan == "" {
		vals.Plan = planAuto
	}
	if d := cfg.Limits.WeeklyResetDay; d != nil {
		vals.ResetDay = *d
	}
	if vals.Theme == "" {
		vals.Theme = theme.FlexokiDark.Name
	}
	return vals
}

func newSetupForm(vals *setupValues, existingKey, detectedPlan string) *huh.Form {
	auto := "Auto-detect"
	if detectedPlan != "" {
		auto += " (" + detectedPlan + ")"
	}
	plans := []huh.Option[string]{huh.NewOption(auto, planAuto)}
	for _, name := range config.PlanNames() {
		preset := config.PlanPresets[name]
		plans = append(plans, huh.NewOption(
			fmt.Sprintf("%s (%s weekly, %s per session)", name,
				cli.FormatTokens(preset.WeeklyTokens), cli.FormatTokens(preset.SessionTokens)),
			name))
	}

	days := make([]huh.Option[int], 7)
	for i := range days {
		w := time.Weekday(i)
		days[i] = huh.NewOption(w.String(), i)
	}

	themes := make([]huh.Option[string], len(theme.All))
	for i, t := range theme.All {
		themes[i] = huh.NewOption(t.Name, t.Name)
	}

	keyDesc := "From claude.ai cookies (sessionKey). Leave blank to skip."
	if existingKey != "" {
		keyDesc = "Current: " + maskKey(existingKey) + ". Leave blank to keep it."
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Subscription plan").
				Description("Sets the fallback token budgets.").
				Options(plans...).
				Value(&vals.Plan),
			huh.NewSelect[int]().
				Title("Weekly reset day").
				Options(days...).
				Value(&vals.ResetDay),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("claude.ai session key").
				Description(keyDesc).
				EchoMode(huh.EchoModePassword).
				Value(&vals.SessionKey).
				Validate(validateSessionKey),
			huh.NewSelect[string]().
				Title("Watch theme").
				Options(themes...).
				Value(&vals.Theme),
		),
	)
}

func validateSessionKey(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || claudeai.NewClient(s) != nil {
		return nil
	}
	return errors.New("expected a key starting with sk-ant-sid")
}

// applySetup writes form values into cfg. A blank session key keeps the
// stored one.
func applySetup(cfg *config.Config, vals setupValues) {
	cfg.General.Plan = vals.Plan
	if vals.Plan == planAuto {
		cfg.General.Plan = ""
	}
	if key := strings.TrimSpace(vals.SessionKey); key != "" {
		cfg.ClaudeAI.SessionKey = key
	}
	day := vals.ResetDay
	cfg.Limits.WeeklyResetDay = &day
	cfg.General.Theme = vals.Theme
}
