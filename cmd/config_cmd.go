package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/burnmeter/internal/cli"
	"github.com/theirongolddev/burnmeter/internal/config"
	"github.com/theirongolddev/burnmeter/internal/store"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	claudeDir := flagClaudeDir
	if claudeDir == "" {
		claudeDir = config.ClaudeDir(cfg)
	}

	if flagJSON {
		cfg.ClaudeAI.SessionKey = maskKey(config.GetSessionKey(cfg))
		return printJSON(cfg)
	}

	fmt.Printf("  Config file: %s\n", config.ConfigPath())
	if config.Exists() {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [General]")
	fmt.Printf("    Claude directory: %s\n", claudeDir)
	if cfg.General.Plan != "" {
		fmt.Printf("    Plan:             %s\n", cfg.General.Plan)
	} else if detected := config.DetectPlan(claudeDir); detected.Plan != "" {
		fmt.Printf("    Plan:             %s (auto-detected from %s billing)\n", detected.Plan, detected.BillingType)
	} else {
		fmt.Println("    Plan:             unknown (using default limits)")
	}
	if cfg.General.Theme != "" {
		fmt.Printf("    Theme:            %s\n", cfg.General.Theme)
	}
	fmt.Println()

	fmt.Println("  [Claude.ai]")
	if key := config.GetSessionKey(cfg); key != "" {
		fmt.Printf("    Session key:        %s\n", maskKey(key))
	} else {
		fmt.Println("    Session key:        not configured")
	}
	if cfg.ClaudeAI.OrgID != "" {
		fmt.Printf("    Org ID:             %s\n", cfg.ClaudeAI.OrgID)
	}
	fmt.Printf("    Fetch timeout:      %s\n", cfg.ClaudeAI.FetchTimeout)
	fmt.Printf("    Min fetch interval: %s\n", cfg.ClaudeAI.MinFetchInterval)
	fmt.Println()

	lim := config.ResolveLimits(cfg, claudeDir)
	fmt.Println("  [Limits]")
	fmt.Printf("    Weekly:    %s tokens\n", cli.FormatTokens(lim.WeeklyTokens))
	fmt.Printf("    Daily:     %s tokens\n", cli.FormatTokens(lim.DailyTokens))
	fmt.Printf("    Session:   %s tokens\n", cli.FormatTokens(lim.SessionTokens))
	fmt.Printf("    Resets on: %s\n", cli.FormatDayOfWeek(int(lim.WeeklyResetDay)))
	fmt.Println()

	th := cfg.Thresholds
	fmt.Println("  [Thresholds]")
	fmt.Printf("    Weekly:  warn %s, critical %s\n", cli.FormatPercent(th.WeeklyWarning), cli.FormatPercent(th.WeeklyCritical))
	fmt.Printf("    Session: warn %s, critical %s\n", cli.FormatPercent(th.SessionWarning), cli.FormatPercent(th.SessionCritical))
	fmt.Println()

	d := cfg.Daemon
	fmt.Println("  [Daemon]")
	fmt.Printf("    Address:  %s\n", d.Addr)
	fmt.Printf("    Interval: %s\n", d.Interval)
	fmt.Printf("    Watch:    %v\n", d.Watch)
	fmt.Println()

	fmt.Println("  [Cache]")
	fmt.Printf("    Path:  %s\n", store.DefaultPath())
	if c, err := store.Open(store.DefaultPath()); err != nil {
		fmt.Printf("    Files: unavailable (%v)\n", err)
	} else {
		if n, err := c.FileCount(); err == nil {
			fmt.Printf("    Files: %d\n", n)
		}
		_ = c.Close()
	}
	fmt.Println()

	if len(cfg.Projects) > 0 {
		fmt.Println("  [Projects]")
		for _, p := range cfg.Projects {
			fmt.Printf("    %-20s %s\n", p.Name, p.Path)
		}
		fmt.Println()
	}

	fmt.Println("  Run `burnmeter setup` to reconfigure.")
	return nil
}

func maskKey(key string) string {
	switch {
	case key == "":
		return ""
	case len(key) > 16:
		return key[:8] + "..." + key[len(key)-4:]
	case len(key) > 4:
		return key[:4] + "..."
	}
	return "****"
}
