package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/theirongolddev/burnmeter/internal/model"
)

// Plan identifiers accepted in [general].plan.
const (
	PlanPro    = "pro"
	PlanMax5x  = "max5x"
	PlanMax20x = "max20x"
)

// Fallback budgets used when neither [limits] nor a plan supplies one.
const (
	DefaultWeeklyTokens  int64 = 2_000_000_000
	DefaultSessionTokens int64 = 200_000_000
)

// PlanPreset is the weekly and session budget of a subscription plan.
type PlanPreset struct {
	WeeklyTokens  int64
	SessionTokens int64
}

// PlanPresets maps plan identifiers to their budgets.
var PlanPresets = map[string]PlanPreset{
	PlanPro:    {WeeklyTokens: 100_000_000, SessionTokens: 10_000_000},
	PlanMax5x:  {WeeklyTokens: 500_000_000, SessionTokens: 50_000_000},
	PlanMax20x: {WeeklyTokens: 2_000_000_000, SessionTokens: 200_000_000},
}

// PlanNames returns the known plan identifiers, smallest first.
func PlanNames() []string {
	return []string{PlanPro, PlanMax5x, PlanMax20x}
}

// PlanInfo holds detected Claude subscription plan info.
type PlanInfo struct {
	BillingType string
	Plan        string
}

// DetectPlan reads ~/.claude/.claude.json to determine the billing plan.
// Unknown or unreadable files yield an empty Plan.
func DetectPlan(claudeDir string) PlanInfo {
	path := filepath.Join(claudeDir, ".claude.json")
	data, err := os.ReadFile(path) //nolint:gosec // path is constructed from known claudeDir
	if err != nil {
		return PlanInfo{}
	}

	var raw struct {
		BillingType string `json:"billingType"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return PlanInfo{}
	}

	info := PlanInfo{BillingType: raw.BillingType}

	switch raw.BillingType {
	case "stripe_subscription":
		info.Plan = PlanMax20x
	case "":
	default:
		info.Plan = PlanPro
	}

	return info
}

// ResolveLimits merges explicit [limits], the plan preset and the built-in
// defaults, in that order of precedence.
func ResolveLimits(cfg Config, claudeDir string) model.Limits {
	plan := strings.ToLower(strings.TrimSpace(cfg.General.Plan))
	if plan == "" {
		plan = DetectPlan(claudeDir).Plan
	}

	lim := model.Limits{
		WeeklyTokens:   DefaultWeeklyTokens,
		SessionTokens:  DefaultSessionTokens,
		WeeklyResetDay: time.Monday,
	}
	if p, ok := PlanPresets[plan]; ok {
		lim.WeeklyTokens = p.WeeklyTokens
		lim.SessionTokens = p.SessionTokens
	}

	if cfg.Limits.WeeklyTokens > 0 {
		lim.WeeklyTokens = cfg.Limits.WeeklyTokens
	}
	if cfg.Limits.SessionTokens > 0 {
		lim.SessionTokens = cfg.Limits.SessionTokens
	}
	lim.DailyTokens = lim.WeeklyTokens / 7
	if cfg.Limits.DailyTokens > 0 {
		lim.DailyTokens = cfg.Limits.DailyTokens
	}
	if d := cfg.Limits.WeeklyResetDay; d != nil && *d >= 0 && *d <= 6 {
		lim.WeeklyResetDay = time.Weekday(*d)
	}

	return lim
}
