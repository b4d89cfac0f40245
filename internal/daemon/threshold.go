package daemon

import (
	"fmt"

	"github.com/theirongolddev/burnmeter/internal/config"
	"github.com/theirongolddev/burnmeter/internal/model"
)

// Level is the alert level of a usage ratio.
type Level int

const (
	LevelNormal Level = iota
	LevelWarning
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	}
	return "normal"
}

// MarshalText encodes the level by name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a level name.
func (l *Level) UnmarshalText(b []byte) error {
	switch string(b) {
	case "normal":
		*l = LevelNormal
	case "warning":
		*l = LevelWarning
	case "critical":
		*l = LevelCritical
	default:
		return fmt.Errorf("unknown level %q", b)
	}
	return nil
}

// Crossing reports a scope moving from one alert level to another.
type Crossing struct {
	Scope string  `json:"scope"`
	From  Level   `json:"from"`
	To    Level   `json:"to"`
	Ratio float64 `json:"ratio"`
	Tier  string  `json:"tier"`
}

// thresholdTracker remembers the last level per scope. Only the weekly and
// session scopes carry thresholds.
type thresholdTracker struct {
	cfg  config.ThresholdsConfig
	last map[model.Scope]Level
}

func newThresholdTracker(cfg config.ThresholdsConfig) *thresholdTracker {
	return &thresholdTracker{cfg: cfg, last: make(map[model.Scope]Level)}
}

func (t *thresholdTracker) level(scope model.Scope, ratio float64) Level {
	warn, crit := t.cfg.WeeklyWarning, t.cfg.WeeklyCritical
	if scope == model.ScopeSession {
		warn, crit = t.cfg.SessionWarning, t.cfg.SessionCritical
	}
	switch {
	case crit > 0 && ratio >= crit:
		return LevelCritical
	case warn > 0 && ratio >= warn:
		return LevelWarning
	}
	return LevelNormal
}

// evaluate returns the crossings since the previous call. The first call
// compares against LevelNormal.
func (t *thresholdTracker) evaluate(est *model.UsageEstimate) []Crossing {
	var out []Crossing
	for _, scope := range []model.Scope{model.ScopeWeekly, model.ScopeSession} {
		u := est.Scope(scope)
		lvl := t.level(scope, u.Ratio)
		prev := t.last[scope]
		t.last[scope] = lvl
		if lvl == prev {
			continue
		}
		out = append(out, Crossing{
			Scope: scope.String(),
			From:  prev,
			To:    lvl,
			Ratio: u.Ratio,
			Tier:  u.Tier.String(),
		})
	}
	return out
}
