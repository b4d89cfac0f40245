package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Tier is the confidence tag of a usage figure. Higher values are more trustworthy.
type Tier int

const (
	TierStatistical Tier = iota
	TierExactLocal
	TierCalibratedLocal
	TierAuthoritative
)

func (t Tier) String() string {
	switch t {
	case TierStatistical:
		return "statistical-estimate"
	case TierExactLocal:
		return "exact-local"
	case TierCalibratedLocal:
		return "calibrated-local"
	case TierAuthoritative:
		return "authoritative"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// MarshalJSON encodes the tier as its string name.
func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts the string names produced by MarshalJSON.
func (t *Tier) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for _, c := range []Tier{TierStatistical, TierExactLocal, TierCalibratedLocal, TierAuthoritative} {
		if c.String() == s {
			*t = c
			return nil
		}
	}
	return fmt.Errorf("unknown tier %q", s)
}

// Scope is a budget window.
type Scope int

const (
	ScopeWeekly Scope = iota
	ScopeDaily
	ScopeSession
)

func (s Scope) String() string {
	switch s {
	case ScopeWeekly:
		return "weekly"
	case ScopeDaily:
		return "daily"
	case ScopeSession:
		return "session"
	}
	return fmt.Sprintf("scope(%d)", int(s))
}

// Scopes lists every scope in display order.
var Scopes = []Scope{ScopeWeekly, ScopeDaily, ScopeSession}

// ScopeUsage is the usage of one budget window.
type ScopeUsage struct {
	Ratio    float64       `json:"ratio"`
	Tokens   int64         `json:"tokens"`
	Limit    int64         `json:"limit"`
	Tier     Tier          `json:"tier"`
	ResetsAt time.Time     `json:"resets_at,omitzero"`
	ResetsIn time.Duration `json:"resets_in_ns"`
}

// WindowCounts holds tokens, messages and sessions for one rolling window.
type WindowCounts struct {
	Tokens   int64 `json:"tokens"`
	Messages int   `json:"messages"`
	Sessions int   `json:"sessions"`
}

// RollingWindows groups the 24h, 7d, 30d and all-time counters.
type RollingWindows struct {
	Day     WindowCounts `json:"day"`
	Week    WindowCounts `json:"week"`
	Month   WindowCounts `json:"month"`
	AllTime WindowCounts `json:"all_time"`
}

// UsageEstimate is the result of one refresh cycle. It is built once and
// replaced wholesale by the next cycle.
type UsageEstimate struct {
	GeneratedAt time.Time `json:"generated_at"`
	CycleID     string    `json:"cycle_id"`
	SessionID   string    `json:"session_id,omitempty"`

	Weekly  ScopeUsage `json:"weekly"`
	Daily   ScopeUsage `json:"daily"`
	Session ScopeUsage `json:"session"`

	Windows    RollingWindows     `json:"windows"`
	ModelShare map[string]float64 `json:"model_share"`
	Projects   map[string]int64   `json:"projects"`

	WorkSecondsToday float64 `json:"work_seconds_today"`
	WorkSecondsWeek  float64 `json:"work_seconds_week"`

	CacheMultiplier   float64 `json:"cache_multiplier"`
	EquivalentCostUSD float64 `json:"equivalent_cost_usd"`
}

// Scope returns the usage of one window.
func (e *UsageEstimate) Scope(s Scope) ScopeUsage {
	switch s {
	case ScopeDaily:
		return e.Daily
	case ScopeSession:
		return e.Session
	}
	return e.Weekly
}

// Tier is the headline confidence tag, taken from the weekly scope.
func (e *UsageEstimate) Tier() Tier {
	return e.Weekly.Tier
}
