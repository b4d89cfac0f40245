package model

import "time"

// Limits are the configured token budgets. They act as the fallback
// denominators whenever no authoritative or calibrated limit is known.
type Limits struct {
	WeeklyTokens   int64
	DailyTokens    int64
	SessionTokens  int64
	WeeklyResetDay time.Weekday
}

// For returns the configured budget of a scope.
func (l Limits) For(s Scope) int64 {
	switch s {
	case ScopeWeekly:
		return l.WeeklyTokens
	case ScopeDaily:
		return l.DailyTokens
	case ScopeSession:
		return l.SessionTokens
	}
	return 0
}

// AuthoritativeUsage is the ground-truth utilization reported by claude.ai.
// Percentages are 0-100.
type AuthoritativeUsage struct {
	WeeklyPercent   float64
	WeeklyResetsAt  time.Time
	SessionPercent  float64
	SessionResetsAt time.Time
	FetchedAt       time.Time
}

// CalibrationSnapshot pairs an authoritative reading with the local token
// counts measured in the same refresh cycle.
type CalibrationSnapshot struct {
	Timestamp          time.Time `json:"timestamp"`
	WeeklyPercent      float64   `json:"weekly_percent"`
	SessionPercent     float64   `json:"session_percent"`
	WeeklyResetsAt     time.Time `json:"weekly_resets_at,omitzero"`
	SessionResetsAt    time.Time `json:"session_resets_at,omitzero"`
	LocalWeeklyTokens  int64     `json:"local_weekly_tokens"`
	LocalSessionTokens int64     `json:"local_session_tokens"`
}

// Pair returns the percentage and local token count recorded for a scope.
// Daily has no authoritative reading and yields zeros.
func (s CalibrationSnapshot) Pair(scope Scope) (percent float64, tokens int64) {
	switch scope {
	case ScopeWeekly:
		return s.WeeklyPercent, s.LocalWeeklyTokens
	case ScopeSession:
		return s.SessionPercent, s.LocalSessionTokens
	}
	return 0, 0
}
