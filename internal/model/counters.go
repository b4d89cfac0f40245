package model

import "time"

// DailyActivity is one day of message, session and tool-call counts
// from the Claude Code stats cache.
type DailyActivity struct {
	Date          string `json:"date"`
	MessageCount  int    `json:"messageCount"`
	SessionCount  int    `json:"sessionCount"`
	ToolCallCount int    `json:"toolCallCount"`
}

// DailyModelTokens is one day of IO tokens keyed by model identifier.
type DailyModelTokens struct {
	Date          string           `json:"date"`
	TokensByModel map[string]int64 `json:"tokensByModel"`
}

// ModelTotals is the lifetime token breakdown for one model.
type ModelTotals struct {
	InputTokens              int64   `json:"inputTokens"`
	OutputTokens             int64   `json:"outputTokens"`
	CacheReadInputTokens     int64   `json:"cacheReadInputTokens"`
	CacheCreationInputTokens int64   `json:"cacheCreationInputTokens"`
	CostUSD                  float64 `json:"costUSD"`
}

// IOTokens returns input plus output tokens.
func (m ModelTotals) IOTokens() int64 {
	return m.InputTokens + m.OutputTokens
}

// TotalTokens returns every token type summed.
func (m ModelTotals) TotalTokens() int64 {
	return m.InputTokens + m.OutputTokens + m.CacheReadInputTokens + m.CacheCreationInputTokens
}

// StatsCache mirrors ~/.claude/stats-cache.json. The daily sections only
// record IO tokens; ModelUsage carries the full cumulative breakdown.
type StatsCache struct {
	Version          int                    `json:"version"`
	LastComputedDate string                 `json:"lastComputedDate"`
	DailyActivity    []DailyActivity        `json:"dailyActivity"`
	DailyModelTokens []DailyModelTokens     `json:"dailyModelTokens"`
	ModelUsage       map[string]ModelTotals `json:"modelUsage"`
	TotalSessions    int                    `json:"totalSessions"`
	TotalMessages    int                    `json:"totalMessages"`
	HourCounts       map[string]int         `json:"hourCounts"`
}

// HistoryEntry is one line of ~/.claude/history.jsonl.
type HistoryEntry struct {
	SessionID string
	Timestamp time.Time
	Project   string
	Display   string
}
