package scan

import (
	"time"

	"github.com/theirongolddev/burnmeter/internal/model"
)

// TotalTokens sums every token of calls at or after since, across all files.
func (c *Counter) TotalTokens(since time.Time) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var n int64
	for _, fu := range c.files {
		n += fu.TokensSince(since)
	}
	return n
}

// CurrentSessionTokens sums the tokens of a session, subagents included.
func (c *Counter) CurrentSessionTokens(sessionID string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var n int64
	for _, fu := range c.files {
		if fu.BelongsTo(sessionID) {
			n += fu.TokensSince(time.Time{})
		}
	}
	return n
}

// ScanAllProjects returns tokens per project display name across every
// tracked file. Files past a pruning retention are not tracked.
func (c *Counter) ScanAllProjects() map[string]int64 {
	return c.ProjectTokensSince(time.Time{})
}

// ProjectTokensSince returns tokens per project display name for calls at or
// after since. Projects with no tokens in the window are omitted.
func (c *Counter) ProjectTokensSince(since time.Time) map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]int64)
	for _, fu := range c.files {
		if n := fu.TokensSince(since); n > 0 {
			out[fu.Project] += n
		}
	}
	return out
}

// ModelUsageSince aggregates the token breakdown per model for calls at or
// after since.
func (c *Counter) ModelUsageSince(since time.Time) map[string]model.ModelTotals {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]model.ModelTotals)
	for _, fu := range c.files {
		for _, call := range fu.Calls {
			if call.Timestamp.Before(since) {
				continue
			}
			mt := out[call.Model]
			mt.InputTokens += call.InputTokens
			mt.OutputTokens += call.OutputTokens
			mt.CacheCreationInputTokens += call.CacheCreationTokens
			mt.CacheReadInputTokens += call.CacheReadTokens
			out[call.Model] = mt
		}
	}
	return out
}
