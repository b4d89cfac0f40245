// Package model defines domain types for burnmeter usage estimates.
package model

import "time"

// TokenCall represents one deduplicated API request (final state of a message.id).
type TokenCall struct {
	MessageID           string
	Model               string
	Timestamp           time.Time
	InputTokens         int64
	OutputTokens        int64
	CacheCreationTokens int64
	CacheReadTokens     int64
}

// IOTokens returns input plus output tokens.
func (c TokenCall) IOTokens() int64 {
	return c.InputTokens + c.OutputTokens
}

// TotalTokens returns every token the call consumed, cache traffic included.
func (c TokenCall) TotalTokens() int64 {
	return c.InputTokens + c.OutputTokens + c.CacheCreationTokens + c.CacheReadTokens
}

// FileUsage holds the parsed token calls of a single session log file,
// together with the file fingerprint used to decide whether it needs a rescan.
type FileUsage struct {
	Path          string
	SessionID     string
	Project       string
	ProjectDir    string
	ProjectPath   string
	IsSubagent    bool
	ParentSession string

	MtimeNs   int64
	SizeBytes int64

	StartTime    time.Time
	EndTime      time.Time
	UserMessages int

	Calls []TokenCall
}

// BelongsTo reports whether the file carries tokens for the given session,
// either as the main log or as one of its subagents.
func (f *FileUsage) BelongsTo(sessionID string) bool {
	if sessionID == "" {
		return false
	}
	if f.IsSubagent {
		return f.ParentSession == sessionID
	}
	return f.SessionID == sessionID
}

// TokensSince sums the total tokens of calls at or after since.
func (f *FileUsage) TokensSince(since time.Time) int64 {
	var n int64
	for _, c := range f.Calls {
		if !c.Timestamp.Before(since) {
			n += c.TotalTokens()
		}
	}
	return n
}
