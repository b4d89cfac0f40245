// Package worktime estimates active working time from the message timeline
// of Claude Code session logs.
package worktime

import (
	"sort"
	"time"

	"github.com/theirongolddev/burnmeter/internal/source"
)

const (
	// GapThreshold is the longest assistant→user gap still counted as work.
	GapThreshold = 20 * time.Minute
	// BufferAfter is credited for a break, or after a trailing assistant reply.
	BufferAfter = 5 * time.Minute
	// MinWorkSegment is the shortest gap counted at all.
	MinWorkSegment = 10 * time.Second
)

// ActiveSeconds applies the active-window model to a session's events.
// Only assistant→user transitions count: gaps under MinWorkSegment are noise,
// gaps up to GapThreshold (inclusive) count in full, and longer gaps are
// breaks credited with BufferAfter. A trailing assistant event earns one more
// BufferAfter. Fewer than two events yield zero.
func ActiveSeconds(events []source.Event) float64 {
	if len(events) < 2 {
		return 0
	}
	sorted := make([]source.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].At.Before(sorted[j].At) })

	var total time.Duration
	for i := 0; i < len(sorted)-1; i++ {
		cur, next := sorted[i], sorted[i+1]
		if cur.Role != source.RoleAssistant || next.Role != source.RoleUser {
			continue
		}
		gap := next.At.Sub(cur.At)
		switch {
		case gap < MinWorkSegment:
		case gap <= GapThreshold:
			total += gap
		default:
			total += BufferAfter
		}
	}
	if sorted[len(sorted)-1].Role == source.RoleAssistant {
		total += BufferAfter
	}
	return total.Seconds()
}

// Window returns the events with timestamps in [start, end).
func Window(events []source.Event, start, end time.Time) []source.Event {
	var out []source.Event
	for _, e := range events {
		if !e.At.Before(start) && e.At.Before(end) {
			out = append(out, e)
		}
	}
	return out
}
