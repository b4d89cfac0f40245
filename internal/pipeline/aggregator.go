// Package pipeline reconciles the authoritative, calibrated, exact-scan and
// statistical usage sources into one UsageEstimate per refresh cycle.
package pipeline

import (
	"time"

	"github.com/samber/lo"

	"github.com/theirongolddev/burnmeter/internal/model"
)

const dayLayout = "2006-01-02"

// Rolling window lengths in calendar days.
const (
	DayWindow   = 1
	WeekWindow  = 7
	MonthWindow = 30
)

func parseDay(s string) (time.Time, bool) {
	t, err := time.ParseInLocation(dayLayout, s, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Cutoff returns start of today minus n days.
func Cutoff(now time.Time, days int) time.Time {
	return StartOfDay(now).AddDate(0, 0, -days)
}

// RawTokensSince sums the IO tokens of every daily entry dated at or after
// since. Entries with an unparseable date are ignored.
func RawTokensSince(sc model.StatsCache, since time.Time) int64 {
	var total int64
	for _, d := range sc.DailyModelTokens {
		day, ok := parseDay(d.Date)
		if !ok || day.Before(since) {
			continue
		}
		total += lo.Sum(lo.Values(d.TokensByModel))
	}
	return total
}

// ActivitySince sums messages and sessions of daily activity dated at or
// after since.
func ActivitySince(sc model.StatsCache, since time.Time) (messages, sessions int) {
	for _, a := range sc.DailyActivity {
		day, ok := parseDay(a.Date)
		if !ok || day.Before(since) {
			continue
		}
		messages += a.MessageCount
		sessions += a.SessionCount
	}
	return messages, sessions
}

// AllTimeTokens sums the cumulative per-model totals, falling back to the raw
// daily sum when the cumulative section is absent.
func AllTimeTokens(sc model.StatsCache) int64 {
	if len(sc.ModelUsage) > 0 {
		return lo.SumBy(lo.Values(sc.ModelUsage), func(mt model.ModelTotals) int64 {
			return mt.TotalTokens()
		})
	}
	return RawTokensSince(sc, time.Time{})
}

// Windows computes the 24h, 7d, 30d and all-time counters. Period tokens are
// inflated by the cache multiplier.
func Windows(sc model.StatsCache, now time.Time, multiplier float64) model.RollingWindows {
	window := func(days int) model.WindowCounts {
		cut := Cutoff(now, days)
		msgs, sess := ActivitySince(sc, cut)
		return model.WindowCounts{
			Tokens:   Inflate(RawTokensSince(sc, cut), multiplier),
			Messages: msgs,
			Sessions: sess,
		}
	}
	return model.RollingWindows{
		Day:   window(DayWindow),
		Week:  window(WeekWindow),
		Month: window(MonthWindow),
		AllTime: model.WindowCounts{
			Tokens:   AllTimeTokens(sc),
			Messages: sc.TotalMessages,
			Sessions: sc.TotalSessions,
		},
	}
}

// ModelShare returns each model's fraction of the last week's daily tokens.
// Proportions need no multiplier. Empty when nothing was recorded.
func ModelShare(sc model.StatsCache, now time.Time) map[string]float64 {
	cut := Cutoff(now, WeekWindow)
	totals := make(map[string]int64)
	for _, d := range sc.DailyModelTokens {
		day, ok := parseDay(d.Date)
		if !ok || day.Before(cut) {
			continue
		}
		for m, n := range d.TokensByModel {
			totals[m] += n
		}
	}

	sum := lo.Sum(lo.Values(totals))
	if sum <= 0 {
		return map[string]float64{}
	}
	return lo.MapValues(totals, func(n int64, _ string) float64 {
		return float64(n) / float64(sum)
	})
}

// SessionShare approximates the current session's tokens as today's tokens
// scaled by the session's share of today's history entries, capped at one.
// It assumes every message costs the same. Without history the whole of
// today is attributed to the session.
func SessionShare(todayTokens int64, history []model.HistoryEntry, sessionID string, dayStart time.Time) int64 {
	if len(history) == 0 || sessionID == "" {
		return todayTokens
	}
	today := lo.CountBy(history, func(h model.HistoryEntry) bool {
		return !h.Timestamp.IsZero() && !h.Timestamp.Before(dayStart)
	})
	session := lo.CountBy(history, func(h model.HistoryEntry) bool {
		return h.SessionID == sessionID
	})
	ratio := min(float64(session)/float64(max(today, 1)), 1.0)
	return int64(float64(todayTokens) * ratio)
}
