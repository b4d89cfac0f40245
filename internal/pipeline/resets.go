package pipeline

import "time"

// SessionWindow is the length of a rolling usage session.
const SessionWindow = 5 * time.Hour

// NextWeeklyReset returns the start of the next resetDay strictly after
// today. When today is the reset day the next reset is a week away.
func NextWeeklyReset(now time.Time, resetDay time.Weekday) time.Time {
	days := (int(resetDay) - int(now.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return StartOfDay(now).AddDate(0, 0, days)
}

// WeekStart returns the start of the current weekly window, the most recent
// reset day at or before today.
func WeekStart(now time.Time, resetDay time.Weekday) time.Time {
	return NextWeeklyReset(now, resetDay).AddDate(0, 0, -7)
}

// SessionResetsAt returns when the session that began at start ends. An
// unknown start is treated as a session beginning now.
func SessionResetsAt(start, now time.Time) time.Time {
	if start.IsZero() {
		return now.Add(SessionWindow)
	}
	return start.Add(SessionWindow)
}

// Until returns the time left before t, floored at zero.
func Until(t, now time.Time) time.Duration {
	return max(t.Sub(now), 0)
}

// StartOfDay truncates t to local midnight.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
