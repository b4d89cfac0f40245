package worktime

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/burnmeter/internal/source"
)

// now is fixed in the past so files written during the test always look
// recently modified.
var now = time.Date(2025, 6, 10, 15, 0, 0, 0, time.Local)

func line(typ string, at time.Time) string {
	return fmt.Sprintf(`{"type":%q,"timestamp":%q}`, typ, at.UTC().Format(time.RFC3339))
}

func writeLog(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
}

type countingReader struct {
	mu    sync.Mutex
	reads int
}

func (c *countingReader) read(path string) ([]source.Event, error) {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	return source.ReadEvents(path)
}

func (c *countingReader) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// fixture writes one session today (10 min of work) and one spanning
// yesterday (15 min) and today (5 min trailing buffer).
func fixture(t *testing.T) (claudeDir, todayFile string) {
	t.Helper()
	claudeDir = t.TempDir()
	proj := filepath.Join(claudeDir, "projects", "-Users-me-projects-alpha")
	today := startOfDay(now)
	yesterday := today.AddDate(0, 0, -1)

	todayFile = filepath.Join(proj, "today.jsonl")
	writeLog(t, todayFile,
		line("assistant", today.Add(9*time.Hour)),
		line("user", today.Add(9*time.Hour+10*time.Minute)),
	)
	writeLog(t, filepath.Join(proj, "span.jsonl"),
		line("assistant", yesterday.Add(20*time.Hour)),
		line("user", yesterday.Add(20*time.Hour+15*time.Minute)),
		line("user", today.Add(8*time.Hour)),
		line("assistant", today.Add(8*time.Hour+time.Minute)),
	)
	// Subagent logs are ignored.
	writeLog(t, filepath.Join(proj, "span", "subagents", "agent-a.jsonl"),
		line("assistant", today.Add(time.Hour)),
		line("user", today.Add(time.Hour+time.Minute)),
	)
	return claudeDir, todayFile
}

func TestEstimatorTodayAndWeek(t *testing.T) {
	claudeDir, _ := fixture(t)
	e := New(claudeDir, WithNow(func() time.Time { return now }))

	assert.InDelta(t, 600+300, e.WorkSecondsToday(), 1e-9)
	assert.InDelta(t, 600+300+900, e.WorkSecondsThisWeek(), 1e-9)

	days := e.LastDays(3)
	require.Len(t, days, 3)
	assert.True(t, days[0].Day.Equal(startOfDay(now)))
	assert.InDelta(t, 900, days[1].Seconds, 1e-9)
	assert.Zero(t, days[2].Seconds)
}

func TestEstimatorReusesUnchangedFiles(t *testing.T) {
	claudeDir, todayFile := fixture(t)
	r := &countingReader{}
	e := New(claudeDir, WithNow(func() time.Time { return now }), WithEventReader(r.read))

	first := e.WorkSecondsToday()
	reads := r.count()
	require.Equal(t, 2, reads)

	assert.Equal(t, first, e.WorkSecondsToday())
	assert.Equal(t, reads, r.count(), "unchanged files must not be rescanned")

	touch := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(todayFile, touch, touch))
	e.WorkSecondsToday()
	assert.Equal(t, reads+1, r.count())
}

func TestEstimatorClosedDaysArePermanent(t *testing.T) {
	claudeDir, _ := fixture(t)
	r := &countingReader{}
	e := New(claudeDir, WithNow(func() time.Time { return now }), WithEventReader(r.read))

	week := e.WorkSecondsThisWeek()
	after := r.count()

	// Rewriting a file changes its mtime. Today is recomputed, closed days are not.
	span := filepath.Join(claudeDir, "projects", "-Users-me-projects-alpha", "span.jsonl")
	writeLog(t, span, line("user", startOfDay(now).Add(8*time.Hour)))
	touch := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(span, touch, touch))

	got := e.WorkSecondsThisWeek()
	assert.Equal(t, after+1, r.count(), "only today's entry for the rewritten file is read")
	assert.InDelta(t, week-300, got, 1e-9)
}

type memDaily struct {
	days   map[string]float64
	pruned string
}

func (m *memDaily) LoadDailyWork() (map[string]float64, error) {
	out := make(map[string]float64, len(m.days))
	for k, v := range m.days {
		out[k] = v
	}
	return out, nil
}

func (m *memDaily) SaveDailyWork(day string, seconds float64) error {
	m.days[day] = seconds
	return nil
}

func (m *memDaily) PruneDailyWork(cutoff string) (int64, error) {
	m.pruned = cutoff
	var n int64
	for k := range m.days {
		if k < cutoff {
			delete(m.days, k)
			n++
		}
	}
	return n, nil
}

func TestEstimatorPersistsClosedDays(t *testing.T) {
	claudeDir, _ := fixture(t)
	st := &memDaily{days: make(map[string]float64)}

	New(claudeDir, WithNow(func() time.Time { return now }), WithStore(st)).WorkSecondsThisWeek()
	assert.Len(t, st.days, 6, "six closed days persisted, today never")

	yesterday := startOfDay(now).AddDate(0, 0, -1).Format(dayLayout)
	st.days[yesterday] = 4242

	r := &countingReader{}
	e := New(claudeDir, WithNow(func() time.Time { return now }), WithStore(st), WithEventReader(r.read))
	days := e.LastDays(2)
	assert.InDelta(t, 4242, days[1].Seconds, 1e-9)
	assert.Equal(t, 2, r.count(), "only today is read")
}

func TestEstimatorPruneCache(t *testing.T) {
	claudeDir, _ := fixture(t)
	clock := now
	st := &memDaily{days: make(map[string]float64)}
	e := New(claudeDir, WithNow(func() time.Time { return clock }), WithStore(st))

	e.WorkSecondsThisWeek()
	assert.Zero(t, e.PruneCache())

	clock = now.AddDate(0, 0, 20)
	assert.Positive(t, e.PruneCache())
	assert.Empty(t, e.daily)
	assert.Empty(t, e.files)
	assert.Equal(t, startOfDay(clock.Add(-cacheRetention)).Format(dayLayout), st.pruned)
}

func TestEstimatorMissingDir(t *testing.T) {
	e := New(filepath.Join(t.TempDir(), "missing"))
	assert.Zero(t, e.WorkSecondsToday())
	assert.Zero(t, e.WorkSecondsThisWeek())
}
