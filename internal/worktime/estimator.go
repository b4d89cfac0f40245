package worktime

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/theirongolddev/burnmeter/internal/source"
)

const (
	dayLayout      = "2006-01-02"
	cacheRetention = 8 * 24 * time.Hour
	weekDays       = 7
	// Files last modified more than this long before a day starts cannot
	// hold events for that day.
	mtimeSlack = time.Hour
)

// DailyStore persists closed-day totals.
type DailyStore interface {
	LoadDailyWork() (map[string]float64, error)
	SaveDailyWork(day string, seconds float64) error
	PruneDailyWork(cutoff string) (int64, error)
}

type fileKey struct {
	path string
	day  string
}

type fileEntry struct {
	mtime   time.Time
	seconds float64
}

// Estimator computes work seconds per calendar day across all projects.
// Per-file results are cached against the file's modification time and
// closed days are cached permanently once computed.
type Estimator struct {
	projectsDir string
	store       DailyStore
	log         *zap.Logger
	now         func() time.Time
	readEvents  func(path string) ([]source.Event, error)

	mu     sync.Mutex
	files  map[fileKey]fileEntry
	daily  map[string]float64
	warmed bool
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithStore persists closed-day totals.
func WithStore(s DailyStore) Option { return func(e *Estimator) { e.store = s } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(e *Estimator) { e.log = l } }

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option { return func(e *Estimator) { e.now = now } }

// WithEventReader replaces the session-log reader.
func WithEventReader(fn func(path string) ([]source.Event, error)) Option {
	return func(e *Estimator) { e.readEvents = fn }
}

// New creates an Estimator over the Claude data directory.
func New(claudeDir string, opts ...Option) *Estimator {
	e := &Estimator{
		projectsDir: source.ProjectsDir(claudeDir),
		log:         zap.NewNop(),
		now:         time.Now,
		readEvents:  source.ReadEvents,
		files:       make(map[fileKey]fileEntry),
		daily:       make(map[string]float64),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// WorkSecondsToday returns today's work seconds, always recomputed.
func (e *Estimator) WorkSecondsToday() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.daySeconds(startOfDay(e.now()))
}

// WorkSecondsThisWeek sums the last seven calendar days, today included.
func (e *Estimator) WorkSecondsThisWeek() float64 {
	var total float64
	for _, s := range e.LastDays(weekDays) {
		total += s.Seconds
	}
	return total
}

// DaySeconds is the work total of one calendar day.
type DaySeconds struct {
	Day     time.Time
	Seconds float64
}

// LastDays returns the work totals of the last n calendar days, newest first.
func (e *Estimator) LastDays(n int) []DaySeconds {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.warm()

	today := startOfDay(e.now())
	out := make([]DaySeconds, 0, n)
	for i := range n {
		day := today.AddDate(0, 0, -i)
		out = append(out, DaySeconds{Day: day, Seconds: e.closedOrToday(day, i == 0)})
	}
	return out
}

func (e *Estimator) closedOrToday(day time.Time, isToday bool) float64 {
	if isToday {
		return e.daySeconds(day)
	}
	key := day.Format(dayLayout)
	if secs, ok := e.daily[key]; ok {
		return secs
	}
	secs := e.daySeconds(day)
	e.daily[key] = secs
	if e.store != nil {
		if err := e.store.SaveDailyWork(key, secs); err != nil {
			e.log.Warn("saving daily work total", zap.String("day", key), zap.Error(err))
		}
	}
	return secs
}

// daySeconds sums the work seconds of every session file for one day.
// Callers hold e.mu.
func (e *Estimator) daySeconds(dayStart time.Time) float64 {
	dayEnd := dayStart.AddDate(0, 0, 1)
	key := dayStart.Format(dayLayout)

	var total float64
	for _, path := range e.sessionFiles() {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		mtime := info.ModTime()
		if mtime.Before(dayStart.Add(-mtimeSlack)) {
			continue
		}

		fk := fileKey{path: path, day: key}
		if cached, ok := e.files[fk]; ok && cached.mtime.Equal(mtime) {
			total += cached.seconds
			continue
		}

		events, err := e.readEvents(path)
		if err != nil {
			e.log.Debug("skipping session file", zap.String("path", path), zap.Error(err))
			continue
		}
		secs := ActiveSeconds(Window(events, dayStart, dayEnd))
		e.files[fk] = fileEntry{mtime: mtime, seconds: secs}
		total += secs
	}
	return total
}

// sessionFiles lists the top-level .jsonl files of each project directory.
// Subagent logs are not part of the user's conversation timeline.
func (e *Estimator) sessionFiles() []string {
	dirs, err := os.ReadDir(e.projectsDir)
	if err != nil {
		return nil
	}
	var out []string
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		dir := filepath.Join(e.projectsDir, d.Name())
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, f := range entries {
			if !f.IsDir() && strings.HasSuffix(f.Name(), ".jsonl") {
				out = append(out, filepath.Join(dir, f.Name()))
			}
		}
	}
	return out
}

// warm loads persisted closed-day totals once. Callers hold e.mu.
func (e *Estimator) warm() {
	if e.warmed {
		return
	}
	e.warmed = true
	if e.store == nil {
		return
	}
	daily, err := e.store.LoadDailyWork()
	if err != nil {
		e.log.Warn("loading daily work totals", zap.Error(err))
		return
	}
	today := startOfDay(e.now()).Format(dayLayout)
	for day, secs := range daily {
		if day < today {
			e.daily[day] = secs
		}
	}
}

// PruneCache discards file and daily entries older than eight days.
func (e *Estimator) PruneCache() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := startOfDay(e.now().Add(-cacheRetention)).Format(dayLayout)
	removed := 0
	for day := range e.daily {
		if day < cutoff {
			delete(e.daily, day)
			removed++
		}
	}
	for fk := range e.files {
		if fk.day < cutoff {
			delete(e.files, fk)
			removed++
		}
	}
	if e.store != nil {
		if _, err := e.store.PruneDailyWork(cutoff); err != nil {
			e.log.Warn("pruning daily work totals", zap.Error(err))
		}
	}
	return removed
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
