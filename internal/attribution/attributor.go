// Package attribution splits weekly token usage across projects in
// proportion to their recent session activity.
package attribution

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/theirongolddev/burnmeter/internal/source"
)

// RecentWindow is how far back a session file's modification time may be
// to count as recent activity.
const RecentWindow = 7 * 24 * time.Hour

// Project is a known project and the directory holding its session logs.
type Project struct {
	Name       string
	Path       string
	SessionDir string
}

// Key identifies the project in attribution output: its path when known,
// its name otherwise.
func (p Project) Key() string {
	if p.Path != "" {
		return p.Path
	}
	return p.Name
}

// Attributor counts recent session files per project.
type Attributor struct {
	projectsDir string
	now         func() time.Time
}

// Option configures an Attributor.
type Option func(*Attributor)

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option { return func(a *Attributor) { a.now = now } }

// New creates an Attributor over the Claude data directory.
func New(claudeDir string, opts ...Option) *Attributor {
	a := &Attributor{projectsDir: source.ProjectsDir(claudeDir), now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// SessionDir returns the log directory of p.
func (a *Attributor) SessionDir(p Project) string {
	if p.SessionDir != "" {
		return p.SessionDir
	}
	return filepath.Join(a.projectsDir, source.ProjectDirName(p.Path))
}

// RecentSessions counts the top-level session files of p modified within
// RecentWindow. A missing directory counts zero.
func (a *Attributor) RecentSessions(p Project) int {
	entries, err := os.ReadDir(a.SessionDir(p))
	if err != nil {
		return 0
	}
	cutoff := a.now().Add(-RecentWindow)
	return lo.CountBy(entries, func(e os.DirEntry) bool {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			return false
		}
		info, err := e.Info()
		return err == nil && !info.ModTime().Before(cutoff)
	})
}

// Attribute assigns weeklyTokens × recent/totalSessions to each project.
// The denominator is raised to the sum of recent counts when totalSessions
// is smaller, so shares never exceed the whole. Projects whose share rounds
// to zero are omitted.
func (a *Attributor) Attribute(projects []Project, weeklyTokens int64, totalSessions int) map[string]int64 {
	out := make(map[string]int64)
	if weeklyTokens <= 0 {
		return out
	}

	recent := lo.Map(projects, func(p Project, _ int) int { return a.RecentSessions(p) })
	denom := max(totalSessions, lo.Sum(recent))
	if denom <= 0 {
		return out
	}

	for i, p := range projects {
		if recent[i] == 0 {
			continue
		}
		if n := int64(float64(weeklyTokens) * float64(recent[i]) / float64(denom)); n > 0 {
			out[p.Key()] += n
		}
	}
	return out
}

// DiscoverProjects lists every project directory under the Claude data
// directory, resolving each project's path from the cwd of its newest session.
func DiscoverProjects(claudeDir string) ([]Project, error) {
	projectsDir := source.ProjectsDir(claudeDir)
	dirs, err := os.ReadDir(projectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var projects []Project
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		dir := filepath.Join(projectsDir, d.Name())
		projects = append(projects, Project{
			Name:       source.DecodeProjectName(d.Name()),
			Path:       newestCwd(dir),
			SessionDir: dir,
		})
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Key() < projects[j].Key() })
	return projects, nil
}

func newestCwd(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	type file struct {
		path  string
		mtime time.Time
	}
	files := lo.FilterMap(entries, func(e os.DirEntry, _ int) (file, bool) {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			return file{}, false
		}
		info, err := e.Info()
		if err != nil {
			return file{}, false
		}
		return file{path: filepath.Join(dir, e.Name()), mtime: info.ModTime()}, true
	})
	sort.Slice(files, func(i, j int) bool { return files[i].mtime.After(files[j].mtime) })
	for _, f := range files {
		if cwd := source.FirstCwd(f.path); cwd != "" {
			return cwd
		}
	}
	return ""
}
