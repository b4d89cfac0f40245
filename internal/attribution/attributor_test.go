package attribution

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/burnmeter/internal/source"
)

func touch(t *testing.T, path string, mtime time.Time, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func setup(t *testing.T) (string, []Project) {
	t.Helper()
	claude := t.TempDir()
	now := time.Now()
	projects := []Project{
		{Name: "alpha", Path: "/work/alpha"},
		{Name: "beta", Path: "/work/beta"},
		{Name: "idle", Path: "/work/idle"},
		{Name: "ghost", Path: "/work/ghost"},
	}
	dir := func(p string) string { return filepath.Join(source.ProjectsDir(claude), source.ProjectDirName(p)) }

	touch(t, filepath.Join(dir("/work/alpha"), "a1.jsonl"), now.Add(-time.Hour), `{"cwd":"/work/alpha"}`)
	touch(t, filepath.Join(dir("/work/alpha"), "a2.jsonl"), now.Add(-6*24*time.Hour), "")
	touch(t, filepath.Join(dir("/work/alpha"), "a3.jsonl"), now.Add(-8*24*time.Hour), "")
	touch(t, filepath.Join(dir("/work/alpha"), "notes.txt"), now, "")
	touch(t, filepath.Join(dir("/work/beta"), "b1.jsonl"), now.Add(-2*time.Hour), `{"cwd":"/work/beta"}`)
	touch(t, filepath.Join(dir("/work/idle"), "i1.jsonl"), now.Add(-30*24*time.Hour), "")
	return claude, projects
}

func TestRecentSessions(t *testing.T) {
	claude, projects := setup(t)
	a := New(claude)

	assert.Equal(t, 2, a.RecentSessions(projects[0]))
	assert.Equal(t, 1, a.RecentSessions(projects[1]))
	assert.Equal(t, 0, a.RecentSessions(projects[2]))
	assert.Equal(t, 0, a.RecentSessions(projects[3]), "missing directory counts zero")
}

func TestAttributeProportional(t *testing.T) {
	claude, projects := setup(t)
	a := New(claude)

	got := a.Attribute(projects, 1_000_000, 10)
	assert.Equal(t, map[string]int64{
		"/work/alpha": 200_000,
		"/work/beta":  100_000,
	}, got)
	assert.NotContains(t, got, "/work/idle", "zero-count projects are omitted")
	assert.NotContains(t, got, "/work/ghost")
}

func TestAttributeDenominatorNeverBelowRecent(t *testing.T) {
	claude, projects := setup(t)
	a := New(claude)

	got := a.Attribute(projects, 900, 1)
	assert.Equal(t, map[string]int64{"/work/alpha": 600, "/work/beta": 300}, got)

	got = a.Attribute(projects, 900, 0)
	assert.Equal(t, int64(600), got["/work/alpha"])
}

func TestAttributeEmpty(t *testing.T) {
	claude, projects := setup(t)
	a := New(claude)

	assert.Empty(t, a.Attribute(projects, 0, 10))
	assert.Empty(t, a.Attribute(nil, 1_000, 10))
	// A share that truncates to zero is omitted rather than reported as zero.
	assert.NotContains(t, a.Attribute(projects, 3, 1_000), "/work/alpha")
}

func TestDiscoverProjects(t *testing.T) {
	claude, _ := setup(t)

	projects, err := DiscoverProjects(claude)
	require.NoError(t, err)
	require.Len(t, projects, 3)

	byName := make(map[string]Project)
	for _, p := range projects {
		byName[p.Name] = p
	}
	assert.Equal(t, "/work/alpha", byName["alpha"].Path)
	assert.Equal(t, "/work/beta", byName["beta"].Path)
	assert.Empty(t, byName["idle"].Path)

	a := New(claude)
	got := a.Attribute(projects, 1_000_000, 10)
	assert.Equal(t, int64(200_000), got["/work/alpha"])
	assert.Equal(t, int64(100_000), got["/work/beta"])
}

func TestDiscoverProjectsMissingDir(t *testing.T) {
	projects, err := DiscoverProjects(filepath.Join(t.TempDir(), "none"))
	require.NoError(t, err)
	assert.Empty(t, projects)
}
