package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/burnmeter/internal/model"
)

var base = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func assistantLine(id string, at time.Time, in, out, cacheRead int64) string {
	return fmt.Sprintf(`{"type":"assistant","timestamp":%q,"message":{"id":%q,"model":"claude-opus-4-6","usage":{"input_tokens":%d,"output_tokens":%d,"cache_read_input_tokens":%d}}}`,
		at.Format(time.RFC3339), id, in, out, cacheRead)
}

func writeLog(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
}

func fixture(t *testing.T) (claudeDir string, projDir string) {
	t.Helper()
	claudeDir = t.TempDir()
	projDir = filepath.Join(claudeDir, "projects", "-Users-me-projects-alpha")

	writeLog(t, filepath.Join(projDir, "s1.jsonl"),
		assistantLine("a", base.Add(-48*time.Hour), 100, 0, 0),
		assistantLine("b", base.Add(-time.Hour), 10, 20, 70),
	)
	writeLog(t, filepath.Join(projDir, "s1", "subagents", "agent-x.jsonl"),
		assistantLine("c", base.Add(-30*time.Minute), 5, 5, 0),
	)
	writeLog(t, filepath.Join(claudeDir, "projects", "-Users-me-projects-beta", "s2.jsonl"),
		assistantLine("d", base.Add(-2*time.Hour), 1000, 0, 0),
	)
	return claudeDir, projDir
}

func TestCounterQueries(t *testing.T) {
	claudeDir, _ := fixture(t)
	c := New(claudeDir, WithNow(func() time.Time { return base }))

	st, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalFiles)
	assert.Equal(t, 3, st.ParsedFiles)

	assert.Equal(t, int64(1210), c.TotalTokens(time.Time{}))
	assert.Equal(t, int64(1110), c.TotalTokens(base.Add(-3*time.Hour)))
	assert.Equal(t, int64(110), c.TotalTokens(base.Add(-90*time.Minute)))

	// Subagent tokens count toward the parent session.
	assert.Equal(t, int64(210), c.CurrentSessionTokens("s1"))
	assert.Equal(t, int64(1000), c.CurrentSessionTokens("s2"))
	assert.Zero(t, c.CurrentSessionTokens(""))

	assert.Equal(t, map[string]int64{"alpha": 210, "beta": 1000}, c.ScanAllProjects())
	assert.Equal(t, map[string]int64{"alpha": 110}, c.ProjectTokensSince(base.Add(-90*time.Minute)))

	mu := c.ModelUsageSince(base.Add(-90 * time.Minute))
	require.Contains(t, mu, "claude-opus-4-6")
	assert.Equal(t, int64(70), mu["claude-opus-4-6"].CacheReadInputTokens)
	assert.Equal(t, int64(110), mu["claude-opus-4-6"].TotalTokens())
}

func TestCounterReusesUnchangedFiles(t *testing.T) {
	claudeDir, projDir := fixture(t)
	c := New(claudeDir)
	ctx := context.Background()

	_, err := c.Refresh(ctx)
	require.NoError(t, err)

	st, err := c.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.CachedFiles)
	assert.Equal(t, 0, st.ParsedFiles)

	path := filepath.Join(projDir, "s1.jsonl")
	writeLog(t, path, assistantLine("a", base, 1, 1, 1))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	st, err = c.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ParsedFiles)
	assert.Equal(t, 2, st.CachedFiles)
	assert.Equal(t, int64(13), c.CurrentSessionTokens("s1"))

	require.NoError(t, os.Remove(path))
	st, err = c.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Removed)
	assert.Equal(t, 2, c.Len())
}

func TestCounterSkipsUnreadableFiles(t *testing.T) {
	claudeDir, projDir := fixture(t)
	// A line longer than the scanner's max buffer makes the whole file fail.
	writeLog(t, filepath.Join(projDir, "huge.jsonl"), strings.Repeat("x", 3*1024*1024))

	c := New(claudeDir)
	st, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.FileErrors)
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, int64(1210), c.TotalTokens(time.Time{}))
}

type memStore struct {
	mu    sync.Mutex
	files map[string]model.FileUsage
	saves int
}

func (m *memStore) LoadFileUsage() ([]model.FileUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.FileUsage, 0, len(m.files))
	for _, f := range m.files {
		out = append(out, f)
	}
	return out, nil
}

func (m *memStore) SaveFileUsage(f model.FileUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[f.Path] = f
	m.saves++
	return nil
}

func (m *memStore) DeleteFileUsage(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

func TestCounterWarmsFromStore(t *testing.T) {
	claudeDir, _ := fixture(t)
	st := &memStore{files: make(map[string]model.FileUsage)}

	first := New(claudeDir, WithStore(st))
	_, err := first.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, st.saves)

	second := New(claudeDir, WithStore(st))
	rs, err := second.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rs.CachedFiles)
	assert.Equal(t, 0, rs.ParsedFiles)
	assert.Equal(t, 3, st.saves)
	assert.Equal(t, int64(1210), second.TotalTokens(time.Time{}))
}

func TestCounterPrune(t *testing.T) {
	claudeDir, projDir := fixture(t)
	old := time.Now().Add(-60 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(projDir, "s1.jsonl"), old, old))

	c := New(claudeDir)
	_, err := c.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, c.Prune(31*24*time.Hour))
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 0, c.Prune(31*24*time.Hour))
}

func TestCounterPruneThenRefreshSkipsExpired(t *testing.T) {
	claudeDir, projDir := fixture(t)
	old := time.Now().Add(-60 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(projDir, "s1.jsonl"), old, old))

	c := New(claudeDir)
	_, err := c.Refresh(context.Background())
	require.NoError(t, err)

	for range 3 {
		c.Prune(31 * 24 * time.Hour)
		st, err := c.Refresh(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, st.ParsedFiles)
		assert.Equal(t, 1, st.Expired)
		assert.Equal(t, 2, c.Len())
	}
}

func TestCounterMissingClaudeDir(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "nope"))
	st, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.TotalFiles)
	assert.Zero(t, c.TotalTokens(time.Time{}))
}

func TestCounterProgress(t *testing.T) {
	claudeDir, _ := fixture(t)
	var mu sync.Mutex
	var last, total int
	c := New(claudeDir, WithConcurrency(1), WithProgress(func(cur, tot int) {
		mu.Lock()
		defer mu.Unlock()
		last, total = cur, tot
	}))
	_, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, last)
	assert.Equal(t, 3, total)
}
