package source

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadHistory_TimestampEncodings(t *testing.T) {
	path := writeFile(t, "history.jsonl", strings.Join([]string{
		`{"sessionId":"a","timestamp":1748772000000,"project":"/p/one"}`,
		`{"sessionId":"a","timestamp":"1748772060000","projectPath":"/p/legacy"}`,
		`{"sessionId":"b","timestamp":"2025-06-01T10:02:00Z"}`,
		`{"sessionId":"b","timestamp":null}`,
		`{broken`,
		``,
	}, "\n"))

	entries, err := LoadHistory(path)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("len(entries) = %d, want 4", len(entries))
	}

	if got := entries[0].Timestamp.UnixMilli(); got != 1748772000000 {
		t.Errorf("entries[0] ms = %d, want 1748772000000", got)
	}
	if got := entries[1].Timestamp.UnixMilli(); got != 1748772060000 {
		t.Errorf("entries[1] ms = %d, want 1748772060000", got)
	}
	if entries[1].Project != "/p/legacy" {
		t.Errorf("entries[1].Project = %q, want legacy projectPath", entries[1].Project)
	}
	want := time.Date(2025, 6, 1, 10, 2, 0, 0, time.UTC)
	if !entries[2].Timestamp.Equal(want) {
		t.Errorf("entries[2] = %v, want %v", entries[2].Timestamp, want)
	}
	if !entries[3].Timestamp.IsZero() {
		t.Errorf("entries[3] = %v, want zero time", entries[3].Timestamp)
	}
}

func TestLoadHistory_SkipsOversizedLine(t *testing.T) {
	huge := `{"sessionId":"s1","timestamp":1748772060000,"display":"` + strings.Repeat("x", 3*1024*1024) + `"}`
	path := writeFile(t, "history.jsonl", strings.Join([]string{
		`{"sessionId":"s1","timestamp":1748772000000}`,
		huge,
		`{"sessionId":"s2","timestamp":1748772120000}`,
	}, "\n"))

	entries, err := LoadHistory(path)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[1].SessionID != "s2" {
		t.Errorf("last SessionID = %q, want s2", entries[1].SessionID)
	}
}

func TestLoadHistory_MissingFile(t *testing.T) {
	entries, err := LoadHistory(filepath.Join(t.TempDir(), "history.jsonl"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("len(entries) = %d, want 0", len(entries))
	}
}

func TestCurrentSession(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	path := writeFile(t, "history.jsonl", strings.Join([]string{
		`{"sessionId":"old","timestamp":` + ms(t0) + `}`,
		`{"sessionId":"cur","timestamp":` + ms(t0.Add(time.Hour)) + `}`,
		`{"sessionId":"old","timestamp":` + ms(t0.Add(2*time.Hour)) + `}`,
		`{"sessionId":"cur","timestamp":` + ms(t0.Add(3*time.Hour)) + `}`,
	}, "\n"))
	entries, err := LoadHistory(path)
	if err != nil {
		t.Fatal(err)
	}

	id, start := CurrentSession(entries)
	if id != "cur" {
		t.Errorf("id = %q, want cur", id)
	}
	if !start.Equal(t0.Add(time.Hour)) {
		t.Errorf("start = %v, want %v", start, t0.Add(time.Hour))
	}

	if id, _ := CurrentSession(nil); id != "" {
		t.Errorf("CurrentSession(nil) = %q, want empty", id)
	}
}

func ms(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
