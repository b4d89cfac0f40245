package source

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/theirongolddev/burnmeter/internal/model"
)

// HistoryPath returns the location of the prompt history log.
func HistoryPath(claudeDir string) string {
	return filepath.Join(claudeDir, "history.jsonl")
}

type rawHistoryEntry struct {
	SessionID   string          `json:"sessionId"`
	Timestamp   json.RawMessage `json:"timestamp"`
	Project     string          `json:"project"`
	ProjectPath string          `json:"projectPath"` // legacy name
	Display     string          `json:"display"`
}

// LoadHistory reads history.jsonl in file order. Lines that fail to decode
// or exceed the line limit are skipped. On a read error the entries decoded
// so far are returned with it. A missing file yields no entries and no error.
func LoadHistory(path string) ([]model.HistoryEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening history: %w", err)
	}
	defer func() { _ = f.Close() }()

	var entries []model.HistoryEntry
	r := bufio.NewReaderSize(f, 64*1024)
	for {
		line, oversized, readErr := readBoundedLine(r, scanBufMax)
		if !oversized {
			if e, ok := decodeHistoryLine(line); ok {
				entries = append(entries, e)
			}
		}
		if errors.Is(readErr, io.EOF) {
			return entries, nil
		}
		if readErr != nil {
			return entries, fmt.Errorf("reading history: %w", readErr)
		}
	}
}

// readBoundedLine reads through the next newline. A line longer than limit
// is consumed and reported as oversized with no content.
func readBoundedLine(r *bufio.Reader, limit int) ([]byte, bool, error) {
	var line []byte
	oversized := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !oversized {
			if len(line)+len(chunk) > limit {
				oversized, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, oversized, err
	}
}

func decodeHistoryLine(line []byte) (model.HistoryEntry, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return model.HistoryEntry{}, false
	}
	var raw rawHistoryEntry
	if err := json.Unmarshal(line, &raw); err != nil {
		return model.HistoryEntry{}, false
	}
	e := model.HistoryEntry{
		SessionID: raw.SessionID,
		Project:   raw.Project,
		Display:   raw.Display,
	}
	if e.Project == "" {
		e.Project = raw.ProjectPath
	}
	if ts, ok := parseHistoryTimestamp(raw.Timestamp); ok {
		e.Timestamp = ts
	}
	return e, true
}

// parseHistoryTimestamp accepts epoch milliseconds encoded as a JSON number
// or as a string, plus RFC 3339 strings.
func parseHistoryTimestamp(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, false
	}

	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return millisToTime(string(num))
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, false
	}
	if t, ok := millisToTime(s); ok {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func millisToTime(s string) (time.Time, bool) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.UnixMilli(int64(f)), true
	}
	return time.Time{}, false
}

// CurrentSession returns the session id of the most recent history entry
// and the timestamp of that session's first entry.
func CurrentSession(entries []model.HistoryEntry) (id string, start time.Time) {
	if len(entries) == 0 {
		return "", time.Time{}
	}
	id = entries[len(entries)-1].SessionID
	if id == "" {
		return "", time.Time{}
	}
	for _, e := range entries {
		if e.SessionID == id && !e.Timestamp.IsZero() {
			return id, e.Timestamp
		}
	}
	return id, time.Time{}
}
