// Package store provides a SQLite-backed cache for scan results, work-time
// totals and calibration snapshots.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/theirongolddev/burnmeter/internal/model"

	_ "modernc.org/sqlite" // register sqlite driver
)

// Cache provides SQLite-backed persistence.
type Cache struct {
	db *sql.DB
}

// Open opens or creates the cache database at the given path.
func Open(dbPath string) (*Cache, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the cache database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// SaveFileUsage stores a parsed session file and its token calls, replacing
// any previous rows for the same path.
func (c *Cache) SaveFileUsage(fu model.FileUsage) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	isSubagent := 0
	if fu.IsSubagent {
		isSubagent = 1
	}

	// Deleting first cascades to the old scan_calls rows.
	if _, err := tx.Exec("DELETE FROM scan_files WHERE file_path = ?", fu.Path); err != nil {
		return err
	}

	_, err = tx.Exec(`INSERT INTO scan_files
		(file_path, session_id, project, project_dir, project_path, is_subagent, parent_session,
		 start_time, end_time, user_messages, mtime_ns, size_bytes, parsed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fu.Path, fu.SessionID, fu.Project, fu.ProjectDir, fu.ProjectPath, isSubagent, fu.ParentSession,
		formatTime(fu.StartTime), formatTime(fu.EndTime), fu.UserMessages, fu.MtimeNs, fu.SizeBytes,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return err
	}

	for _, call := range fu.Calls {
		_, err = tx.Exec(`INSERT OR REPLACE INTO scan_calls
			(file_path, message_id, model, ts_unix_ms, input_tokens, output_tokens, cache_creation, cache_read)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			fu.Path, call.MessageID, call.Model, unixMilli(call.Timestamp),
			call.InputTokens, call.OutputTokens, call.CacheCreationTokens, call.CacheReadTokens,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadFileUsage reads every cached session file with its token calls.
func (c *Cache) LoadFileUsage() ([]model.FileUsage, error) {
	rows, err := c.db.Query(`SELECT
		file_path, session_id, project, project_dir, project_path, is_subagent, parent_session,
		start_time, end_time, user_messages, mtime_ns, size_bytes
		FROM scan_files`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var files []model.FileUsage
	for rows.Next() {
		var fu model.FileUsage
		var projectPath, parentSession, startStr, endStr sql.NullString
		var isSubagent int

		err := rows.Scan(
			&fu.Path, &fu.SessionID, &fu.Project, &fu.ProjectDir, &projectPath, &isSubagent, &parentSession,
			&startStr, &endStr, &fu.UserMessages, &fu.MtimeNs, &fu.SizeBytes,
		)
		if err != nil {
			return nil, err
		}
		fu.IsSubagent = isSubagent != 0
		fu.ProjectPath = projectPath.String
		fu.ParentSession = parentSession.String
		fu.StartTime = parseTime(startStr)
		fu.EndTime = parseTime(endStr)
		files = append(files, fu)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	callRows, err := c.db.Query(`SELECT
		file_path, message_id, model, ts_unix_ms, input_tokens, output_tokens, cache_creation, cache_read
		FROM scan_calls ORDER BY file_path, ts_unix_ms`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = callRows.Close() }()

	fileIdx := make(map[string]int, len(files))
	for i, f := range files {
		fileIdx[f.Path] = i
	}

	for callRows.Next() {
		var path string
		var ms int64
		var call model.TokenCall
		err := callRows.Scan(&path, &call.MessageID, &call.Model, &ms,
			&call.InputTokens, &call.OutputTokens, &call.CacheCreationTokens, &call.CacheReadTokens)
		if err != nil {
			return nil, err
		}
		if ms != 0 {
			call.Timestamp = time.UnixMilli(ms)
		}
		if idx, ok := fileIdx[path]; ok {
			files[idx].Calls = append(files[idx].Calls, call)
		}
	}

	return files, callRows.Err()
}

// DeleteFileUsage removes a cached session file and its calls.
func (c *Cache) DeleteFileUsage(filePath string) error {
	_, err := c.db.Exec("DELETE FROM scan_files WHERE file_path = ?", filePath)
	return err
}

// FileCount returns the number of cached session files.
func (c *Cache) FileCount() (int, error) {
	var count int
	err := c.db.QueryRow("SELECT COUNT(*) FROM scan_files").Scan(&count)
	return count, err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s.String)
	return t
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// Dir returns the platform-appropriate cache directory.
func Dir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "burnmeter")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "burnmeter")
}

// DefaultPath returns the full path to the cache database.
func DefaultPath() string {
	return filepath.Join(Dir(), "burnmeter.db")
}
