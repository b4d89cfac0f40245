// Package source reads the Claude Code data directory: JSONL session logs,
// the stats cache and the prompt history.
package source

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/theirongolddev/burnmeter/internal/model"
)

// Byte patterns for field extraction.
var (
	patTimestamp1 = []byte(`"timestamp":"`)
	patTimestamp2 = []byte(`"timestamp": "`)
	patCwd1       = []byte(`"cwd":"`)
	patCwd2       = []byte(`"cwd": "`)
)

const (
	scanBufInit = 256 * 1024
	scanBufMax  = 2 * 1024 * 1024
)

// ParseResult holds the output of parsing a single JSONL file.
type ParseResult struct {
	Usage       model.FileUsage
	ParseErrors int
	Err         error
}

// ParseFile reads a JSONL session file and produces its deduplicated token calls.
// It deduplicates by message.id, keeping only the last entry per ID (final billed usage).
//
// Entry routing by top-level "type" field:
//   - "user", "system" → byte-level extraction (timestamp, cwd, count)
//   - "assistant"      → full JSON parse (token usage, model)
//   - everything else  → skip
func ParseFile(df DiscoveredFile) ParseResult {
	f, err := os.Open(df.Path)
	if err != nil {
		return ParseResult{Err: err}
	}
	defer func() { _ = f.Close() }()

	calls := make(map[string]model.TokenCall)
	var order []string

	var (
		userMessages int
		parseErrors  int
		minTime      time.Time
		maxTime      time.Time
		cwd          string
	)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, scanBufInit), scanBufMax)

	for scanner.Scan() {
		line := scanner.Bytes()

		entryType := extractTopLevelType(line)
		if entryType == "" {
			continue
		}

		switch entryType {
		case "user", "system":
			if entryType == "user" {
				userMessages++
			}
			if ts, ok := extractTimestampBytes(line); ok {
				updateTimeRange(&minTime, &maxTime, ts)
			}
			if cwd == "" {
				if c := extractCwdBytes(line); c != "" {
					cwd = c
				}
			}

		case "assistant":
			var entry RawEntry
			if err := json.Unmarshal(line, &entry); err != nil {
				parseErrors++
				continue
			}

			ts, tsErr := time.Parse(time.RFC3339Nano, entry.Timestamp)
			if tsErr == nil {
				updateTimeRange(&minTime, &maxTime, ts)
			}
			if cwd == "" && entry.Cwd != "" {
				cwd = entry.Cwd
			}

			if entry.Message == nil || entry.Message.ID == "" || entry.Message.Usage == nil {
				continue
			}
			msg := entry.Message
			u := msg.Usage

			cacheCreate := u.CacheCreationInputTokens
			if u.CacheCreation != nil {
				if sum := u.CacheCreation.Ephemeral5mInputTokens + u.CacheCreation.Ephemeral1hInputTokens; sum > 0 {
					cacheCreate = sum
				}
			}

			if _, seen := calls[msg.ID]; !seen {
				order = append(order, msg.ID)
			}
			calls[msg.ID] = model.TokenCall{
				MessageID:           msg.ID,
				Model:               msg.Model,
				Timestamp:           ts,
				InputTokens:         u.InputTokens,
				OutputTokens:        u.OutputTokens,
				CacheCreationTokens: cacheCreate,
				CacheReadTokens:     u.CacheReadInputTokens,
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return ParseResult{Err: err}
	}

	usage := model.FileUsage{
		Path:          df.Path,
		SessionID:     df.SessionID,
		Project:       df.Project,
		ProjectDir:    df.ProjectDir,
		ProjectPath:   cwd,
		IsSubagent:    df.IsSubagent,
		ParentSession: df.ParentSession,
		MtimeNs:       df.MtimeNs,
		SizeBytes:     df.SizeBytes,
		StartTime:     minTime,
		EndTime:       maxTime,
		UserMessages:  userMessages,
		Calls:         make([]model.TokenCall, 0, len(order)),
	}
	for _, id := range order {
		usage.Calls = append(usage.Calls, calls[id])
	}

	return ParseResult{
		Usage:       usage,
		ParseErrors: parseErrors,
	}
}

// ReadEvents extracts the ordered user and assistant message timestamps of a
// session file. Lines without a parseable timestamp are skipped.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, scanBufInit), scanBufMax)

	for scanner.Scan() {
		line := scanner.Bytes()

		var role Role
		switch extractTopLevelType(line) {
		case "user":
			role = RoleUser
		case "assistant":
			role = RoleAssistant
		default:
			continue
		}

		ts, ok := extractTimestampBytes(line)
		if !ok {
			continue
		}
		events = append(events, Event{At: ts, Role: role})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].At.Before(events[j].At)
	})
	return events, nil
}

// typeKey is the byte sequence for a JSON key named "type" (with quotes).
var typeKey = []byte(`"type"`)

// extractTopLevelType finds the top-level "type" field in a JSONL line.
// Tracks brace depth and string boundaries so nested "type" keys are ignored.
// Early-exits once found (~400 bytes in), making cost O(1) vs line length.
func extractTopLevelType(line []byte) string {
	depth := 0
	for i := 0; i < len(line); {
		switch line[i] {
		case '"':
			if depth == 1 && bytes.HasPrefix(line[i:], typeKey) {
				val, isKey := classifyType(line, i+len(typeKey))
				if isKey {
					return val // found the "type" key — done regardless of value
				}
				// "type" appeared as a value, not a key. Continue scanning.
			}
			i = skipJSONString(line, i)
		case '{':
			depth++
			i++
		case '}':
			depth--
			i++
		default:
			i++
		}
	}
	return ""
}

// classifyType checks whether pos follows a JSON key (expects : then value).
// Returns the type value and whether this was a valid key:value pair.
// isKey=false means "type" appeared as a value, not a key — caller should continue.
func classifyType(line []byte, pos int) (val string, isKey bool) {
	i := skipSpaces(line, pos)
	if i >= len(line) || line[i] != ':' {
		return "", false // no colon — this was a value, not a key
	}
	i = skipSpaces(line, i+1)
	if i >= len(line) || line[i] != '"' {
		return "", true // key with non-string value (null, number, etc.)
	}
	i++ // past opening quote

	end := bytes.IndexByte(line[i:], '"')
	if end < 0 || end > 20 {
		return "", true
	}
	v := string(line[i : i+end])
	switch v {
	case "assistant", "user", "system":
		return v, true
	}
	return "", true // valid key but irrelevant type (e.g., "progress")
}

// skipJSONString advances past a JSON string starting at the opening quote.
//
//nolint:gosec // manual bounds checking throughout
func skipJSONString(line []byte, i int) int {
	i++ // skip opening quote
	for i < len(line) {
		switch line[i] {
		case '\\':
			i += 2
		case '"':
			return i + 1
		default:
			i++
		}
	}
	return i
}

func skipSpaces(line []byte, i int) int {
	for i < len(line) && line[i] == ' ' {
		i++
	}
	return i
}

// extractTimestampBytes extracts the timestamp field via byte scanning.
func extractTimestampBytes(line []byte) (time.Time, bool) {
	for _, pat := range [][]byte{patTimestamp1, patTimestamp2} {
		idx := bytes.Index(line, pat)
		if idx < 0 {
			continue
		}
		start := idx + len(pat)
		end := bytes.IndexByte(line[start:], '"')
		if end < 0 || end > 40 {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, string(line[start:start+end]))
		if err != nil {
			return time.Time{}, false
		}
		return ts, true
	}
	return time.Time{}, false
}

// extractCwdBytes extracts the cwd field via byte scanning.
func extractCwdBytes(line []byte) string {
	for _, pat := range [][]byte{patCwd1, patCwd2} {
		idx := bytes.Index(line, pat)
		if idx < 0 {
			continue
		}
		start := idx + len(pat)
		end := bytes.IndexByte(line[start:], '"')
		if end < 0 || end > 1024 {
			continue
		}
		return string(line[start : start+end])
	}
	return ""
}

func updateTimeRange(minTime, maxTime *time.Time, ts time.Time) {
	if minTime.IsZero() || ts.Before(*minTime) {
		*minTime = ts
	}
	if maxTime.IsZero() || ts.After(*maxTime) {
		*maxTime = ts
	}
}

// FirstCwd returns the first cwd recorded in a session file, or "".
func FirstCwd(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, scanBufInit), scanBufMax)
	for scanner.Scan() {
		if c := extractCwdBytes(scanner.Bytes()); c != "" {
			return c
		}
	}
	return ""
}
