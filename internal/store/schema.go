package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS scan_files (
    file_path            TEXT PRIMARY KEY,
    session_id           TEXT NOT NULL,
    project              TEXT NOT NULL,
    project_dir          TEXT NOT NULL,
    project_path         TEXT,
    is_subagent          INTEGER NOT NULL DEFAULT 0,
    parent_session       TEXT,
    start_time           TEXT,
    end_time             TEXT,
    user_messages        INTEGER NOT NULL DEFAULT 0,
    mtime_ns             INTEGER NOT NULL,
    size_bytes           INTEGER NOT NULL,
    parsed_at            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_calls (
    file_path            TEXT NOT NULL REFERENCES scan_files(file_path) ON DELETE CASCADE,
    message_id           TEXT NOT NULL,
    model                TEXT NOT NULL,
    ts_unix_ms           INTEGER NOT NULL,
    input_tokens         INTEGER NOT NULL,
    output_tokens        INTEGER NOT NULL,
    cache_creation       INTEGER NOT NULL,
    cache_read           INTEGER NOT NULL,
    PRIMARY KEY (file_path, message_id)
);

CREATE TABLE IF NOT EXISTS worktime_daily (
    day                  TEXT PRIMARY KEY,
    seconds              REAL NOT NULL,
    computed_at          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS kv (
    key                  TEXT PRIMARY KEY,
    value                BLOB NOT NULL,
    updated_at           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scan_files_session ON scan_files(session_id);
CREATE INDEX IF NOT EXISTS idx_scan_calls_ts ON scan_calls(ts_unix_ms);
`
