package repository

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id      TEXT    NOT NULL UNIQUE,
	schema_version TEXT   NOT NULL,
	ts            INTEGER NOT NULL,
	source        TEXT    NOT NULL,
	app           TEXT    NOT NULL,
	event_type    TEXT    NOT NULL,
	priority      TEXT    NOT NULL,
	resource_type TEXT,
	resource_id   TEXT,
	payload       TEXT    NOT NULL,
	raw           TEXT    NOT NULL DEFAULT '',
	pii_level     TEXT,
	redaction     TEXT,
	pid           INTEGER,
	window_id     TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
CREATE INDEX IF NOT EXISTS idx_events_app ON events(app);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);

CREATE TABLE IF NOT EXISTS sessions (
	session_id   TEXT    PRIMARY KEY,
	start_ts     INTEGER NOT NULL,
	end_ts       INTEGER NOT NULL,
	duration_sec INTEGER NOT NULL,
	summary      TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_end ON sessions(end_ts);

CREATE TABLE IF NOT EXISTS routine_candidates (
	pattern_id   TEXT    PRIMARY KEY,
	pattern      TEXT    NOT NULL,
	support      INTEGER NOT NULL,
	confidence   REAL    NOT NULL,
	last_seen_ts INTEGER NOT NULL,
	evidence     TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS handoff_queue (
	package_id TEXT    PRIMARY KEY,
	created_at INTEGER NOT NULL,
	status     TEXT    NOT NULL,
	payload    TEXT    NOT NULL,
	size_bytes INTEGER NOT NULL,
	truncated  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_handoff_status ON handoff_queue(status, created_at);

CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS activity_details (
	app        TEXT    NOT NULL,
	title_hash TEXT    NOT NULL,
	total_sec  INTEGER NOT NULL DEFAULT 0,
	samples    INTEGER NOT NULL DEFAULT 0,
	last_ts    INTEGER NOT NULL,
	PRIMARY KEY (app, title_hash)
);
`

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("repository: migrate schema: %w", err)
	}
	return nil
}
