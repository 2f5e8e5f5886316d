package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var postgresSchema string

// sqliteSchema mirrors schema.sql with SQLite's narrower type system:
// JSONB becomes TEXT (stored as serialized JSON), BIGSERIAL becomes
// INTEGER PRIMARY KEY AUTOINCREMENT, TIMESTAMPTZ becomes TEXT (RFC3339).
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
    id                 TEXT PRIMARY KEY,
    display_name       TEXT NOT NULL DEFAULT '',
    role               TEXT NOT NULL DEFAULT 'user',
    permissions        TEXT NOT NULL DEFAULT '[]',
    soul               TEXT NOT NULL DEFAULT '{}',
    phone              TEXT NOT NULL DEFAULT '',
    notification_prefs TEXT NOT NULL DEFAULT '{}',
    created_at         TEXT NOT NULL,
    updated_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_facts (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    fact       TEXT NOT NULL,
    category   TEXT NOT NULL,
    confidence REAL NOT NULL DEFAULT 0,
    source     TEXT NOT NULL,
    embedding  TEXT,
    expires_at TEXT,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_user_facts_user ON user_facts(user_id);

CREATE TABLE IF NOT EXISTS conversation_history (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    channel    TEXT NOT NULL,
    role       TEXT NOT NULL,
    content    TEXT NOT NULL,
    metadata   TEXT,
    source     TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conv_user_channel ON conversation_history(user_id, channel, created_at);
CREATE INDEX IF NOT EXISTS idx_conv_user_time ON conversation_history(user_id, created_at);

CREATE TABLE IF NOT EXISTS scheduled_tasks (
    id            TEXT PRIMARY KEY,
    owner_user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    name          TEXT NOT NULL,
    cron          TEXT NOT NULL DEFAULT '',
    action        TEXT NOT NULL,
    enabled       INTEGER NOT NULL DEFAULT 1,
    last_run      TEXT,
    next_run      TEXT,
    locked_until  TEXT,
    created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_due ON scheduled_tasks(next_run);

CREATE TABLE IF NOT EXISTS alert_state (
    alert_key         TEXT PRIMARY KEY,
    alert_type        TEXT NOT NULL,
    severity          TEXT NOT NULL,
    message           TEXT NOT NULL,
    metadata          TEXT,
    first_triggered   TEXT NOT NULL,
    last_triggered    TEXT NOT NULL,
    resolved_at       TEXT,
    notification_sent INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS oauth_tokens (
    user_id             TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    provider            TEXT NOT NULL,
    access_token        TEXT NOT NULL,
    refresh_token       TEXT NOT NULL DEFAULT '',
    expiry              TEXT,
    scopes              TEXT,
    provider_account_id TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (user_id, provider)
);

CREATE TABLE IF NOT EXISTS ha_events (
    id                 TEXT PRIMARY KEY,
    event_type         TEXT NOT NULL,
    entity_id          TEXT NOT NULL DEFAULT '',
    old_state          TEXT NOT NULL DEFAULT '',
    new_state          TEXT NOT NULL DEFAULT '',
    attributes         TEXT,
    processed          INTEGER NOT NULL DEFAULT 0,
    notification_sent  INTEGER NOT NULL DEFAULT 0,
    received_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tool_usage (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    tool_name   TEXT NOT NULL,
    parameters  TEXT,
    result      TEXT,
    error       TEXT,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    channel     TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tool_usage_created ON tool_usage(created_at);

CREATE TABLE IF NOT EXISTS invite_codes (
    code        TEXT PRIMARY KEY,
    created_by  TEXT NOT NULL DEFAULT '',
    redeemed_by TEXT,
    redeemed_at TEXT,
    created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS service_credentials (
    id         TEXT PRIMARY KEY,
    service    TEXT NOT NULL,
    data       TEXT NOT NULL,
    created_at TEXT NOT NULL
);
`

func applySchema(ctx context.Context, db *sql.DB, dia dialect) error {
	stmt := postgresSchema
	if dia == dialectSQLite {
		stmt = sqliteSchema
	}
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("exec schema: %w", err)
	}
	return nil
}
