package lite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/google/uuid"
)

// OpenDB opens (and if needed creates) the standalone SQLite database.
// Unlike the Postgres backend, the schema is bootstrapped in-process:
// standalone mode has no migrations step.
func OpenDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return db, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			instance_id TEXT NOT NULL,
			remote_jid TEXT NOT NULL,
			contact_id TEXT,
			contact_name TEXT,
			ai_active INTEGER NOT NULL DEFAULT 1,
			pause_reason TEXT,
			last_message_text TEXT,
			last_message_at INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE (instance_id, remote_jid)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			direction TEXT NOT NULL,
			sender TEXT NOT NULL,
			kind TEXT NOT NULL,
			body TEXT NOT NULL,
			status TEXT NOT NULL,
			provider_message_id TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS memory_facts (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			type TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			source_message_id TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE (conversation_id, type, key)
		)`,
		`CREATE TABLE IF NOT EXISTS lead_scores (
			conversation_id TEXT PRIMARY KEY,
			score INTEGER NOT NULL,
			temperature TEXT NOT NULL,
			buying_stage TEXT,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS labels (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			name TEXT NOT NULL,
			color TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE (organization_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_labels (
			conversation_id TEXT NOT NULL,
			label_id TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (conversation_id, label_id)
		)`,
		`CREATE TABLE IF NOT EXISTS follow_ups (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			trigger_at INTEGER NOT NULL,
			status TEXT NOT NULL,
			intent TEXT NOT NULL,
			confidence REAL NOT NULL,
			context TEXT NOT NULL,
			source_message_id TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			fired_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_follow_ups_due ON follow_ups (status, trigger_at)`,
		`CREATE TABLE IF NOT EXISTS ai_logs (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			organization_id TEXT NOT NULL,
			action TEXT NOT NULL,
			details TEXT,
			message_id TEXT,
			triggered_by TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS summaries (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			content TEXT NOT NULL,
			key_points TEXT,
			message_count INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS contacts (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			name TEXT NOT NULL,
			phone TEXT,
			email TEXT,
			company TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS deals (
			id TEXT PRIMARY KEY,
			contact_id TEXT NOT NULL,
			title TEXT NOT NULL,
			stage TEXT NOT NULL,
			value REAL NOT NULL,
			status TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ai_agent_configs (
			instance_id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			agent_name TEXT,
			agent_role TEXT,
			tone TEXT,
			provider TEXT NOT NULL,
			model TEXT,
			max_output_tokens INTEGER NOT NULL DEFAULT 0,
			history_limit INTEGER NOT NULL DEFAULT 0,
			max_messages INTEGER NOT NULL DEFAULT 0,
			max_follow_ups INTEGER NOT NULL DEFAULT 0,
			default_follow_up_delay_minutes INTEGER NOT NULL DEFAULT 0,
			response_delay_seconds INTEGER NOT NULL DEFAULT 0,
			summary_every INTEGER NOT NULL DEFAULT 0,
			transfer_message TEXT,
			outside_hours_message TEXT,
			working_hours_start TEXT,
			working_hours_end TEXT,
			timezone TEXT,
			gateway_token TEXT,
			gateway_client_token TEXT
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// newID generates a time-ordered row id.
func newID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// SQLite columns store UUIDs as text and timestamps as unix milliseconds.

func toMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func nilMs(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func nilUUID(u *uuid.UUID) interface{} {
	if u == nil || *u == uuid.Nil {
		return nil
	}
	return *u
}

func nilStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
