// Package cache is the relational Cache Store (§4.3): a single SQLite file
// under WAL holding folders, emails, attachments metadata, sync cursors,
// the outbox queue, and background jobs. Grounded on lorduskordus-aerion's
// internal/message/store.go (raw database/sql, modernc.org/sqlite, NULL-safe
// scanning, batch tx) generalized across every table this module needs.
package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store wraps the single SQLite connection pool backing the cache. All
// cache mutation goes through here; no caller opens its own *sql.DB.
type Store struct {
	db *sql.DB
}

// Open opens (creating parent directories and the file as needed) the
// cache database at path and runs Migrate. WAL is enabled so reads never
// block the outbox/sync writers.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cache: mkdir %s: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}
	// modernc.org/sqlite serializes writes internally; a single physical
	// connection avoids "database is locked" under WAL from this process.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for components (jobs, outbox) that are
// grounded on their own teacher files and expect raw database/sql access.
func (s *Store) DB() *sql.DB { return s.db }

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	email_address TEXT PRIMARY KEY,
	display_name  TEXT NOT NULL DEFAULT '',
	provider      TEXT NOT NULL DEFAULT '',
	is_active     INTEGER NOT NULL DEFAULT 1,
	is_default    INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS folders (
	id            TEXT PRIMARY KEY,
	account_email TEXT NOT NULL REFERENCES accounts(email_address),
	name          TEXT NOT NULL,
	delimiter     TEXT NOT NULL DEFAULT '',
	attributes    TEXT NOT NULL DEFAULT '[]',
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL,
	UNIQUE(account_email, name)
);
CREATE INDEX IF NOT EXISTS idx_folders_account ON folders(account_email);

CREATE TABLE IF NOT EXISTS emails (
	id              TEXT PRIMARY KEY,
	folder_id       TEXT NOT NULL REFERENCES folders(id),
	uid             INTEGER NOT NULL,
	message_id      TEXT NOT NULL DEFAULT '',
	thread_id       TEXT NOT NULL DEFAULT '',
	in_reply_to     TEXT NOT NULL DEFAULT '',
	direction       TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT '',
	subject         TEXT NOT NULL DEFAULT '',
	from_address    TEXT NOT NULL DEFAULT '',
	from_name       TEXT NOT NULL DEFAULT '',
	reply_to        TEXT NOT NULL DEFAULT '',
	to_addresses    TEXT NOT NULL DEFAULT '[]',
	cc_addresses    TEXT NOT NULL DEFAULT '[]',
	bcc_addresses   TEXT NOT NULL DEFAULT '[]',
	body_text       TEXT NOT NULL DEFAULT '',
	body_html       TEXT NOT NULL DEFAULT '',
	has_attachment  INTEGER NOT NULL DEFAULT 0,
	flags           TEXT NOT NULL DEFAULT '[]',
	size            INTEGER NOT NULL DEFAULT 0,
	raw_headers     TEXT NOT NULL DEFAULT '{}',
	body_structure  TEXT NOT NULL DEFAULT '{}',
	classification  TEXT NOT NULL DEFAULT '',
	internal_date   DATETIME,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL,
	UNIQUE(folder_id, uid)
);
CREATE INDEX IF NOT EXISTS idx_emails_folder ON emails(folder_id);
CREATE INDEX IF NOT EXISTS idx_emails_message_id ON emails(message_id);

CREATE TABLE IF NOT EXISTS attachments (
	id            TEXT PRIMARY KEY,
	message_id    TEXT NOT NULL,
	account_email TEXT NOT NULL REFERENCES accounts(email_address),
	filename      TEXT NOT NULL,
	content_type  TEXT NOT NULL DEFAULT '',
	content_id    TEXT NOT NULL DEFAULT '',
	size          INTEGER NOT NULL DEFAULT 0,
	is_inline     INTEGER NOT NULL DEFAULT 0,
	storage_path  TEXT NOT NULL,
	created_at    DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attachments_message ON attachments(account_email, message_id);

CREATE TABLE IF NOT EXISTS sync_state (
	folder_id       TEXT PRIMARY KEY REFERENCES folders(id),
	last_uid_synced INTEGER NOT NULL DEFAULT 0,
	uid_validity    INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL DEFAULT 'idle',
	last_error      TEXT NOT NULL DEFAULT '',
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS outbox_queue (
	id                TEXT PRIMARY KEY,
	account_email     TEXT NOT NULL REFERENCES accounts(email_address),
	to_addresses      TEXT NOT NULL DEFAULT '[]',
	cc_addresses      TEXT NOT NULL DEFAULT '[]',
	bcc_addresses     TEXT NOT NULL DEFAULT '[]',
	subject           TEXT NOT NULL DEFAULT '',
	body_text         TEXT NOT NULL DEFAULT '',
	body_html         TEXT NOT NULL DEFAULT '',
	raw_mime          BLOB,
	message_id        TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'pending',
	retry_count       INTEGER NOT NULL DEFAULT 0,
	max_retries       INTEGER NOT NULL DEFAULT 3,
	outbox_saved      INTEGER NOT NULL DEFAULT 0,
	smtp_sent         INTEGER NOT NULL DEFAULT 0,
	sent_folder_saved INTEGER NOT NULL DEFAULT 0,
	last_error        TEXT NOT NULL DEFAULT '',
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox_queue(status, created_at);

CREATE TABLE IF NOT EXISTS background_jobs (
	id                TEXT PRIMARY KEY,
	account_email     TEXT NOT NULL DEFAULT '',
	instruction       TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'running',
	result            TEXT NOT NULL DEFAULT '{}',
	error_msg         TEXT NOT NULL DEFAULT '',
	resumable         INTEGER NOT NULL DEFAULT 0,
	resume_checkpoint TEXT NOT NULL DEFAULT '{}',
	retry_count       INTEGER NOT NULL DEFAULT 0,
	max_retries       INTEGER NOT NULL DEFAULT 3,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL,
	completed_at      DATETIME
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON background_jobs(status);
`

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("cache: migrate: %w", err)
	}
	return nil
}
