package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	display_name  TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS user_roles (
	user_id INTEGER NOT NULL,
	role    TEXT NOT NULL,
	PRIMARY KEY (user_id, role),
	FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS conversations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	kind       TEXT NOT NULL,
	direct_key TEXT UNIQUE,
	role       TEXT UNIQUE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id INTEGER NOT NULL,
	sender_id       INTEGER NOT NULL,
	body            TEXT NOT NULL,
	client_msg_id   TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL,
	FOREIGN KEY (conversation_id) REFERENCES conversations(id),
	FOREIGN KEY (sender_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS unread_entries (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	recipient_id    INTEGER NOT NULL,
	message_id      INTEGER NOT NULL,
	conversation_id INTEGER NOT NULL,
	sender_id       INTEGER NOT NULL,
	sender_name     TEXT NOT NULL,
	body            TEXT NOT NULL,
	created_at      DATETIME NOT NULL,
	read_at         DATETIME,
	UNIQUE (recipient_id, message_id),
	FOREIGN KEY (recipient_id) REFERENCES users(id),
	FOREIGN KEY (message_id) REFERENCES messages(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id DESC);
CREATE INDEX IF NOT EXISTS idx_user_roles_role ON user_roles(role);
CREATE INDEX IF NOT EXISTS idx_unread_recipient ON unread_entries(recipient_id, read_at);
`

// ApplySchema creates all tables if they do not exist yet.
// It matches the setup signature of NewWithSetup so tests can pass it directly.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Migrate applies the schema on an open store.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
