package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/store"
)

const dsnOptions = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite works best with single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema on an in-memory database.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Set connection pool limits before setup so :memory: stays on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, displayName, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, display_name, password_hash)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, displayName, passwordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert user %q: %w", username, store.ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// SetUserRoles replaces the role tags held by a user.
func (s *SQLiteStore) SetUserRoles(ctx context.Context, userID int64, roles []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear roles: %w", err)
	}
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_roles (user_id, role) VALUES (?, ?)`, userID, role); err != nil {
			return fmt.Errorf("insert role %q: %w", role, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, username, display_name, password_hash, created_at
		FROM users
		WHERE id = ?
	`
	user, err := s.scanUser(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := s.attachRoles(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, display_name, password_hash, created_at
		FROM users
		WHERE username = ?
	`
	user, err := s.scanUser(s.db.QueryRowContext(ctx, query, username))
	if err != nil {
		return nil, err
	}
	if err := s.attachRoles(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ListUsers returns every user ordered by ID.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*store.User, error) {
	query := `
		SELECT id, username, display_name, password_hash, created_at
		FROM users
		ORDER BY id ASC
	`
	return s.queryUsers(ctx, query)
}

// ListUsersWithRoles returns users holding any of the given roles.
func (s *SQLiteStore) ListUsersWithRoles(ctx context.Context, roles ...string) ([]*store.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	query := `
		SELECT DISTINCT u.id, u.username, u.display_name, u.password_hash, u.created_at
		FROM users u
		JOIN user_roles r ON r.user_id = u.id
		WHERE r.role IN (` + placeholders(len(roles)) + `)
		ORDER BY u.id ASC
	`
	args := make([]any, 0, len(roles))
	for _, r := range roles {
		args = append(args, r)
	}
	return s.queryUsers(ctx, query, args...)
}

// CountRoleHolders returns the number of holders per role tag.
func (s *SQLiteStore) CountRoleHolders(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role, COUNT(*) FROM user_roles GROUP BY role`)
	if err != nil {
		return nil, fmt.Errorf("query role counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, fmt.Errorf("scan role count: %w", err)
		}
		counts[role] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	err := row.Scan(&user.ID, &user.Username, &user.DisplayName, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) queryUsers(ctx context.Context, query string, args ...any) ([]*store.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}

	var users []*store.User
	byID := make(map[int64]*store.User)
	for rows.Next() {
		var user store.User
		if err := rows.Scan(&user.ID, &user.Username, &user.DisplayName, &user.PasswordHash, &user.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, &user)
		byID[user.ID] = &user
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(users) == 0 {
		return users, nil
	}

	// Single connection pool: the user rows must be closed before the role query runs.
	roleRows, err := s.db.QueryContext(ctx, `SELECT user_id, role FROM user_roles ORDER BY role ASC`)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer roleRows.Close()

	for roleRows.Next() {
		var userID int64
		var role string
		if err := roleRows.Scan(&userID, &role); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		if u, ok := byID[userID]; ok {
			u.Roles = append(u.Roles, role)
		}
	}
	return users, roleRows.Err()
}

func (s *SQLiteStore) attachRoles(ctx context.Context, user *store.User) error {
	rows, err := s.db.QueryContext(ctx, `SELECT role FROM user_roles WHERE user_id = ? ORDER BY role ASC`, user.ID)
	if err != nil {
		return fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	user.Roles = user.Roles[:0]
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return fmt.Errorf("scan role: %w", err)
		}
		user.Roles = append(user.Roles, role)
	}
	return rows.Err()
}

// ==== ConversationStore implementation ====

// CreateConversation inserts a conversation and sets its ID.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *store.Conversation) error {
	var directKey, role sql.NullString
	if conv.DirectKey != "" {
		directKey = sql.NullString{String: conv.DirectKey, Valid: true}
	}
	if conv.Role != "" {
		role = sql.NullString{String: conv.Role, Valid: true}
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO conversations (kind, direct_key, role, created_at)
		VALUES (?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, string(conv.Kind), directKey, role, conv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert conversation: %w", store.ErrConflict)
		}
		return fmt.Errorf("insert conversation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	conv.ID = id
	return nil
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id int64) (*store.Conversation, error) {
	return s.getConversation(ctx, `WHERE id = ?`, id)
}

// GetConversationByDirectKey retrieves a direct conversation by its pair key.
func (s *SQLiteStore) GetConversationByDirectKey(ctx context.Context, directKey string) (*store.Conversation, error) {
	return s.getConversation(ctx, `WHERE direct_key = ?`, directKey)
}

// GetConversationByRole retrieves the group conversation for a role.
func (s *SQLiteStore) GetConversationByRole(ctx context.Context, role string) (*store.Conversation, error) {
	return s.getConversation(ctx, `WHERE role = ?`, role)
}

func (s *SQLiteStore) getConversation(ctx context.Context, where string, arg any) (*store.Conversation, error) {
	query := `SELECT id, kind, direct_key, role, created_at FROM conversations ` + where

	var conv store.Conversation
	var kind string
	var directKey, role sql.NullString
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&conv.ID, &kind, &directKey, &role, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	conv.Kind = store.ConversationKind(kind)
	conv.DirectKey = directKey.String
	conv.Role = role.String
	return &conv, nil
}

// ==== MessageStore implementation ====

// SaveMessage persists a message to storage.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO messages (conversation_id, sender_id, body, client_msg_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, msg.ConversationID, msg.SenderID, msg.Body, msg.ClientMsgID, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	msg.ID = id
	return nil
}

// ListMessages retrieves messages from a conversation with pagination.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID int64, limit int, beforeID *int64) ([]*store.Message, error) {
	var query string
	var args []any

	if beforeID != nil {
		query = `
			SELECT m.id, m.conversation_id, m.sender_id, m.body, m.client_msg_id, m.created_at,
			       COALESCE(NULLIF(u.display_name, ''), u.username, '')
			FROM messages m
			LEFT JOIN users u ON u.id = m.sender_id
			WHERE m.conversation_id = ? AND m.id < ?
			ORDER BY m.id DESC
			LIMIT ?
		`
		args = []any{conversationID, *beforeID, limit}
	} else {
		query = `
			SELECT m.id, m.conversation_id, m.sender_id, m.body, m.client_msg_id, m.created_at,
			       COALESCE(NULLIF(u.display_name, ''), u.username, '')
			FROM messages m
			LEFT JOIN users u ON u.id = m.sender_id
			WHERE m.conversation_id = ?
			ORDER BY m.id DESC
			LIMIT ?
		`
		args = []any{conversationID, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Body, &msg.ClientMsgID, &msg.CreatedAt, &msg.SenderName); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}

	// Reverse to get chronological order
	for i := range len(messages) / 2 {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}

	return messages, rows.Err()
}

// ==== UnreadStore implementation ====

// SaveUnread inserts an unread entry and sets its ID.
func (s *SQLiteStore) SaveUnread(ctx context.Context, entry *store.UnreadEntry) error {
	query := `
		INSERT INTO unread_entries (recipient_id, message_id, conversation_id, sender_id, sender_name, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		entry.RecipientID, entry.MessageID, entry.ConversationID,
		entry.SenderID, entry.SenderName, entry.Body, entry.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert unread entry: %w", store.ErrConflict)
		}
		return fmt.Errorf("insert unread entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// ListUnread returns the newest unread entries for a recipient, newest first.
func (s *SQLiteStore) ListUnread(ctx context.Context, recipientID int64, limit int) ([]*store.UnreadEntry, error) {
	query := `
		SELECT id, recipient_id, message_id, conversation_id, sender_id, sender_name, body, created_at
		FROM unread_entries
		WHERE recipient_id = ? AND read_at IS NULL
		ORDER BY message_id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("query unread entries: %w", err)
	}
	defer rows.Close()

	var entries []*store.UnreadEntry
	for rows.Next() {
		var e store.UnreadEntry
		if err := rows.Scan(&e.ID, &e.RecipientID, &e.MessageID, &e.ConversationID,
			&e.SenderID, &e.SenderName, &e.Body, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan unread entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// CountUnread returns the number of unread entries for a recipient.
func (s *SQLiteStore) CountUnread(ctx context.Context, recipientID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM unread_entries WHERE recipient_id = ? AND read_at IS NULL`, recipientID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread entries: %w", err)
	}
	return n, nil
}

// MarkRead flags one entry read. Reports whether anything changed.
func (s *SQLiteStore) MarkRead(ctx context.Context, recipientID, messageID int64) (bool, error) {
	query := `
		UPDATE unread_entries
		SET read_at = ?
		WHERE recipient_id = ? AND message_id = ? AND read_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), recipientID, messageID)
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// MarkAllRead flags every entry of the recipient read.
func (s *SQLiteStore) MarkAllRead(ctx context.Context, recipientID int64) (int, error) {
	query := `
		UPDATE unread_entries
		SET read_at = ?
		WHERE recipient_id = ? AND read_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return int(rows), nil
}

// MarkConversationRead flags every entry of one conversation read.
func (s *SQLiteStore) MarkConversationRead(ctx context.Context, recipientID, conversationID int64) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT message_id FROM unread_entries
		WHERE recipient_id = ? AND conversation_id = ? AND read_at IS NULL
		ORDER BY message_id ASC
	`, recipientID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query conversation unread: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan message id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE unread_entries
		SET read_at = ?
		WHERE recipient_id = ? AND conversation_id = ? AND read_at IS NULL
	`, time.Now().UTC(), recipientID, conversationID); err != nil {
		return nil, fmt.Errorf("mark conversation read: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return ids, nil
}
