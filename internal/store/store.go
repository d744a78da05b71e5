package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a uniqueness constraint rejects an insert.
	ErrConflict = errors.New("already exists")
)

// User is a staff member as seen by the messaging core.
// Users are owned by the surrounding intranet; the core only reads them.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
}

// Name returns the display name, falling back to the username.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// HasRole reports whether the user currently holds role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ConversationKind distinguishes direct and role-scoped conversations.
type ConversationKind string

const (
	ConversationDirect ConversationKind = "direct"
	ConversationGroup  ConversationKind = "group"
)

// Conversation is a durable addressable channel of messages.
// Group membership is not stored: it is derived from role assignments.
type Conversation struct {
	ID        int64
	Kind      ConversationKind
	DirectKey string // "dm:{minUserID}:{maxUserID}" for direct conversations
	Role      string // role tag for group conversations
	CreatedAt time.Time
}

// Message is a persisted chat message. Immutable once saved.
type Message struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	Body           string
	ClientMsgID    string
	CreatedAt      time.Time

	// SenderName is filled on reads from the users table.
	SenderName string
}

// UnreadEntry records that a delivered message has not been seen by its recipient.
type UnreadEntry struct {
	ID             int64
	RecipientID    int64
	MessageID      int64
	ConversationID int64
	SenderID       int64
	SenderName     string
	Body           string
	CreatedAt      time.Time
	ReadAt         *time.Time
}

// UserStore handles user lookups.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, displayName, passwordHash string) (*User, error)

	// SetUserRoles replaces the role tags held by a user.
	SetUserRoles(ctx context.Context, userID int64, roles []string) error

	// GetUserByID retrieves a user by ID, roles included.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username, roles included.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// ListUsers returns every user ordered by ID.
	ListUsers(ctx context.Context) ([]*User, error)

	// ListUsersWithRoles returns users holding any of the given roles.
	ListUsersWithRoles(ctx context.Context, roles ...string) ([]*User, error)

	// CountRoleHolders returns the number of holders per role tag.
	CountRoleHolders(ctx context.Context) (map[string]int, error)
}

// ConversationStore handles conversation persistence.
type ConversationStore interface {
	// CreateConversation inserts a conversation and sets its ID.
	// Returns ErrConflict if the direct key or role is already taken.
	CreateConversation(ctx context.Context, conv *Conversation) error

	// GetConversation retrieves a conversation by ID.
	GetConversation(ctx context.Context, id int64) (*Conversation, error)

	// GetConversationByDirectKey retrieves a direct conversation by its pair key.
	GetConversationByDirectKey(ctx context.Context, directKey string) (*Conversation, error)

	// GetConversationByRole retrieves the group conversation for a role.
	GetConversationByRole(ctx context.Context, role string) (*Conversation, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message and sets its ID.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages retrieves messages from a conversation in chronological order.
	// If beforeID is provided, returns messages older than that ID.
	ListMessages(ctx context.Context, conversationID int64, limit int, beforeID *int64) ([]*Message, error)
}

// UnreadStore persists per-recipient read state.
type UnreadStore interface {
	// SaveUnread inserts an unread entry and sets its ID.
	SaveUnread(ctx context.Context, entry *UnreadEntry) error

	// ListUnread returns the newest unread entries for a recipient.
	ListUnread(ctx context.Context, recipientID int64, limit int) ([]*UnreadEntry, error)

	// CountUnread returns the number of unread entries for a recipient.
	CountUnread(ctx context.Context, recipientID int64) (int, error)

	// MarkRead flags one entry read. Reports whether anything changed.
	MarkRead(ctx context.Context, recipientID, messageID int64) (bool, error)

	// MarkAllRead flags every entry of the recipient read and returns how many changed.
	MarkAllRead(ctx context.Context, recipientID int64) (int, error)

	// MarkConversationRead flags every entry of one conversation read and
	// returns the affected message IDs.
	MarkConversationRead(ctx context.Context, recipientID, conversationID int64) ([]int64, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ConversationStore
	MessageStore
	UnreadStore

	// Close closes the underlying database connection.
	Close() error
}
