package core

import (
	"context"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/store"
)

// ConversationService resolves targets to conversations for the Hub.
// Membership is computed fresh on every call.
type ConversationService interface {
	// Resolve finds or creates the conversation addressed by target on
	// behalf of senderID. Returns ErrNotApplicable when a group target has
	// no eligible members.
	Resolve(ctx context.Context, senderID int64, target Target) (Resolution, error)

	// Lookup returns an existing conversation with its current members.
	Lookup(ctx context.Context, conversationID int64) (Resolution, error)
}

// NotificationService keeps per-user unread state.
// The Hub pushes the resulting events; the service only stores.
type NotificationService interface {
	RecordUnread(ctx context.Context, entry *store.UnreadEntry) error
	MarkRead(ctx context.Context, userID, messageID int64) (bool, error)
	MarkAllRead(ctx context.Context, userID int64) (int, error)
	MarkConversationRead(ctx context.Context, userID, conversationID int64) ([]int64, error)
	FetchPending(ctx context.Context, userID int64) ([]*store.UnreadEntry, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
}

// Metrics receives counters from the Hub. A nil Metrics is valid.
type Metrics interface {
	SessionOpened()
	SessionClosed()
	UsersOnline(n int)
	MessageDelivered(recipients int)
	SendFailed(code string)
	UnreadRecorded()
}

// PresenceMirror publishes online transitions outside the process.
type PresenceMirror interface {
	Online(ctx context.Context, userID int64) error
	Offline(ctx context.Context, userID int64) error
}

type nopMetrics struct{}

func (nopMetrics) SessionOpened()       {}
func (nopMetrics) SessionClosed()       {}
func (nopMetrics) UsersOnline(int)      {}
func (nopMetrics) MessageDelivered(int) {}
func (nopMetrics) SendFailed(string)    {}
func (nopMetrics) UnreadRecorded()      {}
