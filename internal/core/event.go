package core

import (
	"time"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/store"
)

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventHello greets a freshly registered session with the online snapshot.
	EventHello EventKind = iota
	// EventMessage delivers a persisted message of a joined conversation.
	EventMessage
	// EventPresence notifies about a user going online or offline.
	EventPresence
	// EventTyping notifies about typing start/stop in a joined conversation.
	EventTyping
	// EventUnread notifies a recipient about a new unread entry.
	EventUnread
	// EventUnreadCleared notifies every session of a user that entries were read.
	EventUnreadCleared
	// EventAck answers a command carrying a request id.
	EventAck
	// EventError notifies clients about a protocol or domain error without a request id.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind     EventKind
	Message  Message
	Hello    *Hello
	Presence *PresenceEvent
	Typing   *TypingEvent
	Unread   *store.UnreadEntry
	Cleared  *UnreadCleared
	Ack      *Ack
	Error    *CoreError
}

// Hello is the first event of every session.
type Hello struct {
	SessionID string
	UserID    int64
	Name      string
	Roles     []string
	Online    []OnlineUser
	Pending   int
}

// OnlineUser is one entry of the online snapshot.
type OnlineUser struct {
	UserID   int64
	Name     string
	Sessions int
	Version  uint64
}

// PresenceEvent reports a presence transition. Version grows monotonically
// across the process; receivers discard events older than the last one seen.
type PresenceEvent struct {
	UserID  int64
	Name    string
	Online  bool
	Version uint64
	At      time.Time
}

// TypingEvent reports typing activity scoped to a conversation target.
type TypingEvent struct {
	ConversationID int64
	UserID         int64
	Name           string
	Typing         bool
	Target         Target
}

// UnreadCleared lists entries that were marked read.
type UnreadCleared struct {
	MessageIDs []int64
	All        bool
}

// Ack answers a command. Error is nil on success.
type Ack struct {
	RequestID string
	Data      any
	Error     *CoreError
}

// JoinResult is the ack payload of join and open.
type JoinResult struct {
	Applicable bool
	Already    bool
	Resolution Resolution
	History    []Message
}

// SendResult is the ack payload of send.
type SendResult struct {
	Message Message
}

// OnlineResult is the ack payload of the online listing.
type OnlineResult struct {
	Users []OnlineUser
}

// PendingResult is the ack payload of the pending listing.
type PendingResult struct {
	Entries []*store.UnreadEntry
}

// ReadResult is the ack payload of mark_read and mark_all_read.
type ReadResult struct {
	Changed int
}

// HistoryResult is the ack payload of a history page.
type HistoryResult struct {
	ConversationID int64
	Messages       []Message
}

func ackEvent(requestID string, data any, err error) *Event {
	return &Event{
		Kind: EventAck,
		Ack: &Ack{
			RequestID: requestID,
			Data:      data,
			Error:     AsCoreError(err),
		},
	}
}
