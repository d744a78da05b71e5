package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
// ID is echoed on the ack; frames without an ID get no ack.
type Inbound struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	ProtocolVersion = 2

	InboundTypeJoin        = "join"
	InboundTypeLeave       = "leave"
	InboundTypeOpen        = "open"
	InboundTypeSend        = "send"
	InboundTypeTyping      = "typing"
	InboundTypeTypingStop  = "typing_stop"
	InboundTypeMarkRead    = "mark_read"
	InboundTypeMarkAllRead = "mark_all_read"
	InboundTypeOnline      = "online"
	InboundTypePending     = "pending"
	InboundTypeHistory     = "history"
	InboundTypePing        = "ping"

	OutboundTypeEvent = "event"
	OutboundTypeAck   = "ack"
	OutboundTypeError = "error"

	EventHello         = "hello"
	EventMessage       = "message"
	EventPresence      = "presence"
	EventTyping        = "typing"
	EventUnread        = "unread"
	EventUnreadCleared = "unread_cleared"
)

// Target addresses a conversation by its other end.
type Target struct {
	Kind   string `json:"kind"` // "user" or "role"
	UserID int64  `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
}

// ConversationData names a conversation (join, leave, typing, typing_stop).
type ConversationData struct {
	ConversationID int64 `json:"conversation_id"`
}

// OpenData resolves a target and joins the result.
type OpenData struct {
	Target Target `json:"target"`
}

// SendData submits a message either to a known conversation or to a target.
type SendData struct {
	ConversationID int64   `json:"conversation_id,omitempty"`
	Target         *Target `json:"target,omitempty"`
	Body           string  `json:"body"`
	ClientMsgID    string  `json:"client_msg_id,omitempty"`
}

// MarkReadData flags one unread entry read.
type MarkReadData struct {
	MessageID int64 `json:"message_id"`
}

// HistoryData requests a page of older messages.
type HistoryData struct {
	ConversationID int64 `json:"conversation_id"`
	BeforeID       int64 `json:"before_id,omitempty"`
	Limit          int   `json:"limit,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	OK    *bool  `json:"ok,omitempty"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Message is a persisted chat message.
type Message struct {
	ID             int64  `json:"id"`
	ConversationID int64  `json:"conversation_id"`
	Kind           string `json:"kind"`
	Role           string `json:"role,omitempty"`
	SenderID       int64  `json:"sender_id"`
	SenderName     string `json:"sender_name"`
	Body           string `json:"body"`
	ClientMsgID    string `json:"client_msg_id,omitempty"`
	CreatedAt      int64  `json:"created_at"` // unix milliseconds
}

// Member is a conversation participant.
type Member struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}

// Conversation describes a resolved conversation and its current members.
type Conversation struct {
	ID      int64    `json:"id"`
	Kind    string   `json:"kind"`
	Role    string   `json:"role,omitempty"`
	Members []Member `json:"members"`
}

// OnlineUser is an entry of the online snapshot.
type OnlineUser struct {
	UserID   int64  `json:"user_id"`
	Name     string `json:"name"`
	Sessions int    `json:"sessions"`
	Version  uint64 `json:"version"`
}

// EventHelloData greets a new session.
type EventHelloData struct {
	Protocol  int          `json:"protocol"`
	SessionID string       `json:"session_id"`
	UserID    int64        `json:"user_id"`
	Name      string       `json:"name"`
	Roles     []string     `json:"roles"`
	Online    []OnlineUser `json:"online"`
	Pending   int          `json:"pending"`
}

// EventPresenceData reports a user going online or offline.
type EventPresenceData struct {
	UserID  int64  `json:"user_id"`
	Name    string `json:"name"`
	Online  bool   `json:"online"`
	Version uint64 `json:"version"`
	At      int64  `json:"at"`
}

// EventTypingData reports typing activity.
type EventTypingData struct {
	ConversationID int64  `json:"conversation_id"`
	UserID         int64  `json:"user_id"`
	Name           string `json:"name"`
	Typing         bool   `json:"typing"`
	Target         Target `json:"target"`
}

// UnreadEntry is a message the recipient has not seen yet.
type UnreadEntry struct {
	MessageID      int64  `json:"message_id"`
	ConversationID int64  `json:"conversation_id"`
	SenderID       int64  `json:"sender_id"`
	SenderName     string `json:"sender_name"`
	Body           string `json:"body"`
	CreatedAt      int64  `json:"created_at"`
}

// EventUnreadClearedData lists entries marked read on any device.
type EventUnreadClearedData struct {
	MessageIDs []int64 `json:"message_ids,omitempty"`
	All        bool    `json:"all,omitempty"`
}

// JoinResult is the ack payload of join and open.
type JoinResult struct {
	Applicable   bool          `json:"applicable"`
	Already      bool          `json:"already,omitempty"`
	Conversation *Conversation `json:"conversation,omitempty"`
	History      []Message     `json:"history,omitempty"`
}

// SendResult is the ack payload of send.
type SendResult struct {
	Message Message `json:"message"`
}

// OnlineResult is the ack payload of online.
type OnlineResult struct {
	Users []OnlineUser `json:"users"`
}

// PendingResult is the ack payload of pending.
type PendingResult struct {
	Entries []UnreadEntry `json:"entries"`
}

// ReadResult is the ack payload of mark_read and mark_all_read.
type ReadResult struct {
	Changed int `json:"changed"`
}

// HistoryResult is the ack payload of history.
type HistoryResult struct {
	ConversationID int64     `json:"conversation_id"`
	Messages       []Message `json:"messages"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
