package core

import (
	"time"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/store"
)

// Message is the domain model for a delivered chat message.
type Message struct {
	ID             int64
	ConversationID int64
	Kind           store.ConversationKind
	Role           string // set for group conversations
	SenderID       int64
	SenderName     string
	Body           string
	ClientMsgID    string // correlation id issued by the sending client
	CreatedAt      time.Time
}

func messageFromStore(m *store.Message, conv *store.Conversation, senderName string) Message {
	return Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Kind:           conv.Kind,
		Role:           conv.Role,
		SenderID:       m.SenderID,
		SenderName:     senderName,
		Body:           m.Body,
		ClientMsgID:    m.ClientMsgID,
		CreatedAt:      m.CreatedAt,
	}
}

// TargetKind says whether a target is a single user or a role group.
type TargetKind string

const (
	TargetUser TargetKind = "user"
	TargetRole TargetKind = "role"
)

// Target addresses a conversation by who is on the other end.
type Target struct {
	Kind   TargetKind
	UserID int64
	Role   string
}

// UserTarget addresses the direct conversation with a user.
func UserTarget(userID int64) Target {
	return Target{Kind: TargetUser, UserID: userID}
}

// RoleTarget addresses the group conversation of a role.
func RoleTarget(role string) Target {
	return Target{Kind: TargetRole, Role: role}
}

// Member is a current participant of a conversation.
type Member struct {
	UserID int64
	Name   string
}

// Resolution is a conversation together with its membership at resolution time.
type Resolution struct {
	Conversation *store.Conversation
	Members      []Member
}

// HasMember reports whether userID participates in the conversation.
func (r Resolution) HasMember(userID int64) bool {
	for _, m := range r.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// MemberName returns the display name of a participant.
func (r Resolution) MemberName(userID int64) string {
	for _, m := range r.Members {
		if m.UserID == userID {
			return m.Name
		}
	}
	return ""
}
