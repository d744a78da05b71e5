package core

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/store"
)

const (
	// DefaultMaxBodyRunes bounds a message body.
	DefaultMaxBodyRunes = 4000
	// DefaultHistoryLimit is the page size returned on join.
	DefaultHistoryLimit = 50
	// maxHistoryLimit caps explicit history requests.
	maxHistoryLimit = 200
	// deliveryTimeout bounds persistence and fan-out of one accepted send.
	deliveryTimeout = 10 * time.Second
)

func (h *Hub) validateBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", fmt.Errorf("%w: empty message body", ErrBadRequest)
	}
	if utf8.RuneCountInString(body) > h.maxBodyRunes {
		return "", fmt.Errorf("%w: message body longer than %d characters", ErrBadRequest, h.maxBodyRunes)
	}
	return body, nil
}

// deliver persists a message and fans it out to every joined session of
// every participant, the sender's own sessions included. Participants with
// no joined session get an unread entry instead.
//
// Timestamp assignment, persistence and fan-out happen under the room lock,
// so sessions observe a conversation's messages in persisted order.
func (h *Hub) deliver(ctx context.Context, sender *Client, res Resolution, body, clientMsgID string) (Message, error) {
	conv := res.Conversation
	senderName := res.MemberName(sender.UserID)
	if senderName == "" {
		senderName = sender.Name
	}

	room := h.lockedRoom(conv)
	stored := &store.Message{
		ConversationID: conv.ID,
		SenderID:       sender.UserID,
		Body:           body,
		ClientMsgID:    clientMsgID,
		CreatedAt:      room.nextTimestamp(h.now()),
	}
	if err := h.messages.SaveMessage(ctx, stored); err != nil {
		empty := len(room.clients) == 0
		room.mu.Unlock()
		if empty {
			h.releaseRoom(room)
		}
		h.log.Error().Err(err).
			Int64("conversation_id", conv.ID).
			Int64("user_id", sender.UserID).
			Msg("persist message")
		return Message{}, ErrPersist
	}

	msg := messageFromStore(stored, conv, senderName)
	event := &Event{Kind: EventMessage, Message: msg}

	reached := make(map[int64]struct{}, len(res.Members))
	delivered := 0
	subscribers := room.clientsLocked()
	for _, client := range subscribers {
		if !res.HasMember(client.UserID) {
			continue
		}
		if client.Push(event) {
			reached[client.UserID] = struct{}{}
			delivered++
		}
	}
	room.mu.Unlock()
	if len(subscribers) == 0 {
		h.releaseRoom(room)
	}

	h.metrics.MessageDelivered(delivered)

	for _, member := range res.Members {
		if member.UserID == sender.UserID {
			continue
		}
		if _, ok := reached[member.UserID]; ok {
			continue
		}
		h.recordUnread(ctx, member.UserID, msg)
	}

	return msg, nil
}

// recordUnread stores an unread entry and alerts the recipient's sessions.
// Failures are logged: the message itself is already delivered and persisted.
func (h *Hub) recordUnread(ctx context.Context, recipientID int64, msg Message) {
	if h.notifications == nil {
		return
	}
	entry := &store.UnreadEntry{
		RecipientID:    recipientID,
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		SenderName:     msg.SenderName,
		Body:           msg.Body,
		CreatedAt:      msg.CreatedAt,
	}
	if err := h.notifications.RecordUnread(ctx, entry); err != nil {
		h.log.Error().Err(err).
			Int64("user_id", recipientID).
			Int64("message_id", msg.ID).
			Msg("record unread entry")
		return
	}
	h.metrics.UnreadRecorded()
	h.pushUser(recipientID, &Event{Kind: EventUnread, Unread: entry})
}

// history returns a page of messages in chronological order.
func (h *Hub) history(ctx context.Context, conv *store.Conversation, limit int, beforeID int64) ([]Message, error) {
	if h.messages == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = h.historyLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	var before *int64
	if beforeID > 0 {
		before = &beforeID
	}
	stored, err := h.messages.ListMessages(ctx, conv.ID, limit, before)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]Message, 0, len(stored))
	for _, m := range stored {
		out = append(out, messageFromStore(m, conv, m.SenderName))
	}
	return out, nil
}
