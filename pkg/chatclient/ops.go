package chatclient

import (
	"context"
	"errors"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/proto"
)

// Join subscribes to a conversation and merges the returned history.
// Joined conversations are joined again after every reconnect.
func (c *Client) Join(ctx context.Context, conversationID int64) (proto.JoinResult, error) {
	var res proto.JoinResult
	if err := c.request(ctx, proto.InboundTypeJoin, proto.ConversationData{ConversationID: conversationID}, &res); err != nil {
		return res, err
	}
	c.joinedResult(conversationID, res)
	return res, nil
}

// Open resolves a direct or group target and joins the conversation.
// A group without eligible members yields Applicable=false and no error.
func (c *Client) Open(ctx context.Context, target proto.Target) (proto.JoinResult, error) {
	var res proto.JoinResult
	if err := c.request(ctx, proto.InboundTypeOpen, proto.OpenData{Target: target}, &res); err != nil {
		return res, err
	}
	if res.Applicable && res.Conversation != nil {
		c.joinedResult(res.Conversation.ID, res)
	}
	return res, nil
}

func (c *Client) joinedResult(conversationID int64, res proto.JoinResult) {
	c.mu.Lock()
	c.joined[conversationID] = struct{}{}
	c.mu.Unlock()
	c.Timeline(conversationID).Load(res.History)
}

// Leave unsubscribes from a conversation.
func (c *Client) Leave(ctx context.Context, conversationID int64) error {
	c.forgetJoined(conversationID)
	c.StopTyping(conversationID)
	return c.request(ctx, proto.InboundTypeLeave, proto.ConversationData{ConversationID: conversationID}, nil)
}

// Joined lists the conversations restored on reconnect.
func (c *Client) Joined() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, 0, len(c.joined))
	for id := range c.joined {
		out = append(out, id)
	}
	return out
}

// Send shows the message as pending right away and reconciles it with the
// ack. On any failure, including a timeout or a dropped connection, the
// pending entry is removed and returned marked failed together with the error.
func (c *Client) Send(ctx context.Context, conversationID int64, body string) (Entry, error) {
	self := c.Self()
	tl := c.Timeline(conversationID)
	entry := tl.AddPending(self.UserID, self.Name, body)

	var res proto.SendResult
	err := c.request(ctx, proto.InboundTypeSend, proto.SendData{
		ConversationID: conversationID,
		Body:           body,
		ClientMsgID:    entry.LocalID,
	}, &res)
	if err != nil {
		failed, _ := tl.Fail(entry.LocalID, err)
		c.log.Warn().Err(err).Int64("conversation_id", conversationID).Str("client_msg_id", entry.LocalID).Msg("send rolled back")
		return failed, err
	}
	c.resetTyping(conversationID)
	return tl.Confirm(res.Message), nil
}

// Online fetches the online snapshot and resets the presence view with it.
func (c *Client) Online(ctx context.Context) ([]proto.OnlineUser, error) {
	var res proto.OnlineResult
	if err := c.request(ctx, proto.InboundTypeOnline, nil, &res); err != nil {
		return nil, err
	}
	c.Presence.Reset(res.Users)
	return res.Users, nil
}

// FetchPending reloads the unread inbox.
func (c *Client) FetchPending(ctx context.Context) ([]proto.UnreadEntry, error) {
	var res proto.PendingResult
	if err := c.request(ctx, proto.InboundTypePending, nil, &res); err != nil {
		return nil, err
	}
	c.Notifications.Load(res.Entries)
	return res.Entries, nil
}

// MarkRead flags one unread entry read. The inbox is updated by the
// unread_cleared event the server pushes to every session of the user.
func (c *Client) MarkRead(ctx context.Context, messageID int64) (int, error) {
	if messageID == 0 {
		return 0, errors.New("chatclient: message id is required")
	}
	var res proto.ReadResult
	if err := c.request(ctx, proto.InboundTypeMarkRead, proto.MarkReadData{MessageID: messageID}, &res); err != nil {
		return 0, err
	}
	return res.Changed, nil
}

// MarkAllRead clears the whole inbox.
func (c *Client) MarkAllRead(ctx context.Context) (int, error) {
	var res proto.ReadResult
	if err := c.request(ctx, proto.InboundTypeMarkAllRead, nil, &res); err != nil {
		return 0, err
	}
	return res.Changed, nil
}

// History loads an older page into the timeline. beforeID 0 means newest.
func (c *Client) History(ctx context.Context, conversationID, beforeID int64, limit int) ([]proto.Message, error) {
	var res proto.HistoryResult
	err := c.request(ctx, proto.InboundTypeHistory, proto.HistoryData{
		ConversationID: conversationID,
		BeforeID:       beforeID,
		Limit:          limit,
	}, &res)
	if err != nil {
		return nil, err
	}
	c.Timeline(conversationID).Load(res.Messages)
	return res.Messages, nil
}

// Keystroke reports the current input of a conversation's composer.
func (c *Client) Keystroke(conversationID int64, input string) {
	c.debouncer(conversationID).Keystroke(input)
}

// StopTyping ends typing in a conversation if it was active.
func (c *Client) StopTyping(conversationID int64) {
	c.mu.Lock()
	d := c.debouncers[conversationID]
	c.mu.Unlock()
	if d != nil {
		d.Stop()
	}
}

func (c *Client) debouncer(conversationID int64) *TypingDebouncer {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.debouncers[conversationID]
	if !ok {
		d = NewTypingDebouncer(c.opts.TypingWindow, c.opts.TypingIdle, func(typing bool) {
			typ := proto.InboundTypeTypingStop
			if typing {
				typ = proto.InboundTypeTyping
			}
			if err := c.notify(context.Background(), typ, proto.ConversationData{ConversationID: conversationID}); err != nil {
				c.log.Debug().Err(err).Str("type", typ).Msg("typing frame not sent")
			}
		})
		c.debouncers[conversationID] = d
	}
	return d
}

// resetTyping forgets local typing state once the server ended it by the send.
func (c *Client) resetTyping(conversationID int64) {
	c.mu.Lock()
	d := c.debouncers[conversationID]
	c.mu.Unlock()
	if d != nil {
		d.Reset()
	}
}
