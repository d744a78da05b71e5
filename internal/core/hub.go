package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/store"
)

const mirrorQueueSize = 256

// Options configures a Hub.
type Options struct {
	Conversations ConversationService
	Notifications NotificationService
	Messages      store.MessageStore
	Metrics       Metrics
	Mirror        PresenceMirror
	Logger        *zerolog.Logger

	TypingIdle   time.Duration
	MaxBodyRunes int
	HistoryLimit int

	// RatePerSecond and RateBurst limit sends per session. Zero disables.
	RatePerSecond float64
	RateBurst     int
}

// Hub coordinates sessions, presence, conversation rooms and delivery.
// Every session gets its own command goroutine; rooms serialize delivery
// per conversation.
type Hub struct {
	conversations ConversationService
	notifications NotificationService
	messages      store.MessageStore
	metrics       Metrics
	mirror        PresenceMirror
	log           *zerolog.Logger

	presence *Presence
	typing   *TypingCoordinator

	roomsMu   sync.RWMutex
	rooms     map[int64]*Room
	evictedTS time.Time // newest timestamp of an evicted room

	maxBodyRunes  int
	historyLimit  int
	ratePerSecond float64
	rateBurst     int

	mirrorQueue chan PresenceEvent
	stopping    atomic.Bool
	now         func() time.Time
}

// NewHub creates a new chat hub instance.
func NewHub(opts Options) *Hub {
	h := &Hub{
		conversations: opts.Conversations,
		notifications: opts.Notifications,
		messages:      opts.Messages,
		metrics:       opts.Metrics,
		mirror:        opts.Mirror,
		log:           opts.Logger,
		presence:      NewPresence(),
		rooms:         make(map[int64]*Room),
		maxBodyRunes:  opts.MaxBodyRunes,
		historyLimit:  opts.HistoryLimit,
		ratePerSecond: opts.RatePerSecond,
		rateBurst:     opts.RateBurst,
		mirrorQueue:   make(chan PresenceEvent, mirrorQueueSize),
		now:           time.Now,
	}
	if h.metrics == nil {
		h.metrics = nopMetrics{}
	}
	if h.log == nil {
		nop := zerolog.Nop()
		h.log = &nop
	}
	if h.maxBodyRunes <= 0 {
		h.maxBodyRunes = DefaultMaxBodyRunes
	}
	if h.historyLimit <= 0 {
		h.historyLimit = DefaultHistoryLimit
	}
	h.typing = NewTypingCoordinator(opts.TypingIdle, h.emitTyping)
	return h
}

// Run drives background work until ctx is canceled, then closes every
// session with CloseShutdown.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.stopping.Store(true)
			for _, c := range h.presence.All() {
				c.Close(CloseShutdown)
			}
			return
		case ev := <-h.mirrorQueue:
			h.publishMirror(ctx, ev)
		}
	}
}

// RegisterClient adds a session, announces presence if it is the user's
// first one and starts processing its commands.
func (h *Hub) RegisterClient(c *Client) {
	if h.stopping.Load() {
		c.Close(CloseShutdown)
		return
	}
	if h.ratePerSecond > 0 {
		c.SetRateLimit(h.ratePerSecond, h.rateBurst)
	}

	ev, first := h.presence.Connect(c)
	h.metrics.SessionOpened()
	if first {
		h.broadcastPresence(ev, c)
		h.queueMirror(ev)
	}
	users, _ := h.presence.Counts()
	h.metrics.UsersOnline(users)

	pending := 0
	if h.notifications != nil {
		n, err := h.notifications.UnreadCount(c.Context(), c.UserID)
		if err != nil {
			h.log.Warn().Err(err).Int64("user_id", c.UserID).Msg("count unread")
		}
		pending = n
	}

	c.Push(&Event{Kind: EventHello, Hello: &Hello{
		SessionID: c.ID,
		UserID:    c.UserID,
		Name:      c.Name,
		Roles:     c.Roles,
		Online:    h.presence.Online(),
		Pending:   pending,
	}})

	h.log.Debug().Str("session_id", c.ID).Int64("user_id", c.UserID).Msg("session registered")
	go h.serve(c)
}

// UnregisterClient removes a session from every room and from presence.
// Safe to call more than once.
func (h *Hub) UnregisterClient(c *Client) {
	c.unregister.Do(func() {
		c.Close(CloseNone)

		for _, id := range c.JoinedConversations() {
			if !h.joinedElsewhere(c, id) {
				h.typing.Stop(id, c.UserID)
			}
			if room := h.lookupRoom(id); room != nil && room.RemoveClient(c) {
				h.releaseRoom(room)
			}
			c.removeRoom(id)
		}

		ev, last := h.presence.Disconnect(c)
		h.metrics.SessionClosed()
		if last {
			h.typing.StopUser(c.UserID)
			h.broadcastPresence(ev, nil)
			h.queueMirror(ev)
		}
		users, _ := h.presence.Counts()
		h.metrics.UsersOnline(users)

		h.log.Debug().Str("session_id", c.ID).Int64("user_id", c.UserID).Msg("session unregistered")
	})
}

// joinedElsewhere reports whether another session of c's user has joined
// the conversation and may still be typing in it.
func (h *Hub) joinedElsewhere(c *Client, conversationID int64) bool {
	for _, other := range h.presence.Sessions(c.UserID) {
		if other != c && other.Joined(conversationID) {
			return true
		}
	}
	return false
}

// DisconnectUser closes every session of a user.
func (h *Hub) DisconnectUser(userID int64, reason CloseReason) int {
	sessions := h.presence.Sessions(userID)
	for _, c := range sessions {
		c.Close(reason)
	}
	return len(sessions)
}

// Online returns the current online snapshot.
func (h *Hub) Online() []OnlineUser {
	return h.presence.Online()
}

// IsOnline reports whether the user has a live session.
func (h *Hub) IsOnline(userID int64) bool {
	return h.presence.IsOnline(userID)
}

// Stats returns online users, live sessions and active rooms.
func (h *Hub) Stats() (users, sessions, rooms int) {
	users, sessions = h.presence.Counts()
	h.roomsMu.RLock()
	rooms = len(h.rooms)
	h.roomsMu.RUnlock()
	return users, sessions, rooms
}

func (h *Hub) serve(c *Client) {
	defer h.UnregisterClient(c)
	for {
		select {
		case <-c.Done():
			return
		case cmd := <-c.Commands:
			h.handle(c, cmd)
		}
	}
}

func (h *Hub) handle(c *Client, cmd *Command) {
	if cmd == nil {
		return
	}
	ctx := c.Context()

	var (
		data any
		err  error
	)
	switch cmd.Kind {
	case CommandJoin:
		data, err = h.join(ctx, c, cmd.ConversationID)
	case CommandLeave:
		h.leave(c, cmd.ConversationID)
	case CommandOpen:
		data, err = h.open(ctx, c, cmd.Target)
	case CommandSend:
		data, err = h.send(c, cmd)
	case CommandTyping:
		err = h.keystroke(c, cmd.ConversationID)
	case CommandTypingStop:
		h.typing.Stop(cmd.ConversationID, c.UserID)
	case CommandMarkRead:
		data, err = h.MarkRead(ctx, c.UserID, cmd.MessageID)
	case CommandMarkAllRead:
		data, err = h.MarkAllRead(ctx, c.UserID)
	case CommandListOnline:
		data = &OnlineResult{Users: h.presence.Online()}
	case CommandFetchPending:
		var entries []*store.UnreadEntry
		entries, err = h.FetchPending(ctx, c.UserID)
		if err == nil {
			data = &PendingResult{Entries: entries}
		}
	case CommandHistory:
		data, err = h.History(ctx, c.UserID, cmd.ConversationID, cmd.Limit, cmd.BeforeID)
	case CommandPing:
	default:
		err = fmt.Errorf("%w: unknown command", ErrBadRequest)
	}

	if err != nil {
		ce := AsCoreError(err)
		if cmd.Kind == CommandSend {
			h.metrics.SendFailed(ce.Code)
		}
		h.log.Debug().Err(err).
			Str("session_id", c.ID).
			Str("command", cmd.Kind.String()).
			Str("code", ce.Code).
			Msg("command failed")
	}

	if cmd.RequestID != "" {
		c.Push(ackEvent(cmd.RequestID, data, err))
		return
	}
	if err != nil {
		c.Push(&Event{Kind: EventError, Error: AsCoreError(err)})
	}
}

func (h *Hub) join(ctx context.Context, c *Client, conversationID int64) (*JoinResult, error) {
	if conversationID <= 0 {
		return nil, fmt.Errorf("%w: conversation id required", ErrBadRequest)
	}
	res, err := h.lookup(ctx, c.UserID, conversationID)
	if err != nil {
		return nil, err
	}
	return h.joinResolved(ctx, c, res)
}

func (h *Hub) open(ctx context.Context, c *Client, target Target) (*JoinResult, error) {
	if h.conversations == nil {
		return nil, ErrNotFound
	}
	res, err := h.conversations.Resolve(ctx, c.UserID, target)
	if errors.Is(err, ErrNotApplicable) {
		return &JoinResult{Applicable: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return h.joinResolved(ctx, c, res)
}

func (h *Hub) joinResolved(ctx context.Context, c *Client, res Resolution) (*JoinResult, error) {
	conv := res.Conversation
	var (
		room      *Room
		added, ok bool
	)
	for !ok {
		room = h.room(conv)
		added, ok = room.AddClient(c)
	}
	c.addRoom(conv.ID)

	select {
	case <-c.Done():
		room.RemoveClient(c)
		c.removeRoom(conv.ID)
		h.releaseRoom(room)
		return nil, context.Canceled
	default:
	}

	if h.notifications != nil {
		ids, err := h.notifications.MarkConversationRead(ctx, c.UserID, conv.ID)
		if err != nil {
			h.log.Warn().Err(err).
				Int64("user_id", c.UserID).
				Int64("conversation_id", conv.ID).
				Msg("mark conversation read")
		} else if len(ids) > 0 {
			h.pushUser(c.UserID, &Event{Kind: EventUnreadCleared, Cleared: &UnreadCleared{MessageIDs: ids}})
		}
	}

	history, err := h.history(ctx, conv, h.historyLimit, 0)
	if err != nil {
		h.log.Warn().Err(err).Int64("conversation_id", conv.ID).Msg("load history on join")
	}

	return &JoinResult{
		Applicable: true,
		Already:    !added,
		Resolution: res,
		History:    history,
	}, nil
}

func (h *Hub) leave(c *Client, conversationID int64) {
	h.typing.Stop(conversationID, c.UserID)
	if room := h.lookupRoom(conversationID); room != nil && room.RemoveClient(c) {
		h.releaseRoom(room)
	}
	c.removeRoom(conversationID)
}

func (h *Hub) send(c *Client, cmd *Command) (*SendResult, error) {
	if !c.allowSend() {
		return nil, ErrRateLimited
	}
	body, err := h.validateBody(cmd.Body)
	if err != nil {
		return nil, err
	}
	if h.messages == nil {
		return nil, ErrPersist
	}

	ctx := c.Context()
	var res Resolution
	switch {
	case cmd.ConversationID > 0:
		res, err = h.lookup(ctx, c.UserID, cmd.ConversationID)
	case h.conversations != nil:
		res, err = h.conversations.Resolve(ctx, c.UserID, cmd.Target)
	default:
		err = ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	h.typing.Stop(res.Conversation.ID, c.UserID)

	// An accepted send completes even if the sender goes away meanwhile.
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	defer cancel()

	msg, err := h.deliver(dctx, c, res, body, cmd.ClientMsgID)
	if err != nil {
		return nil, err
	}
	return &SendResult{Message: msg}, nil
}

func (h *Hub) keystroke(c *Client, conversationID int64) error {
	if !c.Joined(conversationID) {
		return ErrNotJoined
	}
	room := h.lookupRoom(conversationID)
	if room == nil {
		return ErrNotJoined
	}
	conv := room.Conversation()
	target := UserTarget(c.UserID)
	if conv.Kind == store.ConversationGroup {
		target = RoleTarget(conv.Role)
	}
	h.typing.Keystroke(conversationID, c.UserID, c.Name, target)
	return nil
}

func (h *Hub) emitTyping(ev TypingEvent) {
	room := h.lookupRoom(ev.ConversationID)
	if room == nil {
		return
	}
	room.Broadcast(&Event{Kind: EventTyping, Typing: &ev}, ev.UserID)
}

// lookup loads a conversation and checks that userID participates in it.
func (h *Hub) lookup(ctx context.Context, userID, conversationID int64) (Resolution, error) {
	if h.conversations == nil {
		return Resolution{}, ErrNotFound
	}
	res, err := h.conversations.Lookup(ctx, conversationID)
	if err != nil {
		return Resolution{}, err
	}
	if !res.HasMember(userID) {
		return Resolution{}, ErrForbidden
	}
	return res, nil
}

// History returns a page of a conversation the user participates in.
func (h *Hub) History(ctx context.Context, userID, conversationID int64, limit int, beforeID int64) (*HistoryResult, error) {
	res, err := h.lookup(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	messages, err := h.history(ctx, res.Conversation, limit, beforeID)
	if err != nil {
		return nil, err
	}
	return &HistoryResult{ConversationID: conversationID, Messages: messages}, nil
}

// MarkRead flags one unread entry read and tells every session of the user.
func (h *Hub) MarkRead(ctx context.Context, userID, messageID int64) (*ReadResult, error) {
	if messageID <= 0 {
		return nil, fmt.Errorf("%w: message id required", ErrBadRequest)
	}
	if h.notifications == nil {
		return &ReadResult{}, nil
	}
	changed, err := h.notifications.MarkRead(ctx, userID, messageID)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	if !changed {
		return &ReadResult{}, nil
	}
	h.pushUser(userID, &Event{Kind: EventUnreadCleared, Cleared: &UnreadCleared{MessageIDs: []int64{messageID}}})
	return &ReadResult{Changed: 1}, nil
}

// MarkAllRead flags every unread entry of the user read.
func (h *Hub) MarkAllRead(ctx context.Context, userID int64) (*ReadResult, error) {
	if h.notifications == nil {
		return &ReadResult{}, nil
	}
	n, err := h.notifications.MarkAllRead(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("mark all read: %w", err)
	}
	if n > 0 {
		h.pushUser(userID, &Event{Kind: EventUnreadCleared, Cleared: &UnreadCleared{All: true}})
	}
	return &ReadResult{Changed: n}, nil
}

// FetchPending returns the user's unread entries, newest first.
func (h *Hub) FetchPending(ctx context.Context, userID int64) ([]*store.UnreadEntry, error) {
	if h.notifications == nil {
		return nil, nil
	}
	entries, err := h.notifications.FetchPending(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch pending: %w", err)
	}
	return entries, nil
}

func (h *Hub) room(conv *store.Conversation) *Room {
	h.roomsMu.RLock()
	r, ok := h.rooms[conv.ID]
	h.roomsMu.RUnlock()
	if ok {
		return r
	}

	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	if r, ok = h.rooms[conv.ID]; !ok {
		r = NewRoom(conv)
		r.lastTS = h.evictedTS
		h.rooms[conv.ID] = r
	}
	return r
}

// lockedRoom returns the live room of a conversation with its mutex held.
func (h *Hub) lockedRoom(conv *store.Conversation) *Room {
	for {
		r := h.room(conv)
		r.mu.Lock()
		if !r.closed {
			return r
		}
		r.mu.Unlock()
	}
}

// releaseRoom evicts a room with no subscribers. New rooms start from the
// newest evicted timestamp, so a recreated room keeps its ordering.
func (h *Hub) releaseRoom(r *Room) {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || len(r.clients) > 0 {
		return
	}
	r.closed = true
	if h.rooms[r.ID] == r {
		delete(h.rooms, r.ID)
	}
	if r.lastTS.After(h.evictedTS) {
		h.evictedTS = r.lastTS
	}
}

func (h *Hub) lookupRoom(id int64) *Room {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return h.rooms[id]
}

func (h *Hub) pushUser(userID int64, ev *Event) {
	for _, c := range h.presence.Sessions(userID) {
		c.Push(ev)
	}
}

func (h *Hub) broadcastPresence(pe PresenceEvent, skip *Client) {
	ev := &Event{Kind: EventPresence, Presence: &pe}
	for _, c := range h.presence.All() {
		if c == skip {
			continue
		}
		c.Push(ev)
	}
}

func (h *Hub) queueMirror(ev PresenceEvent) {
	if h.mirror == nil {
		return
	}
	select {
	case h.mirrorQueue <- ev:
	default:
		h.log.Warn().Int64("user_id", ev.UserID).Msg("presence mirror queue full, dropping update")
	}
}

func (h *Hub) publishMirror(ctx context.Context, ev PresenceEvent) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var err error
	if ev.Online {
		err = h.mirror.Online(ctx, ev.UserID)
	} else {
		err = h.mirror.Offline(ctx, ev.UserID)
	}
	if err != nil {
		h.log.Warn().Err(err).Int64("user_id", ev.UserID).Bool("online", ev.Online).Msg("presence mirror")
	}
}
