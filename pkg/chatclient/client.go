// Package chatclient is a client for the chat WebSocket protocol. It keeps
// optimistic timelines per conversation, a presence view, typing indicators
// and the unread inbox in sync with the server, and reconnects on its own.
package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/proto"
)

var (
	ErrNotConnected = errors.New("chatclient: not connected")
	ErrDisconnected = errors.New("chatclient: connection lost")
	ErrAckTimeout   = errors.New("chatclient: ack timeout")
	ErrUnauthorized = errors.New("chatclient: token rejected")
	ErrLoggedOut    = errors.New("chatclient: logged out")
	ErrTokenExpired = errors.New("chatclient: token expired")
)

const (
	statusLoggedOut    websocket.StatusCode = 4000
	statusTokenExpired websocket.StatusCode = 4001

	readLimit    = 1 << 20
	writeTimeout = 10 * time.Second
)

// AckError is a request the server answered with ok=false.
type AckError struct {
	Code string
	Msg  string
}

func (e *AckError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Options configures a Client. Zero values take sensible defaults.
type Options struct {
	URL          string
	Token        string
	AckTimeout   time.Duration
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	TypingWindow time.Duration
	TypingIdle   time.Duration
	TypingExpiry time.Duration
	InboxSize    int
	EventBuffer  int
	OnAlert      func(proto.UnreadEntry)
	Logger       *zerolog.Logger
}

func (o *Options) setDefaults() {
	if o.AckTimeout <= 0 {
		o.AckTimeout = 10 * time.Second
	}
	if o.ReconnectMin <= 0 {
		o.ReconnectMin = 500 * time.Millisecond
	}
	if o.ReconnectMax < o.ReconnectMin {
		o.ReconnectMax = 30 * time.Second
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 256
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
}

// EventKind names what an Event carries.
type EventKind string

const (
	EventConnected     EventKind = "connected"
	EventDisconnected  EventKind = "disconnected"
	EventMessage       EventKind = proto.EventMessage
	EventPresence      EventKind = proto.EventPresence
	EventTyping        EventKind = proto.EventTyping
	EventUnread        EventKind = proto.EventUnread
	EventUnreadCleared EventKind = proto.EventUnreadCleared
)

// Event is delivered on the Events channel after local state was updated.
type Event struct {
	Kind     EventKind
	Entry    Entry
	Presence proto.EventPresenceData
	Typing   proto.EventTypingData
	Unread   proto.UnreadEntry
	Cleared  proto.EventUnreadClearedData
	Err      error
}

type frame struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	OK    *bool           `json:"ok"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

type reply struct {
	frame frame
	err   error
}

// Client keeps one session to the server alive while Run is active.
type Client struct {
	opts   Options
	log    *zerolog.Logger
	events chan Event

	Presence      *PresenceView
	Typing        *TypingView
	Notifications *NotificationCenter

	mu         sync.Mutex
	conn       *websocket.Conn
	self       proto.EventHelloData
	seq        uint64
	pending    map[string]chan reply
	joined     map[int64]struct{}
	timelines  map[int64]*Timeline
	debouncers map[int64]*TypingDebouncer
}

// New validates options and builds an idle client. Call Run to connect.
func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("chatclient: url is required")
	}
	if opts.Token == "" {
		return nil, errors.New("chatclient: token is required")
	}
	opts.setDefaults()

	return &Client{
		opts:          opts,
		log:           opts.Logger,
		events:        make(chan Event, opts.EventBuffer),
		Presence:      NewPresenceView(),
		Typing:        NewTypingView(opts.TypingExpiry),
		Notifications: NewNotificationCenter(opts.InboxSize, opts.OnAlert),
		pending:       make(map[string]chan reply),
		joined:        make(map[int64]struct{}),
		timelines:     make(map[int64]*Timeline),
		debouncers:    make(map[int64]*TypingDebouncer),
	}, nil
}

// Events streams state changes. Events are dropped if nobody drains it.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Self returns the identity announced by the server in the last hello.
func (c *Client) Self() proto.EventHelloData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Timeline returns the timeline of a conversation, creating it on first use.
func (c *Client) Timeline(conversationID int64) *Timeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	tl, ok := c.timelines[conversationID]
	if !ok {
		tl = NewTimeline(conversationID)
		c.timelines[conversationID] = tl
	}
	return tl
}

// Run connects and keeps reconnecting with backoff until ctx is done or the
// server ends the session for good (logout, token expiry, rejected token).
func (c *Client) Run(ctx context.Context) error {
	delay := c.opts.ReconnectMin
	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			c.publish(Event{Kind: EventDisconnected, Err: err})
			delay = c.opts.ReconnectMin
		}
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrLoggedOut) || errors.Is(err, ErrTokenExpired) {
			return err
		}

		c.log.Warn().Err(err).Dur("retry_in", delay).Msg("connection lost, reconnecting")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
		if delay > c.opts.ReconnectMax {
			delay = c.opts.ReconnectMax
		}
	}
}

// session runs one connection. connected reports whether the hello arrived.
func (c *Client) session(ctx context.Context) (bool, error) {
	conn, resp, err := websocket.Dial(ctx, c.opts.URL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + c.opts.Token}},
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return false, ErrUnauthorized
		}
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	hello, err := readHello(ctx, conn)
	if err != nil {
		return false, err
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.attach(conn, hello)
	c.log.Info().Str("session_id", hello.SessionID).Int64("user_id", hello.UserID).Msg("connected")

	readErr := make(chan error, 1)
	go func() {
		readErr <- c.readLoop(sessCtx, conn)
	}()

	c.resync(sessCtx)
	c.publish(Event{Kind: EventConnected})

	err = <-readErr
	if ctx.Err() != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}
	return true, err
}

func readHello(ctx context.Context, conn *websocket.Conn) (proto.EventHelloData, error) {
	var hello proto.EventHelloData

	helloCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	var f frame
	if err := wsjson.Read(helloCtx, conn, &f); err != nil {
		return hello, closeError(err)
	}
	if f.Type != proto.OutboundTypeEvent || f.Event != proto.EventHello {
		return hello, fmt.Errorf("expected hello, got %s/%s", f.Type, f.Event)
	}
	if err := json.Unmarshal(f.Data, &hello); err != nil {
		return hello, fmt.Errorf("decode hello: %w", err)
	}
	return hello, nil
}

func (c *Client) attach(conn *websocket.Conn, hello proto.EventHelloData) {
	c.mu.Lock()
	c.conn = conn
	c.self = hello
	c.mu.Unlock()
	c.Presence.Reset(hello.Online)
}

// detach fails every outstanding request of the dropped connection.
func (c *Client) detach(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	waiting := c.pending
	c.pending = make(map[string]chan reply)
	c.mu.Unlock()

	for _, ch := range waiting {
		ch <- reply{err: cause}
	}
}

// resync restores server-side state after a (re)connect.
func (c *Client) resync(ctx context.Context) {
	c.mu.Lock()
	ids := make([]int64, 0, len(c.joined))
	for id := range c.joined {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		if _, err := c.Join(ctx, id); err != nil {
			c.log.Warn().Err(err).Int64("conversation_id", id).Msg("rejoin failed")
			var ackErr *AckError
			if errors.As(err, &ackErr) {
				c.forgetJoined(id)
			}
		}
	}
	if _, err := c.Online(ctx); err != nil {
		c.log.Warn().Err(err).Msg("refresh online users failed")
	}
	if _, err := c.FetchPending(ctx); err != nil {
		c.log.Warn().Err(err).Msg("refresh unread entries failed")
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			cause := closeError(err)
			c.detach(conn, cause)
			return cause
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn().Err(err).Msg("undecodable frame")
			continue
		}
		switch f.Type {
		case proto.OutboundTypeAck:
			c.resolve(f)
		case proto.OutboundTypeEvent:
			c.dispatch(f)
		case proto.OutboundTypeError:
			if f.Error != nil {
				c.log.Warn().Str("code", f.Error.Code).Str("msg", f.Error.Msg).Msg("frame rejected")
			}
		}
	}
}

func closeError(err error) error {
	switch websocket.CloseStatus(err) {
	case statusLoggedOut:
		return ErrLoggedOut
	case statusTokenExpired:
		return ErrTokenExpired
	}
	return fmt.Errorf("%w: %v", ErrDisconnected, err)
}

func (c *Client) resolve(f frame) {
	c.mu.Lock()
	ch, ok := c.pending[f.ID]
	delete(c.pending, f.ID)
	c.mu.Unlock()
	if ok {
		ch <- reply{frame: f}
	}
}

func (c *Client) dispatch(f frame) {
	switch f.Event {
	case proto.EventMessage:
		var msg proto.Message
		if c.decode(f, &msg) {
			entry := c.Timeline(msg.ConversationID).Confirm(msg)
			c.publish(Event{Kind: EventMessage, Entry: entry})
		}
	case proto.EventPresence:
		var ev proto.EventPresenceData
		if c.decode(f, &ev) && c.Presence.Apply(ev) {
			c.publish(Event{Kind: EventPresence, Presence: ev})
		}
	case proto.EventTyping:
		var ev proto.EventTypingData
		if c.decode(f, &ev) && c.Typing.Apply(ev) {
			c.publish(Event{Kind: EventTyping, Typing: ev})
		}
	case proto.EventUnread:
		var entry proto.UnreadEntry
		if c.decode(f, &entry) && c.Notifications.Add(entry) {
			c.publish(Event{Kind: EventUnread, Unread: entry})
		}
	case proto.EventUnreadCleared:
		var ev proto.EventUnreadClearedData
		if c.decode(f, &ev) {
			c.Notifications.Clear(ev)
			c.publish(Event{Kind: EventUnreadCleared, Cleared: ev})
		}
	case proto.EventHello:
	default:
		c.log.Debug().Str("event", f.Event).Msg("unhandled event")
	}
}

func (c *Client) decode(f frame, v any) bool {
	if err := json.Unmarshal(f.Data, v); err != nil {
		c.log.Warn().Err(err).Str("event", f.Event).Msg("decode event")
		return false
	}
	return true
}

func (c *Client) publish(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn().Str("kind", string(ev.Kind)).Msg("event dropped, consumer too slow")
	}
}

// request writes a frame with a fresh id and waits for its ack.
func (c *Client) request(ctx context.Context, typ string, data, out any) error {
	raw, err := marshalData(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.seq++
	id := strconv.FormatUint(c.seq, 10)
	ch := make(chan reply, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	if err := write(ctx, conn, proto.Inbound{Type: typ, ID: id, Data: raw}); err != nil {
		c.forget(id)
		return fmt.Errorf("write %s: %w", typ, err)
	}

	timer := time.NewTimer(c.opts.AckTimeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.err != nil {
			return r.err
		}
		if r.frame.OK == nil || !*r.frame.OK {
			if r.frame.Error != nil {
				return &AckError{Code: r.frame.Error.Code, Msg: r.frame.Error.Msg}
			}
			return &AckError{Code: "unknown", Msg: "request failed"}
		}
		if out != nil && len(r.frame.Data) > 0 {
			if err := json.Unmarshal(r.frame.Data, out); err != nil {
				return fmt.Errorf("decode %s ack: %w", typ, err)
			}
		}
		return nil
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case <-timer.C:
		c.forget(id)
		return ErrAckTimeout
	}
}

// notify writes a frame that expects no ack.
func (c *Client) notify(ctx context.Context, typ string, data any) error {
	raw, err := marshalData(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return write(ctx, conn, proto.Inbound{Type: typ, Data: raw})
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) forgetJoined(conversationID int64) {
	c.mu.Lock()
	delete(c.joined, conversationID)
	c.mu.Unlock()
}

func marshalData(data any) (json.RawMessage, error) {
	if data == nil {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return raw, nil
}

func write(ctx context.Context, conn *websocket.Conn, in proto.Inbound) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, in)
}
