package core

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// CloseReason explains why the core ended a session.
type CloseReason int

const (
	CloseNone CloseReason = iota
	// CloseLogout is used when the user logged out.
	CloseLogout
	// CloseTokenExpired is used when the session token expired.
	CloseTokenExpired
	// CloseSlowConsumer is used when the outbound buffer overflowed.
	CloseSlowConsumer
	// CloseShutdown is used when the hub stops.
	CloseShutdown
)

const defaultEventBuffer = 64

// Client is one authenticated session as seen by the core layer.
// A user with several tabs or devices has several clients.
type Client struct {
	ID       string
	UserID   int64
	Name     string
	Roles    []string
	Commands chan *Command
	Events   chan *Event

	ctx     context.Context
	cancel  context.CancelFunc
	limiter *rate.Limiter

	mu     sync.Mutex
	rooms  map[int64]struct{}
	reason CloseReason

	unregister sync.Once
}

// NewClient constructs a client with initialized channels.
// buffer sizes the outbound event queue; zero picks a default.
func NewClient(id string, userID int64, name string, roles []string, buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:       id,
		UserID:   userID,
		Name:     name,
		Roles:    roles,
		Commands: make(chan *Command, 8),
		Events:   make(chan *Event, buffer),
		ctx:      ctx,
		cancel:   cancel,
		rooms:    make(map[int64]struct{}),
	}
}

// SetRateLimit limits how many messages the session may send.
// A non-positive rate disables limiting.
func (c *Client) SetRateLimit(perSecond float64, burst int) {
	if perSecond <= 0 {
		c.limiter = nil
		return
	}
	if burst <= 0 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

func (c *Client) allowSend() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// Done is closed when the session ends.
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Context is canceled when the session ends.
func (c *Client) Context() context.Context {
	return c.ctx
}

// Close ends the session. Only the first reason is kept.
func (c *Client) Close(reason CloseReason) {
	c.mu.Lock()
	if c.reason == CloseNone {
		c.reason = reason
	}
	c.mu.Unlock()
	c.cancel()
}

// Reason returns why the session was closed by the core, if it was.
func (c *Client) Reason() CloseReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Push queues an event for the session without blocking.
// A full queue closes the session: the client resyncs on reconnect
// instead of silently missing events.
func (c *Client) Push(ev *Event) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}
	select {
	case c.Events <- ev:
		return true
	default:
		c.Close(CloseSlowConsumer)
		return false
	}
}

// Joined reports whether the session joined the conversation.
func (c *Client) Joined(conversationID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[conversationID]
	return ok
}

// JoinedConversations returns the conversations the session has joined.
func (c *Client) JoinedConversations() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int64, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	return ids
}

func (c *Client) addRoom(conversationID int64) {
	c.mu.Lock()
	c.rooms[conversationID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) removeRoom(conversationID int64) {
	c.mu.Lock()
	delete(c.rooms, conversationID)
	c.mu.Unlock()
}
