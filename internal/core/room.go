package core

import (
	"sync"
	"time"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/store"
)

// Room holds the sessions subscribed to one conversation.
// Its mutex serializes joins, leaves and deliveries of that conversation only.
type Room struct {
	ID int64

	mu      sync.Mutex
	conv    *store.Conversation
	clients map[*Client]struct{}
	lastTS  time.Time
	closed  bool
}

// NewRoom constructs a room with no clients.
func NewRoom(conv *store.Conversation) *Room {
	return &Room{
		ID:      conv.ID,
		conv:    conv,
		clients: make(map[*Client]struct{}),
	}
}

// Conversation returns the conversation record the room serves.
func (r *Room) Conversation() *store.Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conv
}

// AddClient inserts a client into the room. added is false when the client
// was already there; ok is false when the hub evicted the room.
func (r *Room) AddClient(c *Client) (added, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false, false
	}
	if _, exists := r.clients[c]; exists {
		return false, true
	}
	r.clients[c] = struct{}{}
	return true, true
}

// RemoveClient deletes a client from the room. Returns true if removed.
func (r *Room) RemoveClient(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	return true
}

// Clients returns a snapshot of the subscribed sessions.
func (r *Room) Clients() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clientsLocked()
}

func (r *Room) clientsLocked() []*Client {
	out := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		out = append(out, c)
	}
	return out
}

// nextTimestamp returns a server timestamp strictly after the previous one.
// Callers hold r.mu.
func (r *Room) nextTimestamp(now time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	if !now.After(r.lastTS) {
		now = r.lastTS.Add(time.Microsecond)
	}
	r.lastTS = now
	return now
}

// Broadcast sends an event to all clients in the room except skip.
func (r *Room) Broadcast(event *Event, skipUser int64) {
	for _, client := range r.Clients() {
		if skipUser != 0 && client.UserID == skipUser {
			continue
		}
		client.Push(event)
	}
}
