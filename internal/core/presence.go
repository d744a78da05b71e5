package core

import (
	"sort"
	"sync"
	"time"
)

// Presence tracks live sessions per user. A user is online while at least
// one of their sessions is registered.
//
// One mutex guards the whole set: every operation is a few map updates,
// so per-user locking would not pay for itself at intranet scale.
type Presence struct {
	mu      sync.Mutex
	users   map[int64]*presenceEntry
	version uint64
	now     func() time.Time
}

type presenceEntry struct {
	name     string
	version  uint64 // of the online transition
	sessions map[*Client]struct{}
}

// NewPresence builds an empty presence set.
func NewPresence() *Presence {
	return &Presence{
		users: make(map[int64]*presenceEntry),
		now:   time.Now,
	}
}

// Connect registers a session. first is true when it is the user's only
// live session; ev is then the presence-online event to broadcast.
func (p *Presence) Connect(c *Client) (ev PresenceEvent, first bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.users[c.UserID]
	if !ok {
		entry = &presenceEntry{name: c.Name, sessions: make(map[*Client]struct{})}
		p.users[c.UserID] = entry
	}
	entry.sessions[c] = struct{}{}
	if len(entry.sessions) != 1 {
		return PresenceEvent{}, false
	}

	p.version++
	entry.version = p.version
	return PresenceEvent{UserID: c.UserID, Name: c.Name, Online: true, Version: p.version, At: p.now()}, true
}

// Disconnect removes a session. last is true when the user has no
// remaining sessions; ev is then the presence-offline event to broadcast.
func (p *Presence) Disconnect(c *Client) (ev PresenceEvent, last bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.users[c.UserID]
	if !ok {
		return PresenceEvent{}, false
	}
	if _, ok := entry.sessions[c]; !ok {
		return PresenceEvent{}, false
	}
	delete(entry.sessions, c)
	if len(entry.sessions) > 0 {
		return PresenceEvent{}, false
	}
	delete(p.users, c.UserID)

	p.version++
	return PresenceEvent{UserID: c.UserID, Name: entry.name, Online: false, Version: p.version, At: p.now()}, true
}

// Online returns the current online set ordered by user ID. Each entry
// carries the version of the user's online transition.
func (p *Presence) Online() []OnlineUser {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]OnlineUser, 0, len(p.users))
	for id, entry := range p.users {
		out = append(out, OnlineUser{UserID: id, Name: entry.name, Sessions: len(entry.sessions), Version: entry.version})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// IsOnline reports whether the user has at least one live session.
func (p *Presence) IsOnline(userID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.users[userID]
	return ok
}

// Sessions returns the live sessions of a user.
func (p *Presence) Sessions(userID int64) []*Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.users[userID]
	if !ok {
		return nil
	}
	out := make([]*Client, 0, len(entry.sessions))
	for c := range entry.sessions {
		out = append(out, c)
	}
	return out
}

// All returns every live session.
func (p *Presence) All() []*Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*Client
	for _, entry := range p.users {
		for c := range entry.sessions {
			out = append(out, c)
		}
	}
	return out
}

// Counts returns the number of online users and live sessions.
func (p *Presence) Counts() (users, sessions int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, entry := range p.users {
		sessions += len(entry.sessions)
	}
	return len(p.users), sessions
}
