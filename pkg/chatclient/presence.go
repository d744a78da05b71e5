package chatclient

import (
	"sort"
	"sync"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/proto"
)

type presenceState struct {
	name    string
	online  bool
	version uint64
}

// PresenceView tracks who is online. Transitions carry a version and a
// late event older than what the view already holds is discarded.
type PresenceView struct {
	mu    sync.Mutex
	users map[int64]presenceState
	floor uint64 // newest version reflected by the last snapshot
}

func NewPresenceView() *PresenceView {
	return &PresenceView{users: make(map[int64]presenceState)}
}

// Reset replaces the view with a fresh snapshot, as received after a
// (re)connect. The snapshot already reflects every transition up to the
// newest version it carries, so events at or below it are discarded.
// Versions start over because the server may have restarted.
func (p *PresenceView) Reset(online []proto.OnlineUser) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users = make(map[int64]presenceState, len(online))
	p.floor = 0
	for _, u := range online {
		p.users[u.UserID] = presenceState{name: u.Name, online: true, version: u.Version}
		if u.Version > p.floor {
			p.floor = u.Version
		}
	}
}

// Apply folds a presence event in and reports whether it changed the view.
func (p *PresenceView) Apply(ev proto.EventPresenceData) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ev.Version <= p.floor {
		return false
	}
	cur, ok := p.users[ev.UserID]
	if ok && ev.Version <= cur.version {
		return false
	}
	p.users[ev.UserID] = presenceState{name: ev.Name, online: ev.Online, version: ev.Version}
	return !ok || cur.online != ev.Online
}

// IsOnline reports the last known state of a user.
func (p *PresenceView) IsOnline(userID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.users[userID].online
}

// Online lists online users ordered by name.
func (p *PresenceView) Online() []proto.OnlineUser {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]proto.OnlineUser, 0, len(p.users))
	for id, st := range p.users {
		if st.online {
			out = append(out, proto.OnlineUser{UserID: id, Name: st.name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
