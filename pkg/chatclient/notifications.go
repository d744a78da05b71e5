package chatclient

import (
	"sync"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/proto"
)

const DefaultInboxSize = 50

// NotificationCenter mirrors the user's unread entries, newest first.
// The alert callback fires for new entries only while the panel is closed.
type NotificationCenter struct {
	limit int
	alert func(proto.UnreadEntry)

	mu        sync.Mutex
	entries   []proto.UnreadEntry
	panelOpen bool
}

// NewNotificationCenter builds a center; alert may be nil.
func NewNotificationCenter(limit int, alert func(proto.UnreadEntry)) *NotificationCenter {
	if limit <= 0 {
		limit = DefaultInboxSize
	}
	return &NotificationCenter{limit: limit, alert: alert}
}

// Load replaces the entries with a fetched pending list. No alerts.
func (n *NotificationCenter) Load(entries []proto.UnreadEntry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(entries) > n.limit {
		entries = entries[:n.limit]
	}
	n.entries = append([]proto.UnreadEntry(nil), entries...)
}

// Add records a new unread entry. Duplicates are ignored.
func (n *NotificationCenter) Add(e proto.UnreadEntry) bool {
	n.mu.Lock()
	for _, cur := range n.entries {
		if cur.MessageID == e.MessageID {
			n.mu.Unlock()
			return false
		}
	}
	n.entries = append([]proto.UnreadEntry{e}, n.entries...)
	if len(n.entries) > n.limit {
		n.entries = n.entries[:n.limit]
	}
	alert := n.alert != nil && !n.panelOpen
	n.mu.Unlock()

	if alert {
		n.alert(e)
	}
	return true
}

// Clear applies an unread_cleared event and returns how many entries went away.
func (n *NotificationCenter) Clear(ev proto.EventUnreadClearedData) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	if ev.All {
		removed := len(n.entries)
		n.entries = nil
		return removed
	}
	drop := make(map[int64]struct{}, len(ev.MessageIDs))
	for _, id := range ev.MessageIDs {
		drop[id] = struct{}{}
	}
	kept := n.entries[:0]
	for _, e := range n.entries {
		if _, ok := drop[e.MessageID]; !ok {
			kept = append(kept, e)
		}
	}
	removed := len(n.entries) - len(kept)
	n.entries = kept
	return removed
}

// SetPanelOpen records whether the notification panel is visible.
func (n *NotificationCenter) SetPanelOpen(open bool) {
	n.mu.Lock()
	n.panelOpen = open
	n.mu.Unlock()
}

func (n *NotificationCenter) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.entries)
}

func (n *NotificationCenter) Entries() []proto.UnreadEntry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]proto.UnreadEntry(nil), n.entries...)
}
