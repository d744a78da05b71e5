package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustAck(t *testing.T, ch <-chan *Event, requestID string) *Ack {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == EventAck && ev.Ack.RequestID == requestID {
				return ev.Ack
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("ack %q not received", requestID)
	return nil
}

// collect drains ch for wait.
func collect(ch <-chan *Event, wait time.Duration) []*Event {
	var out []*Event
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case ev := <-ch:
			if ev != nil {
				out = append(out, ev)
			}
		case <-timer.C:
			return out
		}
	}
}

func ofKind(events []*Event, kind EventKind) []*Event {
	var out []*Event
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func ackOf(t *testing.T, events []*Event, requestID string) *Ack {
	t.Helper()
	for _, ev := range events {
		if ev.Kind == EventAck && ev.Ack.RequestID == requestID {
			return ev.Ack
		}
	}
	t.Fatalf("ack %q not among %d events", requestID, len(events))
	return nil
}

func startHub(t *testing.T, opts Options) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := NewHub(opts)
	go hub.Run(ctx)
	return hub
}

func connect(t *testing.T, hub *Hub, id string, userID int64, name string) *Client {
	t.Helper()
	c := NewClient(id, userID, name, nil, 0)
	hub.RegisterClient(c)
	mustEvent(t, c.Events, EventHello)
	t.Cleanup(func() { hub.UnregisterClient(c) })
	return c
}

// fakeConversations serves fixed conversations.
type fakeConversations struct {
	mu    sync.Mutex
	convs map[int64]Resolution
	names map[int64]string
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{convs: make(map[int64]Resolution), names: make(map[int64]string)}
}

func (f *fakeConversations) member(id int64) Member {
	return Member{UserID: id, Name: f.names[id]}
}

func (f *fakeConversations) addDirect(id, a, b int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convs[id] = Resolution{
		Conversation: &store.Conversation{ID: id, Kind: store.ConversationDirect},
		Members:      []Member{f.member(a), f.member(b)},
	}
}

func (f *fakeConversations) addGroup(id int64, role string, members ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := Resolution{Conversation: &store.Conversation{ID: id, Kind: store.ConversationGroup, Role: role}}
	for _, m := range members {
		res.Members = append(res.Members, f.member(m))
	}
	f.convs[id] = res
}

func (f *fakeConversations) Resolve(_ context.Context, senderID int64, target Target) (Resolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, res := range f.convs {
		switch {
		case target.Kind == TargetRole && res.Conversation.Role == target.Role:
			if len(res.Members) == 0 {
				return Resolution{}, ErrNotApplicable
			}
			if !res.HasMember(senderID) {
				return Resolution{}, ErrForbidden
			}
			return res, nil
		case target.Kind == TargetUser && res.Conversation.Kind == store.ConversationDirect &&
			res.HasMember(senderID) && res.HasMember(target.UserID):
			return res, nil
		}
	}
	return Resolution{}, ErrInvalidTarget
}

func (f *fakeConversations) Lookup(_ context.Context, conversationID int64) (Resolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.convs[conversationID]
	if !ok {
		return Resolution{}, ErrNotFound
	}
	return res, nil
}

// fakeMessages stores messages in memory and can simulate an outage.
type fakeMessages struct {
	mu     sync.Mutex
	msgs   []*store.Message
	failed bool
}

func (f *fakeMessages) fail(v bool) {
	f.mu.Lock()
	f.failed = v
	f.mu.Unlock()
}

func (f *fakeMessages) SaveMessage(_ context.Context, msg *store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed {
		return errors.New("disk full")
	}
	msg.ID = int64(len(f.msgs) + 1)
	cp := *msg
	f.msgs = append(f.msgs, &cp)
	return nil
}

func (f *fakeMessages) ListMessages(_ context.Context, conversationID int64, limit int, beforeID *int64) ([]*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Message
	for _, m := range f.msgs {
		if m.ConversationID != conversationID {
			continue
		}
		if beforeID != nil && m.ID >= *beforeID {
			continue
		}
		out = append(out, m)
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeMessages) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

// fakeNotifications keeps unread entries in memory.
type fakeNotifications struct {
	mu      sync.Mutex
	entries map[int64][]*store.UnreadEntry
}

func newFakeNotifications() *fakeNotifications {
	return &fakeNotifications{entries: make(map[int64][]*store.UnreadEntry)}
}

func (f *fakeNotifications) RecordUnread(_ context.Context, entry *store.UnreadEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[entry.RecipientID] = append(f.entries[entry.RecipientID], entry)
	return nil
}

func (f *fakeNotifications) MarkRead(_ context.Context, userID, messageID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.entries[userID]
	for i, e := range list {
		if e.MessageID == messageID {
			f.entries[userID] = append(list[:i:i], list[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeNotifications) MarkAllRead(_ context.Context, userID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.entries[userID])
	delete(f.entries, userID)
	return n, nil
}

func (f *fakeNotifications) MarkConversationRead(_ context.Context, userID, conversationID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	var keep []*store.UnreadEntry
	for _, e := range f.entries[userID] {
		if e.ConversationID == conversationID {
			ids = append(ids, e.MessageID)
			continue
		}
		keep = append(keep, e)
	}
	f.entries[userID] = keep
	return ids, nil
}

func (f *fakeNotifications) FetchPending(_ context.Context, userID int64) ([]*store.UnreadEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]*store.UnreadEntry(nil), f.entries[userID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].MessageID > out[j].MessageID })
	return out, nil
}

func (f *fakeNotifications) UnreadCount(_ context.Context, userID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries[userID]), nil
}

func (f *fakeNotifications) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, list := range f.entries {
		n += len(list)
	}
	return n
}

func newEntry(recipientID, messageID, conversationID int64) *store.UnreadEntry {
	return &store.UnreadEntry{
		RecipientID:    recipientID,
		MessageID:      messageID,
		ConversationID: conversationID,
		SenderID:       1,
		SenderName:     "alice",
		Body:           "hola",
		CreatedAt:      time.Now(),
	}
}
