package chatclient

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/proto"
)

// EntryState tags a timeline entry.
type EntryState int

const (
	StatePending EntryState = iota
	StateConfirmed
	StateFailed
)

func (s EntryState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Entry is one visible message of a conversation.
// LocalID is set for messages sent from this client and survives confirmation.
type Entry struct {
	LocalID        string
	ID             int64
	ConversationID int64
	SenderID       int64
	SenderName     string
	Body           string
	CreatedAt      time.Time
	State          EntryState
	Err            error
}

// Timeline holds the ordered messages of one conversation, including
// tentative ones that have not been acknowledged yet.
type Timeline struct {
	mu             sync.Mutex
	conversationID int64
	entries        []Entry
}

// NewTimeline returns an empty timeline for the conversation.
func NewTimeline(conversationID int64) *Timeline {
	return &Timeline{conversationID: conversationID}
}

// ConversationID returns the conversation the timeline belongs to.
func (t *Timeline) ConversationID() int64 {
	return t.conversationID
}

// AddPending appends a tentative entry under a fresh correlation id.
func (t *Timeline) AddPending(senderID int64, senderName, body string) Entry {
	e := Entry{
		LocalID:        uuid.NewString(),
		ConversationID: t.conversationID,
		SenderID:       senderID,
		SenderName:     senderName,
		Body:           body,
		CreatedAt:      time.Now(),
		State:          StatePending,
	}
	t.mu.Lock()
	t.entries = append(t.entries, e)
	t.mu.Unlock()
	return e
}

// Confirm applies an authoritative message. The ack of a send and the
// broadcast of the same message are both routed here: whichever arrives
// first replaces the pending entry, the second finds it by server id.
func (t *Timeline) Confirm(msg proto.Message) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i := t.indexOf(msg.ClientMsgID, msg.ID); i >= 0 {
		e := &t.entries[i]
		e.ID = msg.ID
		e.SenderID = msg.SenderID
		e.SenderName = msg.SenderName
		e.Body = msg.Body
		e.CreatedAt = time.UnixMilli(msg.CreatedAt)
		e.State = StateConfirmed
		e.Err = nil
		return *e
	}

	e := Entry{
		LocalID:        msg.ClientMsgID,
		ID:             msg.ID,
		ConversationID: t.conversationID,
		SenderID:       msg.SenderID,
		SenderName:     msg.SenderName,
		Body:           msg.Body,
		CreatedAt:      time.UnixMilli(msg.CreatedAt),
		State:          StateConfirmed,
	}
	pos := len(t.entries)
	for i, cur := range t.entries {
		if cur.State == StatePending || cur.CreatedAt.After(e.CreatedAt) ||
			(cur.CreatedAt.Equal(e.CreatedAt) && cur.ID > e.ID) {
			pos = i
			break
		}
	}
	t.entries = append(t.entries, Entry{})
	copy(t.entries[pos+1:], t.entries[pos:])
	t.entries[pos] = e
	return e
}

// Fail drops the pending entry and returns it marked failed.
// Confirmed entries are left alone.
func (t *Timeline) Fail(localID string, err error) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexOf(localID, 0)
	if i < 0 || t.entries[i].State != StatePending {
		return Entry{}, false
	}
	e := t.entries[i]
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
	e.State = StateFailed
	e.Err = err
	return e, true
}

// Load merges a page of history.
func (t *Timeline) Load(msgs []proto.Message) {
	for _, m := range msgs {
		t.Confirm(m)
	}
}

// Entries returns a snapshot in display order.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Pending reports how many entries still wait for an ack.
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, e := range t.entries {
		if e.State == StatePending {
			n++
		}
	}
	return n
}

func (t *Timeline) indexOf(localID string, id int64) int {
	for i, e := range t.entries {
		if localID != "" && e.LocalID == localID {
			return i
		}
		if id != 0 && e.ID == id {
			return i
		}
	}
	return -1
}
