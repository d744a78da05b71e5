package core

import (
	"sync"
	"time"
)

// DefaultTypingIdle is how long after the last keystroke typing stops.
const DefaultTypingIdle = time.Second

type typingKey struct {
	conversationID int64
	userID         int64
}

type typingState struct {
	name   string
	target Target
	timer  *time.Timer
	gen    uint64
}

// TypingCoordinator debounces keystrokes into start/stop transitions per
// (conversation, user). emit is called outside the coordinator lock.
type TypingCoordinator struct {
	idle time.Duration
	emit func(TypingEvent)

	mu     sync.Mutex
	active map[typingKey]*typingState
	gen    uint64
}

// NewTypingCoordinator builds a coordinator that stops typing after idle
// without keystrokes.
func NewTypingCoordinator(idle time.Duration, emit func(TypingEvent)) *TypingCoordinator {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &TypingCoordinator{
		idle:   idle,
		emit:   emit,
		active: make(map[typingKey]*typingState),
	}
}

// Keystroke records activity. Typing starts if it was not active; the idle
// timer is re-armed either way.
func (t *TypingCoordinator) Keystroke(conversationID, userID int64, name string, target Target) {
	key := typingKey{conversationID: conversationID, userID: userID}

	t.mu.Lock()
	t.gen++
	gen := t.gen
	st, ok := t.active[key]
	if ok {
		st.timer.Stop()
		st.gen = gen
		st.timer = time.AfterFunc(t.idle, func() { t.expire(key, gen) })
		t.mu.Unlock()
		return
	}
	st = &typingState{name: name, target: target, gen: gen}
	st.timer = time.AfterFunc(t.idle, func() { t.expire(key, gen) })
	t.active[key] = st
	t.mu.Unlock()

	t.emit(TypingEvent{ConversationID: conversationID, UserID: userID, Name: name, Typing: true, Target: target})
}

// Stop ends typing immediately. No event is emitted if typing was not active.
func (t *TypingCoordinator) Stop(conversationID, userID int64) {
	key := typingKey{conversationID: conversationID, userID: userID}

	t.mu.Lock()
	st, ok := t.active[key]
	if !ok {
		t.mu.Unlock()
		return
	}
	st.timer.Stop()
	delete(t.active, key)
	t.mu.Unlock()

	t.emit(TypingEvent{ConversationID: conversationID, UserID: userID, Name: st.name, Typing: false, Target: st.target})
}

// StopUser ends typing of a user in every conversation.
func (t *TypingCoordinator) StopUser(userID int64) {
	t.mu.Lock()
	var convs []int64
	for key := range t.active {
		if key.userID == userID {
			convs = append(convs, key.conversationID)
		}
	}
	t.mu.Unlock()

	for _, id := range convs {
		t.Stop(id, userID)
	}
}

// Active reports whether the user is typing in the conversation.
func (t *TypingCoordinator) Active(conversationID, userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active[typingKey{conversationID: conversationID, userID: userID}]
	return ok
}

// expire fires from the idle timer. A timer superseded by a later
// keystroke carries an old generation and is ignored.
func (t *TypingCoordinator) expire(key typingKey, gen uint64) {
	t.mu.Lock()
	st, ok := t.active[key]
	if !ok || st.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.active, key)
	t.mu.Unlock()

	t.emit(TypingEvent{ConversationID: key.conversationID, UserID: key.userID, Name: st.name, Typing: false, Target: st.target})
}
