package core

import (
	"sync"
	"testing"
	"time"
)

type typingRecorder struct {
	mu     sync.Mutex
	events []TypingEvent
}

func (r *typingRecorder) emit(ev TypingEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *typingRecorder) snapshot() []TypingEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TypingEvent(nil), r.events...)
}

func TestTypingDebounceAndIdleStop(t *testing.T) {
	rec := &typingRecorder{}
	tc := NewTypingCoordinator(80*time.Millisecond, rec.emit)

	for range 5 {
		tc.Keystroke(10, 1, "alice", UserTarget(1))
		time.Sleep(20 * time.Millisecond)
	}
	if got := rec.snapshot(); len(got) != 1 || !got[0].Typing {
		t.Fatalf("expected a single start while typing, got %+v", got)
	}

	time.Sleep(200 * time.Millisecond)
	got := rec.snapshot()
	if len(got) != 2 || got[1].Typing {
		t.Fatalf("expected start then stop, got %+v", got)
	}
	if tc.Active(10, 1) {
		t.Fatalf("typing should be inactive after idle")
	}
}

func TestTypingExplicitStop(t *testing.T) {
	rec := &typingRecorder{}
	tc := NewTypingCoordinator(time.Hour, rec.emit)

	tc.Keystroke(10, 1, "alice", RoleTarget("OPS"))
	tc.Stop(10, 1)
	tc.Stop(10, 1)

	got := rec.snapshot()
	if len(got) != 2 {
		t.Fatalf("expected start and one stop, got %+v", got)
	}
	if got[1].Typing || got[1].Target != RoleTarget("OPS") {
		t.Fatalf("unexpected stop event: %+v", got[1])
	}
}

func TestTypingStopUser(t *testing.T) {
	rec := &typingRecorder{}
	tc := NewTypingCoordinator(time.Hour, rec.emit)

	tc.Keystroke(10, 1, "alice", UserTarget(1))
	tc.Keystroke(11, 1, "alice", UserTarget(1))
	tc.Keystroke(11, 2, "bob", UserTarget(2))

	tc.StopUser(1)
	if tc.Active(10, 1) || tc.Active(11, 1) {
		t.Fatalf("alice should not be typing anywhere")
	}
	if !tc.Active(11, 2) {
		t.Fatalf("bob should still be typing")
	}
}
