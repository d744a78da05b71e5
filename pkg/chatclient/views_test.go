package chatclient

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/proto"
)

type emitRecorder struct {
	mu    sync.Mutex
	calls []bool
}

func (r *emitRecorder) emit(typing bool) {
	r.mu.Lock()
	r.calls = append(r.calls, typing)
	r.mu.Unlock()
}

func (r *emitRecorder) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.calls...)
}

func TestTypingDebouncerStartsOnceAndStopsWhenIdle(t *testing.T) {
	rec := &emitRecorder{}
	d := NewTypingDebouncer(time.Hour, 50*time.Millisecond, rec.emit)

	d.Keystroke("h")
	d.Keystroke("ho")
	d.Keystroke("hol")
	require.Equal(t, []bool{true}, rec.snapshot())
	require.True(t, d.Active())

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []bool{true, false}, rec.snapshot())
	require.False(t, d.Active())
}

func TestTypingDebouncerStopsOnEmptyInput(t *testing.T) {
	rec := &emitRecorder{}
	d := NewTypingDebouncer(time.Hour, time.Hour, rec.emit)

	d.Keystroke("   ")
	require.Empty(t, rec.snapshot())

	d.Keystroke("x")
	d.Keystroke("")
	d.Stop()
	require.Equal(t, []bool{true, false}, rec.snapshot())
}

func TestTypingDebouncerRefreshesAfterWindow(t *testing.T) {
	rec := &emitRecorder{}
	d := NewTypingDebouncer(20*time.Millisecond, time.Hour, rec.emit)

	d.Keystroke("a")
	time.Sleep(30 * time.Millisecond)
	d.Keystroke("ab")
	require.Equal(t, []bool{true, true}, rec.snapshot())

	d.Reset()
	require.False(t, d.Active())
	d.Stop()
	require.Equal(t, []bool{true, true}, rec.snapshot())
}

func TestTypingViewExpiresWithoutStop(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := NewTypingView(3 * time.Second)
	v.now = func() time.Time { return now }
	v.Open(7)

	ev := proto.EventTypingData{ConversationID: 7, UserID: 2, Name: "bea", Typing: true, Target: proto.Target{Kind: "user", UserID: 1}}
	require.True(t, v.Apply(ev))
	require.False(t, v.Apply(proto.EventTypingData{ConversationID: 8, UserID: 3, Typing: true}))
	require.Len(t, v.Active(), 1)

	now = now.Add(2 * time.Second)
	require.Len(t, v.Active(), 1)

	now = now.Add(1200 * time.Millisecond)
	require.Empty(t, v.Active())
}

func TestTypingViewStopAndSwitch(t *testing.T) {
	v := NewTypingView(0)
	require.False(t, v.Apply(proto.EventTypingData{ConversationID: 1, UserID: 2, Typing: true}))

	v.Open(1)
	v.Apply(proto.EventTypingData{ConversationID: 1, UserID: 2, Name: "bea", Typing: true})
	v.Apply(proto.EventTypingData{ConversationID: 1, UserID: 3, Name: "cris", Typing: true})
	v.Apply(proto.EventTypingData{ConversationID: 1, UserID: 2, Typing: false})

	active := v.Active()
	require.Len(t, active, 1)
	require.Equal(t, "cris", active[0].Name)

	v.Open(2)
	require.Empty(t, v.Active())
	require.Equal(t, int64(2), v.Current())
}

func TestPresenceViewDiscardsStaleEvents(t *testing.T) {
	p := NewPresenceView()
	p.Reset([]proto.OnlineUser{{UserID: 1, Name: "ana"}})
	require.True(t, p.IsOnline(1))

	require.True(t, p.Apply(proto.EventPresenceData{UserID: 2, Name: "bea", Online: true, Version: 5}))
	require.False(t, p.Apply(proto.EventPresenceData{UserID: 2, Name: "bea", Online: false, Version: 4}))
	require.True(t, p.IsOnline(2))

	require.True(t, p.Apply(proto.EventPresenceData{UserID: 2, Name: "bea", Online: false, Version: 6}))
	require.False(t, p.IsOnline(2))

	require.True(t, p.Apply(proto.EventPresenceData{UserID: 1, Name: "ana", Online: false, Version: 7}))
	require.Empty(t, p.Online())
}

func TestPresenceViewSnapshotOutranksOlderEvents(t *testing.T) {
	p := NewPresenceView()
	// Online at version 7 already reflects the offline transition at 6.
	p.Reset([]proto.OnlineUser{{UserID: 42, Name: "gus", Version: 7}, {UserID: 3, Name: "cris", Version: 2}})

	require.False(t, p.Apply(proto.EventPresenceData{UserID: 42, Name: "gus", Online: false, Version: 6}))
	require.True(t, p.IsOnline(42))

	// Any transition the snapshot already reflects is dropped, even for absent users.
	require.False(t, p.Apply(proto.EventPresenceData{UserID: 9, Name: "ivo", Online: true, Version: 5}))
	require.False(t, p.IsOnline(9))

	require.True(t, p.Apply(proto.EventPresenceData{UserID: 42, Name: "gus", Online: false, Version: 8}))
	require.False(t, p.IsOnline(42))
	require.True(t, p.IsOnline(3))
}

func TestNotificationCenterAlertsOnlyWhenPanelClosed(t *testing.T) {
	var alerts []int64
	n := NewNotificationCenter(2, func(e proto.UnreadEntry) { alerts = append(alerts, e.MessageID) })

	require.True(t, n.Add(proto.UnreadEntry{MessageID: 1}))
	require.False(t, n.Add(proto.UnreadEntry{MessageID: 1}))

	n.SetPanelOpen(true)
	require.True(t, n.Add(proto.UnreadEntry{MessageID: 2}))
	n.SetPanelOpen(false)
	require.True(t, n.Add(proto.UnreadEntry{MessageID: 3}))

	require.Equal(t, []int64{1, 3}, alerts)

	entries := n.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, int64(3), entries[0].MessageID)
	require.Equal(t, int64(2), entries[1].MessageID)
}

func TestNotificationCenterClear(t *testing.T) {
	n := NewNotificationCenter(0, nil)
	n.Load([]proto.UnreadEntry{{MessageID: 3}, {MessageID: 2}, {MessageID: 1}})

	require.Equal(t, 1, n.Clear(proto.EventUnreadClearedData{MessageIDs: []int64{2}}))
	require.Zero(t, n.Clear(proto.EventUnreadClearedData{MessageIDs: []int64{2}}))
	require.Equal(t, 2, n.Count())

	require.Equal(t, 2, n.Clear(proto.EventUnreadClearedData{All: true}))
	require.Zero(t, n.Count())
}
