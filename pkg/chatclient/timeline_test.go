package chatclient

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/proto"
)

func serverCopy(e Entry, id, createdAt int64) proto.Message {
	return proto.Message{
		ID:             id,
		ConversationID: e.ConversationID,
		SenderID:       e.SenderID,
		SenderName:     e.SenderName,
		Body:           e.Body,
		ClientMsgID:    e.LocalID,
		CreatedAt:      createdAt,
	}
}

func TestTimelineAckThenEchoKeepsOneEntry(t *testing.T) {
	tl := NewTimeline(7)
	pending := tl.AddPending(1, "ana", "Turno de guardia")
	require.Equal(t, StatePending, pending.State)
	require.NotEmpty(t, pending.LocalID)

	msg := serverCopy(pending, 40, 1_700_000_000_000)
	acked := tl.Confirm(msg)
	require.Equal(t, StateConfirmed, acked.State)
	require.Equal(t, int64(40), acked.ID)
	require.Equal(t, pending.LocalID, acked.LocalID)

	tl.Confirm(msg)

	entries := tl.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, int64(40), entries[0].ID)
	require.Equal(t, msg.CreatedAt, entries[0].CreatedAt.UnixMilli())
	require.Zero(t, tl.Pending())
}

func TestTimelineEchoThenAckKeepsOneEntry(t *testing.T) {
	tl := NewTimeline(7)
	pending := tl.AddPending(1, "ana", "hola")
	msg := serverCopy(pending, 41, 1_700_000_000_500)

	tl.Confirm(msg)
	tl.Confirm(msg)

	entries := tl.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, StateConfirmed, entries[0].State)

	// A failure arriving after confirmation must not remove the message.
	_, removed := tl.Fail(pending.LocalID, errors.New("late"))
	require.False(t, removed)
	require.Len(t, tl.Entries(), 1)
}

func TestTimelineFailRemovesPending(t *testing.T) {
	tl := NewTimeline(3)
	pending := tl.AddPending(1, "ana", "lost")
	cause := errors.New("persist_failed")

	failed, ok := tl.Fail(pending.LocalID, cause)
	require.True(t, ok)
	require.Equal(t, StateFailed, failed.State)
	require.ErrorIs(t, failed.Err, cause)
	require.Empty(t, tl.Entries())

	_, ok = tl.Fail(pending.LocalID, cause)
	require.False(t, ok)
}

func TestTimelineInsertsOthersInTimestampOrder(t *testing.T) {
	tl := NewTimeline(9)
	tl.Confirm(proto.Message{ID: 1, ConversationID: 9, SenderID: 2, Body: "a", CreatedAt: 1000})
	tl.Confirm(proto.Message{ID: 3, ConversationID: 9, SenderID: 2, Body: "c", CreatedAt: 3000})
	mine := tl.AddPending(1, "ana", "mine")
	tl.Confirm(proto.Message{ID: 2, ConversationID: 9, SenderID: 2, Body: "b", CreatedAt: 2000})
	tl.Confirm(proto.Message{ID: 4, ConversationID: 9, SenderID: 2, Body: "d", CreatedAt: 4000})

	entries := tl.Entries()
	require.Len(t, entries, 5)
	var bodies []string
	for _, e := range entries {
		bodies = append(bodies, e.Body)
	}
	require.Equal(t, []string{"a", "b", "c", "d", "mine"}, bodies)
	require.Equal(t, mine.LocalID, entries[4].LocalID)
	require.Equal(t, StatePending, entries[4].State)
}

func TestTimelineLoadIsIdempotent(t *testing.T) {
	tl := NewTimeline(5)
	page := []proto.Message{
		{ID: 1, ConversationID: 5, Body: "one", CreatedAt: 10},
		{ID: 2, ConversationID: 5, Body: "two", CreatedAt: 20},
	}
	tl.Load(page)
	tl.Load(page)
	require.Len(t, tl.Entries(), 2)
}
