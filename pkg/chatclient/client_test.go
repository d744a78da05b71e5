package chatclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/proto"
)

const testToken = "good-token"

type fakeSession struct {
	n    int
	conn *websocket.Conn
}

func (s *fakeSession) send(out proto.Outbound) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = wsjson.Write(ctx, s.conn, out)
}

func (s *fakeSession) ack(id string, data any) {
	ok := true
	s.send(proto.Outbound{Type: proto.OutboundTypeAck, ID: id, OK: &ok, Data: data})
}

func (s *fakeSession) fail(id, code string) {
	ok := false
	s.send(proto.Outbound{Type: proto.OutboundTypeAck, ID: id, OK: &ok, Error: &proto.Error{Code: code, Msg: code}})
}

func (s *fakeSession) event(name string, data any) {
	s.send(proto.Outbound{Type: proto.OutboundTypeEvent, Event: name, Data: data})
}

type seenFrame struct {
	session int
	in      proto.Inbound
}

// fakeServer speaks the chat protocol with scripted replies.
type fakeServer struct {
	ts   *httptest.Server
	seen chan seenFrame

	mu       sync.Mutex
	sessions []*fakeSession
}

func newFakeServer(t *testing.T, handle func(s *fakeSession, in proto.Inbound)) *fakeServer {
	t.Helper()
	f := &fakeServer{seen: make(chan seenFrame, 128)}
	f.ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		f.mu.Lock()
		s := &fakeSession{n: len(f.sessions) + 1, conn: conn}
		f.sessions = append(f.sessions, s)
		f.mu.Unlock()

		s.event(proto.EventHello, proto.EventHelloData{
			Protocol:  proto.ProtocolVersion,
			SessionID: "s" + strconv.Itoa(s.n),
			UserID:    1,
			Name:      "ana",
			Online:    []proto.OnlineUser{{UserID: 1, Name: "ana", Sessions: 1}},
		})
		for {
			var in proto.Inbound
			if err := wsjson.Read(context.Background(), conn, &in); err != nil {
				return
			}
			select {
			case f.seen <- seenFrame{session: s.n, in: in}:
			default:
			}
			if !standardReply(s, in) {
				handle(s, in)
			}
		}
	}))
	t.Cleanup(f.ts.Close)
	return f
}

func (f *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
}

func (f *fakeServer) session(n int) *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[n-1]
}

// waitFrame returns the next frame of the given type seen by the server.
func (f *fakeServer) waitFrame(t *testing.T, typ string) seenFrame {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case sf := <-f.seen:
			if sf.in.Type == typ {
				return sf
			}
		case <-timeout:
			t.Fatalf("server never saw a %s frame", typ)
		}
	}
}

// standardReply answers the resync requests every session makes.
func standardReply(s *fakeSession, in proto.Inbound) bool {
	switch in.Type {
	case proto.InboundTypeJoin:
		var d proto.ConversationData
		_ = json.Unmarshal(in.Data, &d)
		s.ack(in.ID, proto.JoinResult{
			Applicable:   true,
			Conversation: &proto.Conversation{ID: d.ConversationID, Kind: "direct"},
			History: []proto.Message{
				{ID: 1, ConversationID: d.ConversationID, SenderID: 2, SenderName: "bea", Body: "hola", CreatedAt: 1000},
			},
		})
	case proto.InboundTypeOnline:
		users := []proto.OnlineUser{{UserID: 1, Name: "ana", Sessions: 1}}
		if s.n > 1 {
			users = append(users, proto.OnlineUser{UserID: 2, Name: "bea", Sessions: 1})
		}
		s.ack(in.ID, proto.OnlineResult{Users: users})
	case proto.InboundTypePending:
		var entries []proto.UnreadEntry
		if s.n > 1 {
			entries = []proto.UnreadEntry{{MessageID: 77, ConversationID: 9, SenderID: 3, Body: "while you were away"}}
		}
		s.ack(in.ID, proto.PendingResult{Entries: entries})
	default:
		return false
	}
	return true
}

type runningClient struct {
	*Client
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func startClient(t *testing.T, f *fakeServer, mutate func(*Options)) *runningClient {
	t.Helper()
	opts := Options{
		URL:          f.url(),
		Token:        testToken,
		AckTimeout:   2 * time.Second,
		ReconnectMin: 20 * time.Millisecond,
		ReconnectMax: 100 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	r := &runningClient{Client: c, cancel: cancel, done: make(chan struct{})}
	go func() {
		r.err = c.Run(ctx)
		close(r.done)
	}()
	t.Cleanup(func() {
		cancel()
		<-r.done
	})
	return r
}

func waitEvent(t *testing.T, c *Client, kind EventKind) Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
		}
	}
}

func echoSend(s *fakeSession, in proto.Inbound) {
	var d proto.SendData
	_ = json.Unmarshal(in.Data, &d)
	msg := proto.Message{
		ID:             42,
		ConversationID: d.ConversationID,
		Kind:           "direct",
		SenderID:       1,
		SenderName:     "ana",
		Body:           strings.TrimSpace(d.Body),
		ClientMsgID:    d.ClientMsgID,
		CreatedAt:      time.Now().UnixMilli(),
	}
	// Self-delivery goes out before the ack, as the server fans out first.
	s.event(proto.EventMessage, msg)
	s.ack(in.ID, proto.SendResult{Message: msg})
}

func TestSendReconcilesAckAndEcho(t *testing.T) {
	f := newFakeServer(t, echoSend)
	c := startClient(t, f, nil)
	waitEvent(t, c.Client, EventConnected)

	ctx := context.Background()
	_, err := c.Join(ctx, 7)
	require.NoError(t, err)

	entry, err := c.Send(ctx, 7, "  Turno de guardia ")
	require.NoError(t, err)
	require.Equal(t, StateConfirmed, entry.State)
	require.Equal(t, int64(42), entry.ID)
	require.Equal(t, "Turno de guardia", entry.Body)

	ev := waitEvent(t, c.Client, EventMessage)
	require.Equal(t, entry.LocalID, ev.Entry.LocalID)

	entries := c.Timeline(7).Entries()
	require.Len(t, entries, 2)
	require.Equal(t, int64(1), entries[0].ID)
	require.Equal(t, int64(42), entries[1].ID)
	require.Zero(t, c.Timeline(7).Pending())
}

func TestSendFailureRollsBack(t *testing.T) {
	f := newFakeServer(t, func(s *fakeSession, in proto.Inbound) {
		if in.Type == proto.InboundTypeSend {
			s.fail(in.ID, "persist_failed")
		}
	})
	c := startClient(t, f, nil)
	waitEvent(t, c.Client, EventConnected)

	failed, err := c.Send(context.Background(), 7, "lost")
	var ackErr *AckError
	require.ErrorAs(t, err, &ackErr)
	require.Equal(t, "persist_failed", ackErr.Code)
	require.Equal(t, StateFailed, failed.State)
	require.Empty(t, c.Timeline(7).Entries())
}

func TestSendTimeoutRollsBack(t *testing.T) {
	f := newFakeServer(t, func(*fakeSession, proto.Inbound) {})
	c := startClient(t, f, func(o *Options) { o.AckTimeout = 100 * time.Millisecond })
	waitEvent(t, c.Client, EventConnected)

	_, err := c.Send(context.Background(), 7, "nobody answers")
	require.ErrorIs(t, err, ErrAckTimeout)
	require.Empty(t, c.Timeline(7).Entries())
}

func TestSendRollsBackWhenConnectionDrops(t *testing.T) {
	f := newFakeServer(t, func(s *fakeSession, in proto.Inbound) {
		if in.Type == proto.InboundTypeSend {
			_ = s.conn.Close(websocket.StatusGoingAway, "restart")
		}
	})
	c := startClient(t, f, nil)
	waitEvent(t, c.Client, EventConnected)

	_, err := c.Send(context.Background(), 7, "in flight")
	require.ErrorIs(t, err, ErrDisconnected)
	require.Empty(t, c.Timeline(7).Entries())
}

func TestReconnectRejoinsAndResyncs(t *testing.T) {
	f := newFakeServer(t, func(*fakeSession, proto.Inbound) {})
	c := startClient(t, f, nil)
	waitEvent(t, c.Client, EventConnected)

	_, err := c.Join(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, c.Presence.Online(), 1)
	require.Zero(t, c.Notifications.Count())

	_ = f.session(1).conn.Close(websocket.StatusGoingAway, "restart")
	waitEvent(t, c.Client, EventDisconnected)
	waitEvent(t, c.Client, EventConnected)

	for {
		sf := f.waitFrame(t, proto.InboundTypeJoin)
		if sf.session != 2 {
			continue
		}
		var d proto.ConversationData
		require.NoError(t, json.Unmarshal(sf.in.Data, &d))
		require.Equal(t, int64(7), d.ConversationID)
		break
	}

	require.True(t, c.Presence.IsOnline(2))
	require.Equal(t, 1, c.Notifications.Count())
	require.Len(t, c.Timeline(7).Entries(), 1)
	require.Equal(t, []int64{7}, c.Joined())
}

func TestLoggedOutStopsReconnecting(t *testing.T) {
	f := newFakeServer(t, func(*fakeSession, proto.Inbound) {})
	c := startClient(t, f, nil)
	waitEvent(t, c.Client, EventConnected)

	_ = f.session(1).conn.Close(websocket.StatusCode(4000), "logged out")

	select {
	case <-c.done:
	case <-time.After(3 * time.Second):
		t.Fatal("client kept running after logout")
	}
	require.ErrorIs(t, c.err, ErrLoggedOut)
}

func TestRejectedTokenIsFinal(t *testing.T) {
	f := newFakeServer(t, func(*fakeSession, proto.Inbound) {})
	c := startClient(t, f, func(o *Options) { o.Token = "stale" })

	select {
	case <-c.done:
	case <-time.After(3 * time.Second):
		t.Fatal("client kept retrying a rejected token")
	}
	require.ErrorIs(t, c.err, ErrUnauthorized)
	require.False(t, c.Connected())
}

func TestEventsUpdateLocalViews(t *testing.T) {
	var alerted []int64
	var alertMu sync.Mutex
	f := newFakeServer(t, func(s *fakeSession, in proto.Inbound) {
		if in.Type != proto.InboundTypePing {
			return
		}
		s.event(proto.EventPresence, proto.EventPresenceData{UserID: 5, Name: "eli", Online: true, Version: 3})
		s.event(proto.EventPresence, proto.EventPresenceData{UserID: 5, Name: "eli", Online: false, Version: 2})
		s.event(proto.EventUnread, proto.UnreadEntry{MessageID: 11, ConversationID: 4, Body: "hey"})
		s.event(proto.EventTyping, proto.EventTypingData{ConversationID: 4, UserID: 5, Name: "eli", Typing: true})
		s.event(proto.EventUnreadCleared, proto.EventUnreadClearedData{MessageIDs: []int64{11}})
		s.ack(in.ID, nil)
	})
	c := startClient(t, f, func(o *Options) {
		o.OnAlert = func(e proto.UnreadEntry) {
			alertMu.Lock()
			alerted = append(alerted, e.MessageID)
			alertMu.Unlock()
		}
	})
	waitEvent(t, c.Client, EventConnected)
	c.Typing.Open(4)

	require.NoError(t, c.request(context.Background(), proto.InboundTypePing, nil, nil))

	waitEvent(t, c.Client, EventPresence)
	waitEvent(t, c.Client, EventUnread)
	ev := waitEvent(t, c.Client, EventTyping)
	require.Equal(t, "eli", ev.Typing.Name)
	waitEvent(t, c.Client, EventUnreadCleared)

	require.True(t, c.Presence.IsOnline(5))
	require.Len(t, c.Typing.Active(), 1)
	require.Zero(t, c.Notifications.Count())

	alertMu.Lock()
	defer alertMu.Unlock()
	require.Equal(t, []int64{11}, alerted)
}

func TestKeystrokesBecomeTypingFrames(t *testing.T) {
	f := newFakeServer(t, func(*fakeSession, proto.Inbound) {})
	c := startClient(t, f, func(o *Options) {
		o.TypingWindow = time.Hour
		o.TypingIdle = 50 * time.Millisecond
	})
	waitEvent(t, c.Client, EventConnected)

	c.Keystroke(7, "h")
	c.Keystroke(7, "ho")

	sf := f.waitFrame(t, proto.InboundTypeTyping)
	require.Empty(t, sf.in.ID)
	f.waitFrame(t, proto.InboundTypeTypingStop)
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{Token: "x"})
	require.Error(t, err)
	_, err = New(Options{URL: "ws://localhost/ws"})
	require.Error(t, err)
}
