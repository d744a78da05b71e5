package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/auth"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/config"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/core"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/proto"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/service/conversations"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/service/notifications"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/store"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/store/sqlite"
)

const testPassword = "secret123"

type testEnv struct {
	ts   *httptest.Server
	hub  *core.Hub
	auth *auth.Service
	st   store.Store
}

// newTestEnv runs the full stack over an in-memory database.
func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.JWTSecret = "testsecret"
	cfg.RateLimit.LoginPerMinute = 0
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})
	convs := conversations.New(st, cfg.SuperuserRole)
	hub := core.NewHub(core.Options{
		Conversations: convs,
		Notifications: notifications.New(st, cfg.Notifications.HistorySize),
		Messages:      st,
		Logger:        &logger,
		TypingIdle:    cfg.Typing.Idle,
		MaxBodyRunes:  cfg.MaxBodyRunes,
		HistoryLimit:  cfg.HistoryLimit,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	ts := httptest.NewServer(NewRouter(Deps{
		Hub:           hub,
		Auth:          authService,
		Conversations: convs,
	}, cfg, &logger))
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})

	return &testEnv{ts: ts, hub: hub, auth: authService, st: st}
}

func (e *testEnv) createUser(t *testing.T, username string, roles ...string) *store.User {
	t.Helper()
	u, err := e.auth.CreateUser(context.Background(), username, "", testPassword, roles)
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

// login goes through POST /api/login and returns the token.
func (e *testEnv) login(t *testing.T, username string) string {
	t.Helper()
	resp, body := e.do(t, stdhttp.MethodPost, "/api/login", "", LoginRequest{Username: username, Password: testPassword})
	if resp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("login %s: status %d: %s", username, resp.StatusCode, body)
	}
	var out AuthResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return out.Token
}

func (e *testEnv) do(t *testing.T, method, path, token string, payload any) (*stdhttp.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := stdhttp.NewRequest(method, e.ts.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
}

// frame mirrors proto.Outbound with raw data for typed decoding.
type frame struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	OK    *bool           `json:"ok"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func (f frame) decode(t *testing.T, v any) {
	t.Helper()
	if err := json.Unmarshal(f.Data, v); err != nil {
		t.Fatalf("decode %s/%s data %s: %v", f.Type, f.Event, f.Data, err)
	}
}

type wsClient struct {
	t      *testing.T
	conn   *websocket.Conn
	hello  proto.EventHelloData
	events []frame
}

// dial connects with a bearer header and consumes the hello event.
func (e *testEnv) dial(t *testing.T, token string) *wsClient {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, e.wsURL(), &websocket.DialOptions{
		HTTPHeader: stdhttp.Header{"Authorization": {"Bearer " + token}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })

	c := &wsClient{t: t, conn: conn}
	hello := c.waitEvent(proto.EventHello)
	hello.decode(t, &c.hello)
	return c
}

func (c *wsClient) read(timeout time.Duration) (frame, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	var f frame
	err := wsjson.Read(ctx, c.conn, &f)
	return f, err
}

func (c *wsClient) write(typ, id string, data any) {
	c.t.Helper()
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			c.t.Fatalf("marshal %s: %v", typ, err)
		}
		raw = b
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, c.conn, proto.Inbound{Type: typ, ID: id, Data: raw}); err != nil {
		c.t.Fatalf("write %s: %v", typ, err)
	}
}

// request sends a frame and returns its ack; events seen meanwhile are kept.
func (c *wsClient) request(typ, id string, data any) frame {
	c.t.Helper()
	c.write(typ, id, data)
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		f, err := c.read(time.Until(deadline))
		if err != nil {
			c.t.Fatalf("waiting for ack %s: %v", id, err)
		}
		if f.Type == proto.OutboundTypeAck && f.ID == id {
			return f
		}
		c.events = append(c.events, f)
	}
	c.t.Fatalf("no ack for %s", id)
	return frame{}
}

// waitEvent returns the first event with the given name, buffered or new.
func (c *wsClient) waitEvent(name string) frame {
	c.t.Helper()
	for i, f := range c.events {
		if f.Type == proto.OutboundTypeEvent && f.Event == name {
			c.events = append(c.events[:i], c.events[i+1:]...)
			return f
		}
	}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		f, err := c.read(time.Until(deadline))
		if err != nil {
			c.t.Fatalf("waiting for %s event: %v", name, err)
		}
		if f.Type == proto.OutboundTypeEvent && f.Event == name {
			return f
		}
		c.events = append(c.events, f)
	}
	c.t.Fatalf("no %s event", name)
	return frame{}
}

// closeStatusOf reads until the server closes the connection.
func (c *wsClient) closeStatusOf(timeout time.Duration) websocket.StatusCode {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := c.read(time.Until(deadline)); err != nil {
			return websocket.CloseStatus(err)
		}
	}
	c.t.Fatalf("connection still open after %v", timeout)
	return -1
}
