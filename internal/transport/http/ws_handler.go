package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/auth"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/core"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/proto"
)

// Application close codes.
const (
	StatusLoggedOut    websocket.StatusCode = 4000
	StatusTokenExpired websocket.StatusCode = 4001
)

const writeTimeout = 10 * time.Second

// WSOptions tunes the message channel.
type WSOptions struct {
	MaxMessageBytes int64
	PingInterval    time.Duration
	PongTimeout     time.Duration
	SendBuffer      int
}

// WSHandler authenticates, upgrades and bridges connections to core.Client.
type WSHandler struct {
	hub  *core.Hub
	auth *auth.Service
	opts WSOptions
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, authService *auth.Service, opts WSOptions, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, auth: authService, opts: opts, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeJSONError(w, stdhttp.StatusUnauthorized, err.Error())
		return
	}
	identity, err := h.auth.Authenticate(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			h.log.Debug().Err(err).Msg("ws token rejected")
			writeJSONError(w, stdhttp.StatusUnauthorized, "invalid token")
			return
		}
		h.log.Error().Err(err).Msg("ws authenticate")
		writeJSONError(w, stdhttp.StatusInternalServerError, "internal server error")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	if h.opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.opts.MaxMessageBytes)
	}

	user := identity.User
	client := core.NewClient(uuid.NewString(), user.ID, user.Name(), user.Roles, h.opts.SendBuffer)
	logger := h.log.With().Str("session_id", client.ID).Int64("user_id", user.ID).Logger()

	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	expiry := time.AfterFunc(time.Until(identity.ExpiresAt), func() {
		client.Close(core.CloseTokenExpired)
	})
	defer expiry.Stop()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 3)
	run := func(loop func(context.Context, *websocket.Conn, *core.Client) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- loop(ctx, conn, client)
		}()
	}
	run(h.readLoop)
	run(h.writeLoop)
	run(h.keepalive)

	select {
	case err = <-errCh:
	case <-client.Done():
	}

	status, reason := closeStatus(client.Reason(), err)
	if status == websocket.StatusInternalError {
		logger.Warn().Err(err).Msg("ws connection closed with error")
	} else {
		logger.Debug().Int("status", int(status)).Str("reason", reason).Msg("ws connection closed")
	}

	client.Close(core.CloseNone)
	_ = conn.Close(status, reason)
	cancel()
	wg.Wait()
}

// closeStatus picks the close frame from the core's reason or the loop error.
func closeStatus(reason core.CloseReason, err error) (websocket.StatusCode, string) {
	switch reason {
	case core.CloseLogout:
		return StatusLoggedOut, "logged out"
	case core.CloseTokenExpired:
		return StatusTokenExpired, "token expired"
	case core.CloseSlowConsumer:
		return websocket.StatusPolicyViolation, "slow consumer"
	case core.CloseShutdown:
		return websocket.StatusGoingAway, "server shutting down"
	}

	if err == nil || errors.Is(err, context.Canceled) {
		return websocket.StatusNormalClosure, "closing"
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return websocket.StatusNormalClosure, "closing"
	case websocket.StatusMessageTooBig:
		return websocket.StatusMessageTooBig, "message too big"
	}
	return websocket.StatusInternalError, "internal error"
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			client.Push(rejectEvent("", badRequest("binary frames are not supported")))
			continue
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			client.Push(rejectEvent("", badRequest("malformed frame")))
			continue
		}

		cmd, perr := inboundToCommand(inbound)
		if perr != nil {
			client.Push(rejectEvent(inbound.ID, perr))
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-client.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, outboundFromEvent(event))
			cancel()
			if err != nil {
				return fmt.Errorf("write event: %w", err)
			}
		case <-client.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// keepalive pings the peer; a missing pong within PongTimeout ends the session.
func (h *WSHandler) keepalive(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	if h.opts.PingInterval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, h.opts.PongTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		case <-client.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeJSONError(w stdhttp.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}
