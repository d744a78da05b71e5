// ws_smoke checks a running server end to end: two users log in, the first
// opens a direct conversation with the second and sends a message, and the
// second must receive it live.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	applog "github.com/AxelCastilloZ/BomberosNosara-sub000/internal/log"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/proto"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/pkg/chatclient"
)

func main() {
	logger := applog.NewWithWriter(os.Stderr, "info", "console")
	if err := run(logger); err != nil {
		logger.Error().Err(err).Msg("ws_smoke failed")
		os.Exit(1)
	}
}

func run(logger *zerolog.Logger) error {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	sender := flag.String("sender", "tester", "sending username")
	recipient := flag.String("recipient", "tester2", "receiving username")
	password := flag.String("password", "secret123", "password of both users")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 10*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	from, err := dial(ctx, *server, *sender, *password, logger)
	if err != nil {
		return fmt.Errorf("%s: %w", *sender, err)
	}
	to, err := dial(ctx, *server, *recipient, *password, logger)
	if err != nil {
		return fmt.Errorf("%s: %w", *recipient, err)
	}

	res, err := from.Open(ctx, proto.Target{Kind: "user", UserID: to.Self().UserID})
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	if !res.Applicable || res.Conversation == nil {
		return errors.New("open: conversation not applicable")
	}
	convID := res.Conversation.ID
	if _, err := to.Join(ctx, convID); err != nil {
		return fmt.Errorf("join: %w", err)
	}

	sent, err := from.Send(ctx, convID, *text)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	logger.Info().Int64("conversation_id", convID).Int64("message_id", sent.ID).Msg("message stored")

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("message %d never delivered: %w", sent.ID, ctx.Err())
		case ev := <-to.Events():
			if ev.Kind == chatclient.EventMessage && ev.Entry.ID == sent.ID {
				logger.Info().Str("body", ev.Entry.Body).Msg("message delivered")
				return nil
			}
		}
	}
}

func dial(ctx context.Context, server, username, password string, logger *zerolog.Logger) (*chatclient.Client, error) {
	token, err := chatclient.Login(ctx, nil, server, username, password)
	if err != nil {
		return nil, err
	}
	client, err := chatclient.New(chatclient.Options{
		URL:    chatclient.WebSocketURL(server),
		Token:  token,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	go func() {
		if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			logger.Warn().Err(err).Str("user", username).Msg("client stopped")
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev := <-client.Events():
			if ev.Kind == chatclient.EventConnected {
				return client, nil
			}
		}
	}
}
