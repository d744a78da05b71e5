package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	applog "github.com/AxelCastilloZ/BomberosNosara-sub000/internal/log"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/internal/proto"
	"github.com/AxelCastilloZ/BomberosNosara-sub000/pkg/chatclient"
)

type rootOptions struct {
	server   string
	token    string
	username string
	password string
	logLevel string

	conversation int64
	userID       int64
	role         string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "chatcli",
		Short:         "Terminal client for the intranet messaging server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.server, "server", "http://localhost:8080", "server base URL")
	flags.StringVar(&opts.token, "token", os.Getenv("CHAT_TOKEN"), "access token (default $CHAT_TOKEN)")
	flags.StringVarP(&opts.username, "username", "u", "", "log in with this username when no token is given")
	flags.StringVarP(&opts.password, "password", "p", os.Getenv("CHAT_PASSWORD"), "password for --username (default $CHAT_PASSWORD)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	flags.Int64Var(&opts.conversation, "conversation", 0, "conversation id")
	flags.Int64Var(&opts.userID, "to-user", 0, "direct conversation with this user id")
	flags.StringVar(&opts.role, "to-role", "", "group conversation of this role")

	cmd.AddCommand(
		newTailCmd(opts),
		newSendCmd(opts),
	)
	return cmd
}

func (o *rootOptions) logger() *zerolog.Logger {
	return applog.NewWithWriter(os.Stderr, o.logLevel, "console")
}

// connect logs in if needed and returns a client whose Run loop is already
// going. The returned channel yields Run's result.
func (o *rootOptions) connect(ctx context.Context, logger *zerolog.Logger) (*chatclient.Client, <-chan error, error) {
	token := o.token
	if token == "" {
		if o.username == "" {
			return nil, nil, errors.New("either --token or --username is required")
		}
		var err error
		token, err = chatclient.Login(ctx, nil, o.server, o.username, o.password)
		if err != nil {
			return nil, nil, err
		}
	}

	client, err := chatclient.New(chatclient.Options{
		URL:    chatclient.WebSocketURL(o.server),
		Token:  token,
		Logger: logger,
	})
	if err != nil {
		return nil, nil, err
	}

	done := make(chan error, 1)
	go func() {
		done <- client.Run(ctx)
	}()

	timeout := time.NewTimer(10 * time.Second)
	defer timeout.Stop()
	for {
		select {
		case ev := <-client.Events():
			if ev.Kind == chatclient.EventConnected {
				return client, done, nil
			}
		case err := <-done:
			return nil, nil, fmt.Errorf("connect: %w", err)
		case <-timeout.C:
			return nil, nil, errors.New("connect: timed out")
		}
	}
}

// conversationID joins the conversation picked by the target flags.
func (o *rootOptions) conversationID(ctx context.Context, client *chatclient.Client) (int64, error) {
	switch {
	case o.conversation != 0:
		if _, err := client.Join(ctx, o.conversation); err != nil {
			return 0, fmt.Errorf("join: %w", err)
		}
		return o.conversation, nil
	case o.userID != 0 || o.role != "":
		target := proto.Target{Kind: "user", UserID: o.userID}
		if o.role != "" {
			target = proto.Target{Kind: "role", Role: strings.ToUpper(o.role)}
		}
		res, err := client.Open(ctx, target)
		if err != nil {
			return 0, fmt.Errorf("open: %w", err)
		}
		if !res.Applicable || res.Conversation == nil {
			return 0, errors.New("nobody holds that role")
		}
		return res.Conversation.ID, nil
	default:
		return 0, errors.New("one of --conversation, --to-user or --to-role is required")
	}
}
