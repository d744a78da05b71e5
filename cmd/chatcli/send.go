package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newSendCmd(root *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Send one message and wait for it to be stored",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := strings.TrimSpace(strings.Join(args, " "))
			if body == "" {
				return errors.New("message is empty")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client, _, err := root.connect(ctx, root.logger())
			if err != nil {
				return err
			}
			convID, err := root.conversationID(ctx, client)
			if err != nil {
				return err
			}
			entry, err := client.Send(ctx, convID, body)
			if err != nil {
				return fmt.Errorf("send: %w", err)
			}
			fmt.Printf("sent message %d to conversation %d at %s\n", entry.ID, convID, entry.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "give up after this long")
	return cmd
}
