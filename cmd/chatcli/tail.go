package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AxelCastilloZ/BomberosNosara-sub000/pkg/chatclient"
)

func newTailCmd(root *rootOptions) *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow a conversation, presence and notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, done, err := root.connect(ctx, root.logger())
			if err != nil {
				return err
			}
			convID, err := root.conversationID(ctx, client)
			if err != nil {
				return err
			}
			client.Typing.Open(convID)

			self := client.Self()
			fmt.Printf("Connected as %s, conversation %d (%d unread)\n", self.Name, convID, client.Notifications.Count())
			for _, e := range client.Timeline(convID).Entries() {
				printEntry(e)
			}
			if interactive {
				fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")
				go readInput(ctx, client, convID)
			}

			for {
				select {
				case <-ctx.Done():
					return nil
				case err := <-done:
					return err
				case ev := <-client.Events():
					printEvent(ev, convID)
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "send lines read from stdin")
	return cmd
}

func readInput(ctx context.Context, client *chatclient.Client, convID int64) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if _, err := client.Send(ctx, convID, text); err != nil {
				fmt.Fprintf(os.Stderr, "not sent: %v\n", err)
			}
		}
	}
}

func printEvent(ev chatclient.Event, convID int64) {
	switch ev.Kind {
	case chatclient.EventMessage:
		if ev.Entry.ConversationID == convID {
			printEntry(ev.Entry)
		}
	case chatclient.EventPresence:
		state := "offline"
		if ev.Presence.Online {
			state = "online"
		}
		fmt.Printf("* %s is %s\n", ev.Presence.Name, state)
	case chatclient.EventTyping:
		if ev.Typing.Typing {
			fmt.Printf("* %s is typing...\n", ev.Typing.Name)
		}
	case chatclient.EventUnread:
		fmt.Printf("! new message from %s in conversation %d: %s\n", ev.Unread.SenderName, ev.Unread.ConversationID, ev.Unread.Body)
	case chatclient.EventDisconnected:
		fmt.Printf("* disconnected: %v\n", ev.Err)
	case chatclient.EventConnected:
		fmt.Println("* reconnected")
	}
}

func printEntry(e chatclient.Entry) {
	fmt.Printf("[%s] %s: %s\n", e.CreatedAt.Format(time.Kitchen), e.SenderName, e.Body)
}
