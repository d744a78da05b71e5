package core

import (
	"context"
	"fmt"
	"testing"
)

func benchmarkGroupDelivery(b *testing.B, recipients int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	convs := newFakeConversations()
	members := make([]int64, 0, recipients+1)
	for i := range recipients + 1 {
		members = append(members, int64(i+1))
	}
	convs.addGroup(1, "bench", members...)

	hub := NewHub(Options{Conversations: convs, Messages: &fakeMessages{}, Notifications: newFakeNotifications()})
	go hub.Run(ctx)

	sender := NewClient("sender", 1, "sender", nil, 1024)
	hub.RegisterClient(sender)
	sender.Commands <- &Command{Kind: CommandJoin, ConversationID: 1}

	clients := make([]*Client, 0, recipients)
	for i := range recipients {
		c := NewClient(fmt.Sprintf("c%d", i), int64(i+2), "client", nil, 1024)
		hub.RegisterClient(c)
		c.Commands <- &Command{Kind: CommandJoin, ConversationID: 1}
		clients = append(clients, c)
	}

	// Drain events for all but the first recipient to avoid backpressure.
	target := clients[0]
	for _, c := range append(clients[1:], sender) {
		go func(cl *Client) {
			for {
				select {
				case <-cl.Events:
				case <-cl.Done():
					return
				}
			}
		}(c)
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		sender.Commands <- &Command{Kind: CommandSend, ConversationID: 1, Body: "payload"}
		for ev := range target.Events {
			if ev.Kind == EventMessage {
				break
			}
		}
	}
}

func BenchmarkGroupDelivery_10(b *testing.B)  { benchmarkGroupDelivery(b, 10) }
func BenchmarkGroupDelivery_100(b *testing.B) { benchmarkGroupDelivery(b, 100) }
func BenchmarkGroupDelivery_500(b *testing.B) { benchmarkGroupDelivery(b, 500) }
