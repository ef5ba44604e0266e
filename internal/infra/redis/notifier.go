package redis

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Notifier publishes user notifications to per-user pub/sub channels so any
// instance holding the user's websocket can deliver them.
type Notifier struct {
	client *redis.Client
}

func NewNotifier(client *redis.Client) *Notifier {
	return &Notifier{client: client}
}

func (n *Notifier) Notify(ctx context.Context, userID int64, message string) error {
	return n.client.Publish(ctx, n.channel(userID), message).Err()
}

// Subscribe returns a channel receiving the user's notifications. The caller
// must invoke the returned cancel function to avoid leaks.
func (n *Notifier) Subscribe(ctx context.Context, userID int64) (<-chan string, func(), error) {
	sub := n.client.Subscribe(ctx, n.channel(userID))
	// Force the subscription to be established before returning.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	ch := make(chan string, 8)
	go func() {
		defer close(ch)
		for msg := range sub.Channel() {
			ch <- msg.Payload
		}
	}()

	cancel := func() {
		_ = sub.Close()
	}
	return ch, cancel, nil
}

func (n *Notifier) channel(userID int64) string {
	return "notify:user:" + strconv.FormatInt(userID, 10)
}
