package memory

import (
	"context"
	"testing"
)

func TestNotificationHubDeliversToSubscriber(t *testing.T) {
	ctx := context.Background()
	hub := NewNotificationHub()

	ch, cancel, err := hub.Subscribe(ctx, 201)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if err := hub.Notify(ctx, 201, "hello"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got := <-ch; got != "hello" {
		t.Fatalf("expected %q, got %q", "hello", got)
	}

	// Notifications target a single user.
	if err := hub.Notify(ctx, 202, "not yours"); err != nil {
		t.Fatalf("notify other: %v", err)
	}
	select {
	case got := <-ch:
		t.Fatalf("unexpected delivery: %q", got)
	default:
	}
}

func TestNotificationHubDropsOldestWhenFull(t *testing.T) {
	ctx := context.Background()
	hub := NewNotificationHub()

	ch, cancel, err := hub.Subscribe(ctx, 201)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	// Buffer is 8; the 9th delivery evicts the oldest instead of blocking.
	for i := 0; i < 9; i++ {
		msg := string(rune('a' + i))
		if err := hub.Notify(ctx, 201, msg); err != nil {
			t.Fatalf("notify %d: %v", i, err)
		}
	}
	if got := <-ch; got != "b" {
		t.Fatalf("expected oldest message dropped, first received %q", got)
	}
}

func TestNotificationHubCancelStopsDelivery(t *testing.T) {
	ctx := context.Background()
	hub := NewNotificationHub()

	ch, cancel, err := hub.Subscribe(ctx, 201)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()

	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed after cancel")
	}
	if err := hub.Notify(ctx, 201, "late"); err != nil {
		t.Fatalf("notify after cancel: %v", err)
	}
}
