package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestNotifierDeliversToSubscriber(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	notifier := NewNotifier(newClient(mr))

	ch, cancel, err := notifier.Subscribe(context.Background(), 201)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if err := notifier.Notify(context.Background(), 201, "Quiz 1 has been graded"); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case got := <-ch:
		if got != "Quiz 1 has been graded" {
			t.Fatalf("unexpected payload: %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for notification")
	}
}

func TestNotifierIsolatesUsers(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	notifier := NewNotifier(newClient(mr))

	ch, cancel, err := notifier.Subscribe(context.Background(), 201)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if err := notifier.Notify(context.Background(), 202, "not yours"); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case got := <-ch:
		t.Fatalf("unexpected delivery: %q", got)
	case <-time.After(200 * time.Millisecond):
	}
}
