package memory

import (
	"context"
	"log"
	"sync"
)

// NotificationHub is an in-process Notifier that also fans deliveries out to
// live subscribers (the websocket feed). Delivery is best-effort: a slow
// subscriber has its oldest pending message dropped rather than blocking.
type NotificationHub struct {
	mu          sync.RWMutex
	subscribers map[int64]map[chan string]struct{}
}

func NewNotificationHub() *NotificationHub {
	return &NotificationHub{
		subscribers: make(map[int64]map[chan string]struct{}),
	}
}

func (h *NotificationHub) Notify(_ context.Context, userID int64, message string) error {
	log.Printf("notification for user %d: %s", userID, message)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers[userID] {
		select {
		case ch <- message:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- message
		}
	}
	return nil
}

// Subscribe returns a channel receiving the user's notifications. The caller
// must invoke the returned cancel function to avoid leaks.
func (h *NotificationHub) Subscribe(_ context.Context, userID int64) (<-chan string, func(), error) {
	ch := make(chan string, 8)

	h.mu.Lock()
	if h.subscribers[userID] == nil {
		h.subscribers[userID] = make(map[chan string]struct{})
	}
	h.subscribers[userID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.subscribers[userID]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(h.subscribers, userID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel, nil
}
