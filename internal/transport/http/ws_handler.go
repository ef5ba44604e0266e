package http

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
)

// NotificationSource is a live feed of a user's notifications. Both the
// in-memory hub and the redis notifier implement it.
type NotificationSource interface {
	Subscribe(ctx context.Context, userID int64) (<-chan string, func(), error)
}

// WSHandler streams quiz notifications (quiz posted, quiz graded) to a
// connected user over a websocket.
type WSHandler struct {
	source   NotificationSource
	upgrader websocket.Upgrader
}

func NewWSHandler(source NotificationSource) *WSHandler {
	return &WSHandler{
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type notificationPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and forwards the user's notification feed
// until the client disconnects.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
	if err != nil {
		http.Error(w, "missing or invalid userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	notifications, cancel, err := h.source.Subscribe(r.Context(), userID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: notificationPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		// Inbound frames are not part of the protocol; reading only to
		// observe the close.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case message, ok := <-notifications:
			if !ok {
				return
			}
			if err := conn.WriteJSON(outboundMessage{Type: "notification", Payload: notificationPayload{Message: message}}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-readerDone:
			return
		}
	}
}
