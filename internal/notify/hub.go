// Package notify – websocket hub.
//
// This file implements the concrete event fan-out used by the HTTP layer:
// a single broadcast goroutine owns the subscriber set, and clients
// register/unregister through channels so no mutex is shared with the
// websocket writers. Slow subscribers are dropped rather than allowed to
// back up the orchestrator.
package notify

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// subscriber is one connected websocket client with a buffered outbox.
type subscriber struct {
	conn *websocket.Conn
	out  chan Event
}

// Hub is a Gateway that broadcasts events to websocket subscribers.
// Construct with NewHub and call Run once in its own goroutine.
type Hub struct {
	register   chan *subscriber
	unregister chan *subscriber
	events     chan Event

	upgrader websocket.Upgrader
}

// NewHub constructs a Hub ready for Run.
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		events:     make(chan Event, 256),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The HTTP layer enforces origin policy via CORS middleware.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Run owns the subscriber set until ctx is cancelled. Each subscriber gets
// its own writer goroutine; a subscriber whose outbox is full is dropped.
func (h *Hub) Run(ctx context.Context) {
	subs := make(map[*subscriber]struct{})
	defer func() {
		for s := range subs {
			close(s.out)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-h.register:
			subs[s] = struct{}{}
			go s.writeLoop()
		case s := <-h.unregister:
			if _, ok := subs[s]; ok {
				delete(subs, s)
				close(s.out)
			}
		case ev := <-h.events:
			for s := range subs {
				select {
				case s.out <- ev:
				default:
					// Slow consumer: drop it instead of blocking the hub.
					delete(subs, s)
					close(s.out)
				}
			}
		}
	}
}

// Emit queues the event for broadcast. When the hub's buffer is full the
// event is dropped and logged; the orchestrator is never blocked.
func (h *Hub) Emit(_ context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	select {
	case h.events <- ev:
	default:
		log.Warn().Str("event", ev.Type).Str("debate_id", ev.DebateID).Msg("event buffer full, dropping")
	}
}

// Serve upgrades an HTTP request to a websocket subscription and blocks
// until the client goes away. Intended to back a GET events endpoint.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s := &subscriber{conn: conn, out: make(chan Event, 32)}
	h.register <- s

	// Reader loop: we ignore client payloads but need to consume control
	// frames and detect disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister <- s
	_ = conn.Close()
}

// writeLoop drains the subscriber's outbox onto the wire.
func (s *subscriber) writeLoop() {
	for ev := range s.out {
		_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := s.conn.WriteJSON(ev); err != nil {
			_ = s.conn.Close()
			return
		}
	}
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = s.conn.Close()
}
