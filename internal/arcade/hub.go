// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftwood Contributors

package arcade

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lcaswell/driftwood/internal/store"
)

const (
	writeTimeout = 10 * time.Second

	// sendBuffer bounds how far a subscriber may fall behind before the
	// hub gives up on it.
	sendBuffer = 16
)

// subscriber pairs a connection with the queue its writer goroutine drains.
// The websocket connection permits one writer at a time, so every outbound
// frame goes through the queue and only the writer goroutine touches the
// write side.
type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans leaderboard snapshots out to websocket subscribers. A subscriber
// receives the current board on join and a fresh one after every accepted
// score.
type Hub struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func newHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		subs:   make(map[*subscriber]struct{}),
	}
}

// Subscribe queues snapshot for conn and registers it for future broadcasts.
// The hub owns conn from here on and closes it when the peer goes away, the
// subscriber stops keeping up, or the hub shuts down.
func (h *Hub) Subscribe(conn *websocket.Conn, snapshot []store.LeaderboardEntry) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		_ = conn.Close()
		return err
	}

	sub := &subscriber{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	// Queued before registration, so the snapshot precedes any broadcast.
	sub.send <- payload

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go h.writer(sub)
	go h.reader(sub)
	return nil
}

// writer is the sole goroutine writing to sub's connection.
func (h *Hub) writer(sub *subscriber) {
	defer func() { _ = sub.conn.Close() }()

	for payload := range sub.send {
		_ = sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.drop(sub)
			for range sub.send {
			}
			return
		}
	}

	// Queue closed by the hub: say goodbye before hanging up.
	_ = sub.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
		time.Now().Add(writeTimeout))
}

// reader drains the read side so pings are answered and disconnects noticed.
func (h *Hub) reader(sub *subscriber) {
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			h.drop(sub)
			return
		}
	}
}

// Broadcast queues the board for every subscriber. A subscriber whose queue
// is already full is dropped rather than allowed to stall the rest.
func (h *Hub) Broadcast(board []store.LeaderboardEntry) {
	payload, err := json.Marshal(board)
	if err != nil {
		h.logger.Error("failed to encode leaderboard broadcast", "error", err)
		return
	}

	var stalled []*subscriber
	h.mu.Lock()
	for sub := range h.subs {
		select {
		case sub.send <- payload:
		default:
			stalled = append(stalled, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range stalled {
		h.logger.Warn("dropping stalled leaderboard subscriber")
		h.drop(sub)
	}
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects all subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.subs = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for _, sub := range subs {
		close(sub.send)
	}
}

// drop removes sub from the hub. Whoever removes it closes the queue, which
// in turn stops the writer; queue sends happen only under the mutex while
// the subscriber is still registered, so the close cannot race a send.
func (h *Hub) drop(sub *subscriber) {
	h.mu.Lock()
	_, present := h.subs[sub]
	delete(h.subs, sub)
	h.mu.Unlock()

	if present {
		close(sub.send)
	}
}
