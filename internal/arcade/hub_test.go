// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftwood Contributors

package arcade

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcaswell/driftwood/internal/store"
)

var testUpgrader = websocket.Upgrader{}

// dialHub connects a websocket client to a fresh hub subscription and
// returns the client side.
func dialHub(t *testing.T, hub *Hub, snapshot []store.LeaderboardEntry) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		require.NoError(t, hub.Subscribe(conn, snapshot))
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func readBoard(t *testing.T, conn *websocket.Conn) []store.LeaderboardEntry {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var board []store.LeaderboardEntry
	require.NoError(t, json.Unmarshal(payload, &board))
	return board
}

func TestHub_SnapshotOnSubscribe(t *testing.T) {
	hub := newHub(slog.Default())
	snapshot := []store.LeaderboardEntry{{Username: "alice", Difficulty: 2, Levels: 9}}

	client := dialHub(t, hub, snapshot)

	assert.Equal(t, snapshot, readBoard(t, client))
	assert.Eventually(t, func() bool { return hub.Count() == 1 },
		time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastReachesSubscribers(t *testing.T) {
	hub := newHub(slog.Default())

	first := dialHub(t, hub, nil)
	second := dialHub(t, hub, nil)
	readBoard(t, first)
	readBoard(t, second)

	board := []store.LeaderboardEntry{
		{Username: "bob", Difficulty: 1, Levels: 4},
		{Username: "alice", Difficulty: 1, Levels: 3},
	}
	hub.Broadcast(board)

	assert.Equal(t, board, readBoard(t, first))
	assert.Equal(t, board, readBoard(t, second))
}

func TestHub_DropsDisconnectedSubscriber(t *testing.T) {
	hub := newHub(slog.Default())

	client := dialHub(t, hub, nil)
	readBoard(t, client)
	require.Eventually(t, func() bool { return hub.Count() == 1 },
		time.Second, 10*time.Millisecond)

	require.NoError(t, client.Close())

	assert.Eventually(t, func() bool { return hub.Count() == 0 },
		2*time.Second, 10*time.Millisecond, "hub should notice the disconnect")
}

func TestHub_ConcurrentBroadcasts(t *testing.T) {
	hub := newHub(slog.Default())

	// A subscriber that never reads, so its queue backs up while the
	// broadcasts race each other.
	dialHub(t, hub, nil)
	require.Eventually(t, func() bool { return hub.Count() == 1 },
		time.Second, 10*time.Millisecond)

	board := make([]store.LeaderboardEntry, 5000)
	for i := range board {
		board[i] = store.LeaderboardEntry{Username: "player", Difficulty: 3, Levels: uint8(i % 20)}
	}

	var wg sync.WaitGroup
	var panicsMu sync.Mutex
	var panics []any
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					panicsMu.Lock()
					panics = append(panics, r)
					panicsMu.Unlock()
				}
			}()
			hub.Broadcast(board)
		}()
	}
	wg.Wait()
	require.Empty(t, panics)

	// The hub is still serving: a fresh subscriber gets the snapshot.
	client := dialHub(t, hub, board[:1])
	assert.Equal(t, board[:1], readBoard(t, client))
}

func TestHub_CloseDisconnectsAll(t *testing.T) {
	hub := newHub(slog.Default())

	client := dialHub(t, hub, nil)
	readBoard(t, client)

	hub.Close()
	assert.Zero(t, hub.Count())

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	assert.Error(t, err, "server side is closed")
}
