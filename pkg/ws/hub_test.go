package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, register func(*websocket.Conn)) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		register(conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, hub *Hub, count func(*Hub) int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.RLock()
		n := count(hub)
		hub.mu.RUnlock()
		if n > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("subscriber never registered")
}

func TestHubNotifiesMaterialWatchers(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, func(c *websocket.Conn) { hub.Register("m1", c) })
	waitForSubscribers(t, hub, func(h *Hub) int { return len(h.byID["m1"]) })

	hub.NotifyStatus(StatusUpdate{MaterialID: "m1", Status: "processing"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var update StatusUpdate
	require.NoError(t, json.Unmarshal(msg, &update))
	require.Equal(t, "m1", update.MaterialID)
	require.Equal(t, "processing", update.Status)
}

func TestHubSkipsOtherMaterials(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, func(c *websocket.Conn) { hub.Register("m1", c) })
	waitForSubscribers(t, hub, func(h *Hub) int { return len(h.byID["m1"]) })

	hub.NotifyStatus(StatusUpdate{MaterialID: "m2", Status: "ready"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestHubSignalsGlobalSubscribers(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, func(c *websocket.Conn) { hub.RegisterGlobal(c) })
	waitForSubscribers(t, hub, func(h *Hub) int { return len(h.global) })

	hub.NotifyStatus(StatusUpdate{MaterialID: "m1", Status: "ready"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(msg, &payload))
	require.Equal(t, "materials_changed", payload["type"])
}
