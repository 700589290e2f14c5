package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(slog.Default())
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(hub, slog.Default(), w, r)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(data, &event))
	return event
}

func TestHub_BroadcastReachesClient(t *testing.T) {
	hub := startHub(t)
	conn := dialHub(t, hub)

	// Registration races the broadcast; give the hub a moment.
	time.Sleep(50 * time.Millisecond)
	hub.Broadcast(Event{Type: TypeNotification, Payload: map[string]string{
		"level":   "success",
		"message": "license activated",
	}})

	event := readEvent(t, conn)
	assert.Equal(t, TypeNotification, event.Type)

	payload, ok := event.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "license activated", payload["message"])
}

func TestHub_BroadcastSession(t *testing.T) {
	hub := startHub(t)
	conn := dialHub(t, hub)

	time.Sleep(50 * time.Millisecond)
	hub.BroadcastSession(true, "op@example.com")

	event := readEvent(t, conn)
	assert.Equal(t, TypeSession, event.Type)

	payload, ok := event.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, payload["authenticated"])
	assert.Equal(t, "op@example.com", payload["email"])
}

func TestHub_StopIsIdempotent(t *testing.T) {
	hub := NewHub(slog.Default())
	go hub.Run()

	hub.Stop()
	hub.Stop()

	// Broadcasting after stop must not block.
	done := make(chan struct{})
	go func() {
		hub.Broadcast(Event{Type: TypeNotification})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked after Stop")
	}
}
