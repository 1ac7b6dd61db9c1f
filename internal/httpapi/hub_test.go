package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"kopiad/pkg/types"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	before := hub.ClientCount()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial hub: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	// Registration happens on the server goroutine after the handshake.
	deadline := time.Now().Add(3 * time.Second)
	for hub.ClientCount() <= before {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func TestHubBroadcastEvent(t *testing.T) {
	hub := NewHub()
	defer hub.Shutdown()
	conn := dialHub(t, hub)

	hub.Event(types.EventEnvelope{
		RepoID:  "default",
		Type:    types.EventNotification,
		Level:   "info",
		Message: "backup finished",
	})

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg wireMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Channel != "event" || msg.Event == nil {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Event.RepoID != "default" || msg.Event.Message != "backup finished" {
		t.Fatalf("unexpected envelope: %+v", msg.Event)
	}
}

func TestHubBroadcastDisconnected(t *testing.T) {
	hub := NewHub()
	defer hub.Shutdown()
	conn := dialHub(t, hub)

	hub.Disconnected("default")

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg wireMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Channel != "disconnected" || msg.RepoID != "default" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestHubClientCount(t *testing.T) {
	hub := NewHub()
	defer hub.Shutdown()
	if hub.ClientCount() != 0 {
		t.Fatalf("fresh hub has clients")
	}
	conn := dialHub(t, hub)
	if hub.ClientCount() != 1 {
		t.Fatalf("client count %d, want 1", hub.ClientCount())
	}
	conn.Close()
	deadline := time.Now().Add(3 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client not removed after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// lagging client: progress envelopes are dropped when the buffer is full,
// error envelopes are not.
func TestHubDropPolicy(t *testing.T) {
	hub := NewHub()
	c := &hubClient{
		id:   "lagging",
		send: make(chan wireMessage, 1),
		done: make(chan struct{}),
	}
	hub.clients[c.id] = c

	hub.Event(types.EventEnvelope{RepoID: "a", Type: types.EventTaskProgress, TaskID: "t1"})
	// Buffer is now full; further progress envelopes are dropped.
	hub.Event(types.EventEnvelope{RepoID: "a", Type: types.EventTaskProgress, TaskID: "t2"})
	if len(c.send) != 1 {
		t.Fatalf("buffered %d messages, want 1", len(c.send))
	}
	first := <-c.send
	if first.Event == nil || first.Event.TaskID != "t1" {
		t.Fatalf("unexpected first message: %+v", first)
	}

	// Error envelopes go through once there is room.
	hub.Event(types.EventEnvelope{RepoID: "a", Type: types.EventError, Message: "disk full"})
	select {
	case msg := <-c.send:
		if msg.Event == nil || msg.Event.Type != types.EventError {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatalf("error envelope not delivered")
	}
}

func TestHubSlowClientDroppedOnCritical(t *testing.T) {
	hub := NewHub()
	c := &hubClient{
		id:   "stuck",
		send: make(chan wireMessage, 1),
		done: make(chan struct{}),
	}
	hub.clients[c.id] = c
	c.send <- wireMessage{Channel: "event"}

	start := time.Now()
	hub.Event(types.EventEnvelope{RepoID: "a", Type: types.EventError, Message: "must arrive"})
	if elapsed := time.Since(start); elapsed < criticalSendWait {
		t.Fatalf("critical send returned after %s, want at least %s", elapsed, criticalSendWait)
	}
	if hub.ClientCount() != 0 {
		t.Fatalf("stuck client not dropped")
	}
	select {
	case <-c.done:
	default:
		t.Fatalf("stuck client not closed")
	}
}
