package httpapi

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"kopiad/internal/bridge"
	"kopiad/pkg/types"
)

const (
	sendBuffer       = 256
	clientWriteWait  = 10 * time.Second
	pingPeriod       = 30 * time.Second
	pongWait         = 60 * time.Second
	criticalSendWait = 2 * time.Second
)

// wireMessage is one frame on the UI websocket. Channel is "event" for tagged
// envelopes and "disconnected" for stream termination.
type wireMessage struct {
	Channel string               `json:"channel"`
	Event   *types.EventEnvelope `json:"event,omitempty"`
	RepoID  types.RepoID         `json:"repoId,omitempty"`
}

type hubClient struct {
	id   string
	conn *websocket.Conn
	send chan wireMessage
	done chan struct{}
	once sync.Once
}

func (c *hubClient) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub fans bridge emissions out to subscribed UI clients. It is the Sink the
// bridge writes to; Event never blocks the bridge reader beyond the critical
// send deadline.
type Hub struct {
	mu       sync.Mutex
	clients  map[string]*hubClient
	upgrader websocket.Upgrader
}

var _ bridge.Sink = (*Hub)(nil)

// NewHub builds an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*hubClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The gateway binds loopback; the UI may serve from any local port.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Event delivers one tagged envelope to every client. Progress envelopes are
// dropped for clients whose buffer is full; error and notification envelopes
// get a bounded blocking send, and a client that cannot drain in time is
// dropped instead of the envelope.
func (h *Hub) Event(env types.EventEnvelope) {
	droppable := env.Type == types.EventTaskProgress || env.Type == types.EventSnapshotProgress
	h.broadcast(wireMessage{Channel: "event", Event: &env}, droppable, string(env.Type))
}

// Disconnected reports a terminated stream to every client.
func (h *Hub) Disconnected(repoID types.RepoID) {
	h.broadcast(wireMessage{Channel: "disconnected", RepoID: repoID}, false, "disconnected")
}

func (h *Hub) broadcast(msg wireMessage, droppable bool, typeLabel string) {
	h.mu.Lock()
	clients := make([]*hubClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
			continue
		case <-c.done:
			continue
		default:
		}
		if droppable {
			droppedEventsTotal.WithLabelValues(typeLabel).Inc()
			continue
		}
		select {
		case c.send <- msg:
		case <-c.done:
		case <-time.After(criticalSendWait):
			log.Printf("httpapi=hub event=slow_client client=%s", c.id)
			h.drop(c)
		}
	}
}

func (h *Hub) drop(c *hubClient) {
	h.mu.Lock()
	if h.clients[c.id] == c {
		delete(h.clients, c.id)
	}
	h.mu.Unlock()
	c.close()
}

// ClientCount reports the number of subscribed clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown asks every client pump to finish. Used during host teardown.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*hubClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

// ServeWS upgrades the request and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an error status.
		return
	}
	c := &hubClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan wireMessage, sendBuffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	wsClients.Inc()
	go c.writePump(h)
	go c.readPump(h)
}

func (c *hubClient) writePump(h *Hub) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		h.drop(c)
		wsClients.Dec()
	}()
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// readPump drains the client; the UI sends nothing but pongs and close frames.
func (c *hubClient) readPump(h *Hub) {
	defer h.drop(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
