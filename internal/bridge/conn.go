package bridge

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"kopiad/pkg/types"
)

// connection is the per-repository stream record. It is owned by its reader
// task while active; the bridge only signals it.
type connection struct {
	repoID types.RepoID
	conn   *websocket.Conn

	shutdown     chan struct{}
	shutdownOnce sync.Once

	// done is closed after the disconnected emission, i.e. the task is gone.
	done chan struct{}
}

func (c *connection) signalShutdown() {
	c.shutdownOnce.Do(func() { close(c.shutdown) })
}

func (c *connection) abort() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

type wsMessage struct {
	messageType int
	data        []byte
}

// run is the reader loop: each iteration waits for either a stream message or
// the shutdown signal. Whatever the termination path, exactly one
// disconnected emission carries the repository id.
func (c *connection) run(b *Bridge) {
	connectionsGauge.Inc()
	defer func() {
		_ = c.conn.Close()
		connectionsGauge.Dec()
		b.remove(c)
		b.sink.Disconnected(c.repoID)
		close(c.done)
		log.Printf("bridge=stream event=disconnected repo=%s", c.repoID)
	}()

	msgCh := make(chan wsMessage)
	readErr := make(chan error, 1)
	go func() {
		// Ping frames are answered by the transport's default handler
		// inside ReadMessage.
		for {
			mt, data, err := c.conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case msgCh <- wsMessage{messageType: mt, data: data}:
			case <-c.shutdown:
				return
			}
		}
	}()

	for {
		select {
		case m := <-msgCh:
			if m.messageType != websocket.TextMessage {
				continue
			}
			env, err := types.ParseEvent(m.data)
			if err != nil {
				// Parse errors never terminate the loop.
				parseFailuresTotal.WithLabelValues(string(c.repoID)).Inc()
				log.Printf("bridge=stream event=parse_error repo=%s err=%v", c.repoID, err)
				continue
			}
			env.RepoID = c.repoID
			eventsTotal.WithLabelValues(string(c.repoID)).Inc()
			b.sink.Event(env)

		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("bridge=stream event=remote_close repo=%s", c.repoID)
			} else {
				log.Printf("bridge=stream event=read_error repo=%s err=%v", c.repoID, err)
			}
			return

		case <-c.shutdown:
			deadline := time.Now().Add(writeWait)
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			// Give the peer a moment to answer the close handshake.
			_ = c.conn.SetReadDeadline(time.Now().Add(writeWait))
			select {
			case <-readErr:
			case <-time.After(writeWait):
			}
			return
		}
	}
}
