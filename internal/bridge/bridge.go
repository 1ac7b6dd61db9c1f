package bridge

import (
	"context"
	"encoding/base64"
	"log"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"kopiad/pkg/types"
)

// eventsPath is the engine's realtime endpoint, reached by scheme-substituting
// the instance's HTTP base URL.
const eventsPath = "/api/v1/events"

const (
	handshakeTimeout  = 10 * time.Second
	writeWait         = 2 * time.Second
	disconnectWait    = 5 * time.Second
	disconnectAllWait = 2 * time.Second
	maxMessageSize    = 1 << 20
)

// Bridge maintains one realtime event stream per repository and fans the
// parsed, tagged envelopes out to a single sink.
type Bridge struct {
	mu     sync.Mutex
	conns  map[types.RepoID]*connection
	sink   Sink
	dialer websocket.Dialer
}

// New builds a bridge emitting on sink.
func New(sink Sink) *Bridge {
	return &Bridge{
		conns: make(map[types.RepoID]*connection),
		sink:  sink,
		dialer: websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
	}
}

// streamURL derives the websocket endpoint from an engine HTTP base URL.
func streamURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = eventsPath
	return u.String(), nil
}

// Connect dials the realtime endpoint of repoID's engine and starts the
// reader task. Fails with AlreadyConnected when a stream for the key exists.
func (b *Bridge) Connect(ctx context.Context, repoID types.RepoID, baseURL, user, password string) error {
	c := &connection{
		repoID:   repoID,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	b.mu.Lock()
	if _, ok := b.conns[repoID]; ok {
		b.mu.Unlock()
		return alreadyConnectedError{repoID: string(repoID)}
	}
	b.conns[repoID] = c
	b.mu.Unlock()

	wsURL, err := streamURL(baseURL)
	if err != nil {
		b.remove(c)
		close(c.done)
		return handshakeFailedError{reason: err.Error()}
	}
	hdr := http.Header{}
	hdr.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(user+":"+password)))

	conn, resp, err := b.dialer.DialContext(ctx, wsURL, hdr)
	if err != nil {
		b.remove(c)
		// A disconnect may be waiting on done while the dial fails.
		close(c.done)
		herr := handshakeFailedError{reason: err.Error()}
		if resp != nil {
			herr.status = resp.StatusCode
			resp.Body.Close()
		}
		return herr
	}
	conn.SetReadLimit(maxMessageSize)
	c.conn = conn

	// A disconnect may have raced the handshake; honor it.
	select {
	case <-c.shutdown:
		conn.Close()
		b.remove(c)
		b.sink.Disconnected(repoID)
		close(c.done)
		return nil
	default:
	}

	log.Printf("bridge=stream event=connect repo=%s url=%s", repoID, wsURL)
	go c.run(b)
	return nil
}

func (b *Bridge) remove(c *connection) {
	b.mu.Lock()
	if b.conns[c.repoID] == c {
		delete(b.conns, c.repoID)
	}
	b.mu.Unlock()
}

// Disconnect asks repoID's reader task to shut down gracefully, aborting the
// connection if it does not finish within the disconnect deadline.
func (b *Bridge) Disconnect(repoID types.RepoID) error {
	b.mu.Lock()
	c, ok := b.conns[repoID]
	b.mu.Unlock()
	if !ok {
		return notConnectedError{repoID: string(repoID)}
	}
	b.shutdownConn(c, disconnectWait)
	return nil
}

// DisconnectAll tears down every stream in parallel with a shorter per-key
// deadline; used during host shutdown.
func (b *Bridge) DisconnectAll() {
	b.mu.Lock()
	conns := make([]*connection, 0, len(b.conns))
	for _, c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *connection) {
			defer wg.Done()
			b.shutdownConn(c, disconnectAllWait)
		}(c)
	}
	wg.Wait()
}

func (b *Bridge) shutdownConn(c *connection, wait time.Duration) {
	c.signalShutdown()
	select {
	case <-c.done:
	case <-time.After(wait):
		// Cooperative shutdown expired; abort the transport.
		c.abort()
		select {
		case <-c.done:
		case <-time.After(time.Second):
			log.Printf("bridge=stream event=abort_timeout repo=%s", c.repoID)
		}
	}
	b.remove(c)
}

// IsConnected reports whether a stream exists for repoID.
func (b *Bridge) IsConnected(repoID types.RepoID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conns[repoID]
	return ok
}

// ConnectedRepos returns the connected repository ids in stable order.
func (b *Bridge) ConnectedRepos() []types.RepoID {
	b.mu.Lock()
	ids := make([]types.RepoID, 0, len(b.conns))
	for id := range b.conns {
		ids = append(ids, id)
	}
	b.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
