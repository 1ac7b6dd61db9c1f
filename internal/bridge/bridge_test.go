package bridge

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"kopiad/pkg/types"
)

var upgrader = websocket.Upgrader{}

// newEngineEmulator serves the realtime endpoint and hands the upgraded
// connection to handler.
func newEngineEmulator(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/events" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// readUntilClose keeps the server side open until the client goes away.
func readUntilClose(conn *websocket.Conn) {
	defer conn.Close()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStreamURL(t *testing.T) {
	cases := []struct{ in, want string }{
		{"http://127.0.0.1:51515", "ws://127.0.0.1:51515/api/v1/events"},
		{"https://127.0.0.1:51515", "wss://127.0.0.1:51515/api/v1/events"},
	}
	for _, c := range cases {
		got, err := streamURL(c.in)
		if err != nil || got != c.want {
			t.Fatalf("streamURL(%q)=%q err=%v want %q", c.in, got, err, c.want)
		}
	}
}

func TestStreamTagging(t *testing.T) {
	srvA := newEngineEmulator(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"notification","level":"info","message":"a"}`))
		readUntilClose(conn)
	})
	srvB := newEngineEmulator(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"notification","level":"info","message":"b"}`))
		readUntilClose(conn)
	})

	sink := NewMemorySink()
	b := New(sink)
	if err := b.Connect(context.Background(), "repoA", srvA.URL, "kopiad", "pwA"); err != nil {
		t.Fatalf("connect repoA: %v", err)
	}
	if err := b.Connect(context.Background(), "repoB", srvB.URL, "kopiad", "pwB"); err != nil {
		t.Fatalf("connect repoB: %v", err)
	}
	waitFor(t, "two events", func() bool { return len(sink.Events()) == 2 })

	byRepo := map[types.RepoID]string{}
	for _, env := range sink.Events() {
		if env.Type != types.EventNotification {
			t.Fatalf("unexpected envelope type %q", env.Type)
		}
		byRepo[env.RepoID] = env.Message
	}
	if byRepo["repoA"] != "a" || byRepo["repoB"] != "b" {
		t.Fatalf("tagging swapped: %v", byRepo)
	}

	b.DisconnectAll()
	if got := len(sink.Disconnects()); got != 2 {
		t.Fatalf("expected 2 disconnected emissions, got %d", got)
	}
}

func TestPerRepoOrderPreserved(t *testing.T) {
	srv := newEngineEmulator(t, func(conn *websocket.Conn) {
		for _, msg := range []string{"first", "second", "third"} {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"notification","level":"info","message":"`+msg+`"}`))
		}
		readUntilClose(conn)
	})
	sink := NewMemorySink()
	b := New(sink)
	if err := b.Connect(context.Background(), "repoA", srv.URL, "kopiad", "pw"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer b.DisconnectAll()
	waitFor(t, "three events", func() bool { return len(sink.Events()) == 3 })
	events := sink.Events()
	for i, want := range []string{"first", "second", "third"} {
		if events[i].Message != want {
			t.Fatalf("event %d is %q, want %q", i, events[i].Message, want)
		}
	}
}

func TestGracefulDisconnect(t *testing.T) {
	srv := newEngineEmulator(t, readUntilClose)
	sink := NewMemorySink()
	b := New(sink)
	if err := b.Connect(context.Background(), "repoA", srv.URL, "kopiad", "pw"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !b.IsConnected("repoA") {
		t.Fatalf("not connected after Connect")
	}

	begin := time.Now()
	if err := b.Disconnect("repoA"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if d := time.Since(begin); d > disconnectWait {
		t.Fatalf("disconnect took %s", d)
	}
	if b.IsConnected("repoA") {
		t.Fatalf("still connected after Disconnect")
	}
	if got := sink.Disconnects(); len(got) != 1 || got[0] != "repoA" {
		t.Fatalf("expected one disconnected emission for repoA, got %v", got)
	}
}

func TestParseFailuresRecovered(t *testing.T) {
	srv := newEngineEmulator(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`not json at all`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`))
		conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02})
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","message":"disk full","details":"sdb1"}`))
		readUntilClose(conn)
	})
	sink := NewMemorySink()
	b := New(sink)
	if err := b.Connect(context.Background(), "repoA", srv.URL, "kopiad", "pw"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer b.DisconnectAll()

	waitFor(t, "the valid event", func() bool { return len(sink.Events()) == 1 })
	env := sink.Events()[0]
	if env.Type != types.EventError || env.Message != "disk full" || env.Details != "sdb1" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if !b.IsConnected("repoA") {
		t.Fatalf("parse failures terminated the loop")
	}
}

func TestRemoteCloseEmitsDisconnected(t *testing.T) {
	srv := newEngineEmulator(t, func(conn *websocket.Conn) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	})
	sink := NewMemorySink()
	b := New(sink)
	if err := b.Connect(context.Background(), "repoA", srv.URL, "kopiad", "pw"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, "disconnected emission", func() bool { return len(sink.Disconnects()) == 1 })
	waitFor(t, "record removal", func() bool { return !b.IsConnected("repoA") })
}

func TestAlreadyConnected(t *testing.T) {
	srv := newEngineEmulator(t, readUntilClose)
	b := New(NewMemorySink())
	if err := b.Connect(context.Background(), "repoA", srv.URL, "kopiad", "pw"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer b.DisconnectAll()
	if err := b.Connect(context.Background(), "repoA", srv.URL, "kopiad", "pw"); !IsAlreadyConnected(err) {
		t.Fatalf("expected AlreadyConnected, got %v", err)
	}
}

func TestDisconnectNotConnected(t *testing.T) {
	b := New(NewMemorySink())
	if err := b.Disconnect("absent"); !IsNotConnected(err) {
		t.Fatalf("expected NotConnected, got %v", err)
	}
}

func TestHandshakeFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	b := New(NewMemorySink())
	err := b.Connect(context.Background(), "repoA", srv.URL, "kopiad", "bad")
	if !IsHandshakeFailed(err) {
		t.Fatalf("expected HandshakeFailed, got %v", err)
	}
	if b.IsConnected("repoA") {
		t.Fatalf("failed handshake left a record")
	}
}

// A disconnect issued while the handshake is still in flight must return as
// soon as the dial fails, not wait out the full disconnect deadline.
func TestDisconnectDuringFailingHandshake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	b := New(NewMemorySink())
	connectErr := make(chan error, 1)
	go func() {
		connectErr <- b.Connect(context.Background(), "repoA", srv.URL, "kopiad", "bad")
	}()
	waitFor(t, "pending connection record", func() bool { return b.IsConnected("repoA") })

	begin := time.Now()
	if err := b.Disconnect("repoA"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if d := time.Since(begin); d >= disconnectWait {
		t.Fatalf("disconnect blocked for %s", d)
	}
	if err := <-connectErr; !IsHandshakeFailed(err) {
		t.Fatalf("expected HandshakeFailed, got %v", err)
	}
	if b.IsConnected("repoA") {
		t.Fatalf("failed handshake left a record")
	}
}

func TestBasicAuthHeaderSent(t *testing.T) {
	var gotAuth string
	capture := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		readUntilClose(conn)
	}))
	defer capture.Close()

	b := New(NewMemorySink())
	if err := b.Connect(context.Background(), "repoA", capture.URL, "kopiad", "secret"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer b.DisconnectAll()

	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("kopiad:secret"))
	if gotAuth != want {
		t.Fatalf("authorization %q, want %q", gotAuth, want)
	}
}

func TestConnectedRepos(t *testing.T) {
	srv := newEngineEmulator(t, readUntilClose)
	b := New(NewMemorySink())
	for _, id := range []types.RepoID{"zeta", "alpha"} {
		if err := b.Connect(context.Background(), id, srv.URL, "kopiad", "pw"); err != nil {
			t.Fatalf("connect %s: %v", id, err)
		}
	}
	defer b.DisconnectAll()
	ids := b.ConnectedRepos()
	if len(ids) != 2 || ids[0] != "alpha" || ids[1] != "zeta" {
		t.Fatalf("unexpected connected repos: %v", ids)
	}
}
