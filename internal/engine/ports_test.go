package engine

import (
	"fmt"
	"net"
	"testing"
)

func TestPickPortInRange(t *testing.T) {
	p, err := pickPortInRange("127.0.0.1", 52100, 52110, nil)
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if p < 52100 || p > 52110 {
		t.Fatalf("port %d outside range", p)
	}
}

func TestPickPortInRangeSkipsExcluded(t *testing.T) {
	p, err := pickPortInRange("127.0.0.1", 52120, 52125, map[int]bool{52120: true, 52121: true})
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if p == 52120 || p == 52121 {
		t.Fatalf("picked excluded port %d", p)
	}
}

func TestPickPortInRangeExhausted(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	port := l.Addr().(*net.TCPAddr).Port
	_, err = pickPortInRange("127.0.0.1", port, port, nil)
	if !IsNoPortAvailable(err) {
		t.Fatalf("expected NoPortAvailable, got %v", err)
	}
	if want := fmt.Sprintf("no free port in range %d-%d", port, port); err.Error() != want {
		t.Fatalf("error %q, want %q", err.Error(), want)
	}
}
