package engine

import (
	"fmt"
	"net"
)

// pickPortInRange returns the first TCP port in [start, end] that is not in
// the exclude set and that a transient listener can be bound to. The listener
// is closed before returning, so the choice is best-effort: a bind collision
// at spawn time is surfaced as a spawn failure by the caller.
func pickPortInRange(host string, start, end int, exclude map[int]bool) (int, error) {
	for p := start; p <= end; p++ {
		if exclude[p] {
			continue
		}
		l, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, p))
		if err != nil {
			continue
		}
		_ = l.Close()
		return p, nil
	}
	return 0, noPortAvailableError{start: start, end: end}
}
