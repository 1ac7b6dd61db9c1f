//go:build windows

package ipc

import (
	"log"
	"net"
	"sync"

	"github.com/Microsoft/go-winio"
)

// Server accepts connections on the named pipe and serves each on its own
// goroutine.
type Server struct {
	handler *Handler
	ln      net.Listener
	wg      sync.WaitGroup
}

// Listen creates the pipe endpoint and starts accepting. The pipe uses
// message mode with 8 KiB buffers per direction.
func Listen(h *Handler) (*Server, error) {
	cfg := &winio.PipeConfig{
		MessageMode:      true,
		InputBufferSize:  maxFrameSize,
		OutputBufferSize: maxFrameSize,
	}
	ln, err := winio.ListenPipe(PipeName, cfg)
	if err != nil {
		return nil, err
	}
	s := &Server{handler: h, ln: ln}
	s.wg.Add(1)
	go s.acceptLoop()
	log.Printf("ipc=server event=listening pipe=%s", PipeName)
	return s, nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			// Accept fails once the listener is closed.
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ServeConn(conn, s.handler)
		}()
	}
}

// Close stops accepting and waits for in-flight connections to finish.
func (s *Server) Close() error {
	err := s.ln.Close()
	s.wg.Wait()
	return err
}
