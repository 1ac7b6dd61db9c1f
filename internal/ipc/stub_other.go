//go:build !windows

package ipc

// Server is a placeholder on platforms without a native duplex pipe.
type Server struct{}

// Listen reports the channel as unavailable on this platform.
func Listen(h *Handler) (*Server, error) {
	return nil, unsupportedPlatformError{}
}

// Close is a no-op on unsupported platforms.
func (s *Server) Close() error { return nil }

// Call reports the channel as unavailable on this platform.
func Call(req Request) (Response, error) {
	return Response{}, unsupportedPlatformError{}
}
