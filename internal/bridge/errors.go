package bridge

import "fmt"

// alreadyConnectedError signals a duplicate connect for a repository id.
type alreadyConnectedError struct{ repoID string }

func (e alreadyConnectedError) Error() string { return "stream already connected: " + e.repoID }

// IsAlreadyConnected reports whether err indicates a duplicate connect.
func IsAlreadyConnected(err error) bool {
	_, ok := err.(alreadyConnectedError)
	return ok
}

// notConnectedError signals a disconnect for an absent stream.
type notConnectedError struct{ repoID string }

func (e notConnectedError) Error() string { return "stream not connected: " + e.repoID }

// IsNotConnected reports whether err indicates a missing stream.
func IsNotConnected(err error) bool {
	_, ok := err.(notConnectedError)
	return ok
}

// handshakeFailedError signals a failed websocket handshake.
type handshakeFailedError struct {
	reason string
	status int
}

func (e handshakeFailedError) Error() string {
	if e.status != 0 {
		return fmt.Sprintf("stream handshake failed (status %d): %s", e.status, e.reason)
	}
	return "stream handshake failed: " + e.reason
}

// IsHandshakeFailed reports whether err indicates a failed handshake.
func IsHandshakeFailed(err error) bool {
	_, ok := err.(handshakeFailedError)
	return ok
}
