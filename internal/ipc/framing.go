package ipc

import (
	"encoding/binary"
	"io"
)

// maxFrameSize bounds one message in either direction.
const maxFrameSize = 8 << 10

// writeFrame sends one length-prefixed message. Header and payload go out in
// a single Write so message-mode transports see one message.
func writeFrame(w io.Writer, data []byte) error {
	if len(data) > maxFrameSize {
		return frameTooLargeError{size: len(data)}
	}
	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(data)))
	copy(buf[4:], data)
	_, err := w.Write(buf)
	return err
}

// readFrame receives one length-prefixed message.
func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameSize {
		return nil, frameTooLargeError{size: int(n)}
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
