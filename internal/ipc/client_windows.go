//go:build windows

package ipc

import (
	"encoding/json"
	"time"

	"github.com/Microsoft/go-winio"
)

// Call connects to the service channel, sends one request and returns the
// response. Each call uses a fresh connection.
func Call(req Request) (Response, error) {
	dialTimeout := opTimeout
	conn, err := winio.DialPipe(PipeName, &dialTimeout)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(opTimeout))

	data, err := json.Marshal(req)
	if err != nil {
		return Response{}, err
	}
	if err := writeFrame(conn, data); err != nil {
		return Response{}, err
	}

	raw, err := readFrame(conn)
	if err != nil {
		return Response{}, err
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}
