package ipc

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"time"

	"kopiad/pkg/types"
)

// opTimeout bounds each read or write on a client connection.
const opTimeout = 5 * time.Second

// InstanceSource is the slice of the instance registry the channel serves
// from: the default repository's status and connection info.
type InstanceSource interface {
	DefaultStatus() (types.InstanceStatus, bool)
	DefaultInfo() (types.InstanceInfo, bool)
}

// Handler dispatches channel requests against an instance source. OnStop, if
// set, is invoked on a Stop request; the actual shutdown is driven by the
// service control handler, the channel only acknowledges.
type Handler struct {
	Source InstanceSource
	OnStop func()
}

// Handle produces the response for one request. Unknown commands yield an
// error response, never a dropped connection.
func (h *Handler) Handle(req Request) Response {
	switch req.Command {
	case CommandGetStatus:
		st, ok := h.Source.DefaultStatus()
		if !ok {
			st = types.InstanceStatus{Running: false}
		}
		return Response{Type: ResponseStatus, Status: &st}

	case CommandGetServerInfo:
		info, ok := h.Source.DefaultInfo()
		st, stOK := h.Source.DefaultStatus()
		if !ok || !stOK || !st.Running {
			return Response{Type: ResponseError, Message: "Server not running"}
		}
		return Response{Type: ResponseServerInfo, ServerInfo: &ServerInfo{
			BaseURL:      info.BaseURL,
			Port:         info.Port,
			HTTPPassword: info.Password,
		}}

	case CommandStop:
		if h.OnStop != nil {
			h.OnStop()
		}
		return Response{Type: ResponseSuccess, Message: "Stop requested"}

	default:
		return Response{Type: ResponseError, Message: fmt.Sprintf("unknown command %q", req.Command)}
	}
}

// ServeConn handles one connection: one request message in, one response
// message out, then the connection is closed.
func ServeConn(conn net.Conn, h *Handler) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(opTimeout))

	data, err := readFrame(conn)
	if err != nil {
		log.Printf("ipc=server event=read_error err=%v", err)
		return
	}

	var req Request
	resp := Response{}
	if err := json.Unmarshal(data, &req); err != nil {
		resp = Response{Type: ResponseError, Message: "malformed request"}
	} else {
		resp = h.Handle(req)
	}

	out, err := json.Marshal(resp)
	if err != nil {
		log.Printf("ipc=server event=encode_error err=%v", err)
		return
	}
	if err := writeFrame(conn, out); err != nil {
		log.Printf("ipc=server event=write_error err=%v", err)
	}
}
