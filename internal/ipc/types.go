// Package ipc implements the local service channel: a length-delimited
// request/response endpoint that lets a user-session UI drive a kopiad
// instance running as a background service. The endpoint exists only on
// platforms with a native duplex pipe; elsewhere Listen and Call return an
// UnsupportedPlatform error.
package ipc

import "kopiad/pkg/types"

// PipeName is the well-known endpoint name agreed with the UI client.
const PipeName = `\\.\pipe\kopiad`

// Commands accepted over the channel.
const (
	CommandGetStatus     = "getStatus"
	CommandGetServerInfo = "getServerInfo"
	CommandStop          = "stop"
)

// Response discriminators.
const (
	ResponseStatus     = "status"
	ResponseServerInfo = "serverInfo"
	ResponseSuccess    = "success"
	ResponseError      = "error"
)

// Request is one JSON-encoded command message.
type Request struct {
	Command string `json:"command"`
}

// ServerInfo carries what a UI needs to talk to the default engine directly.
type ServerInfo struct {
	BaseURL      string `json:"baseUrl"`
	Port         int    `json:"port"`
	HTTPPassword string `json:"httpPassword"`
}

// Response is the single reply message. Type selects which optional field is
// populated.
type Response struct {
	Type       string                `json:"type"`
	Status     *types.InstanceStatus `json:"status,omitempty"`
	ServerInfo *ServerInfo           `json:"serverInfo,omitempty"`
	Message    string                `json:"message,omitempty"`
}
