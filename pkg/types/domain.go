package types

// RepoID identifies one configured repository on this host. Assigned by the
// caller (typically derived from a config-file basename) and used as the
// registry key and the tag on every event envelope.
type RepoID string

// InstanceInfo is returned once an engine instance has been started.
type InstanceInfo struct {
	// Repository this instance serves.
	// example: default
	RepoID RepoID `json:"repoId" example:"default"`
	// Base URL of the engine's HTTP API.
	// example: http://127.0.0.1:51515
	BaseURL string `json:"baseUrl" example:"http://127.0.0.1:51515"`
	// TCP port the engine listens on.
	// example: 51515
	Port int `json:"port" example:"51515"`
	// Generated Basic-Auth password for the engine API.
	Password string `json:"password"`
	// OS process id of the engine child.
	// example: 12345
	PID int `json:"pid" example:"12345"`
}

// InstanceStatus summarizes one engine instance for status endpoints.
// Credentials are deliberately absent.
type InstanceStatus struct {
	// example: default
	RepoID RepoID `json:"repoId" example:"default"`
	// example: true
	Running bool `json:"running" example:"true"`
	// example: http://127.0.0.1:51515
	BaseURL string `json:"baseUrl,omitempty" example:"http://127.0.0.1:51515"`
	// example: 51515
	Port int `json:"port,omitempty" example:"51515"`
	// Seconds since the instance reached Ready; absent when not running.
	// example: 3600
	UptimeSeconds int64 `json:"uptimeSeconds,omitempty" example:"3600"`
}

// StatusResponse aggregates all instances for GET /status.
type StatusResponse struct {
	Instances []InstanceStatus `json:"instances"`
	// Number of connected event streams.
	// example: 1
	ConnectedStreams int `json:"connectedStreams" example:"1"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: repository already running: default
	Error string `json:"error" example:"repository already running: default"`
	// HTTP status code.
	// example: 409
	Code int `json:"code" example:"409"`
}
