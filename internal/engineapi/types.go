package engineapi

import (
	"encoding/json"
	"time"
)

// RepositoryStatus mirrors the engine's repo-status document.
type RepositoryStatus struct {
	Connected   bool   `json:"connected"`
	Description string `json:"description,omitempty"`
	ConfigFile  string `json:"configFile,omitempty"`
	Hash        string `json:"hash,omitempty"`
	Encryption  string `json:"encryption,omitempty"`
	Splitter    string `json:"splitter,omitempty"`
	Storage     string `json:"storage,omitempty"`
}

// Algorithms lists the engine's supported repository algorithms.
type Algorithms struct {
	DefaultHash       string   `json:"defaultHash"`
	DefaultEncryption string   `json:"defaultEncryption"`
	DefaultSplitter   string   `json:"defaultSplitter"`
	Hash              []string `json:"hash"`
	Encryption        []string `json:"encryption"`
	Splitter          []string `json:"splitter"`
	Compression       []string `json:"compression,omitempty"`
}

// StorageConfig selects a storage backend; Config is backend-specific and
// passed through opaquely.
type StorageConfig struct {
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config"`
}

// ConnectRequest connects the engine to an existing repository.
type ConnectRequest struct {
	Storage  StorageConfig `json:"storage"`
	Password string        `json:"password"`
	Token    string        `json:"token,omitempty"`
}

// CreateOptions carries the algorithm choices for a new repository.
type CreateOptions struct {
	Hash       string `json:"hash,omitempty"`
	Encryption string `json:"encryption,omitempty"`
	Splitter   string `json:"splitter,omitempty"`
}

// CreateRequest initializes a new repository and connects to it.
type CreateRequest struct {
	Storage  StorageConfig `json:"storage"`
	Password string        `json:"password"`
	Options  CreateOptions `json:"options"`
}

// SourceInfo identifies one snapshot source.
type SourceInfo struct {
	UserName string `json:"userName"`
	Host     string `json:"host"`
	Path     string `json:"path"`
}

// SourceStatus is one entry of the engine's sources listing.
type SourceStatus struct {
	Source           SourceInfo      `json:"source"`
	Status           string          `json:"status"`
	SchedulingPolicy json.RawMessage `json:"schedule,omitempty"`
	NextSnapshotTime *time.Time      `json:"nextSnapshotTime,omitempty"`
}

// SourcesResponse wraps GET /sources.
type SourcesResponse struct {
	LocalUsername string         `json:"localUsername"`
	LocalHost     string         `json:"localHost"`
	Sources       []SourceStatus `json:"sources"`
}

// Snapshot is one snapshot manifest summary.
type Snapshot struct {
	ID          string     `json:"id"`
	Source      SourceInfo `json:"source"`
	Description string     `json:"description,omitempty"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     time.Time  `json:"endTime"`
	RootID      string     `json:"rootID,omitempty"`
	Retention   []string   `json:"retention,omitempty"`
}

// SnapshotsResponse wraps GET /snapshots.
type SnapshotsResponse struct {
	Snapshots []Snapshot `json:"snapshots"`
}

// PolicyListEntry is one entry of the policies listing.
type PolicyListEntry struct {
	ID     string          `json:"id"`
	Target SourceInfo      `json:"target"`
	Policy json.RawMessage `json:"policy"`
}

// PoliciesResponse wraps GET /policies.
type PoliciesResponse struct {
	Policies []PolicyListEntry `json:"policies"`
}

// Task is one long-running engine operation.
type Task struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Status    string          `json:"status"`
	StartTime time.Time       `json:"startTime"`
	EndTime   *time.Time      `json:"endTime,omitempty"`
	Progress  json.RawMessage `json:"progressInfo,omitempty"`
}

// TasksResponse wraps GET /tasks.
type TasksResponse struct {
	Tasks []Task `json:"tasks"`
}

// RestoreRequest starts a restore of a snapshot root into a local directory.
type RestoreRequest struct {
	Root        string `json:"root"`
	Overwrite   bool   `json:"overwrite,omitempty"`
	Destination struct {
		Path string `json:"path"`
	} `json:"fsOutput"`
}

// MountRequest mounts a snapshot root as a filesystem.
type MountRequest struct {
	Root string `json:"root"`
}

// MountInfo describes one active mount.
type MountInfo struct {
	Root string `json:"root"`
	Path string `json:"path"`
}

// MountsResponse wraps GET /mounts.
type MountsResponse struct {
	Items []MountInfo `json:"items"`
}

// MaintenanceRequest triggers repository maintenance.
type MaintenanceRequest struct {
	Full bool `json:"full,omitempty"`
}
