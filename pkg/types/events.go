package types

import (
	"encoding/json"
	"fmt"
)

// Event type discriminators as emitted by the engine's realtime endpoint.
const (
	EventTaskProgress     = "task-progress"
	EventSnapshotProgress = "snapshot-progress"
	EventError            = "error"
	EventNotification     = "notification"
)

// Progress reports completion of a long-running engine task.
type Progress struct {
	Current    int64   `json:"current"`
	Total      int64   `json:"total"`
	Percentage float64 `json:"percentage"`
}

// TaskCounters carries the engine's per-task byte/file counters.
type TaskCounters struct {
	HashedFiles int64 `json:"hashedFiles"`
	HashedBytes int64 `json:"hashedBytes"`
	CachedFiles int64 `json:"cachedFiles"`
	CachedBytes int64 `json:"cachedBytes"`
}

// SnapshotSource identifies the source a snapshot is taken from.
type SnapshotSource struct {
	User string `json:"userName"`
	Host string `json:"host"`
	Path string `json:"path"`
}

// SnapshotUpload carries upload progress for an in-flight snapshot.
type SnapshotUpload struct {
	HashedFiles    int64  `json:"hashedFiles"`
	HashedBytes    int64  `json:"hashedBytes"`
	EstimatedBytes *int64 `json:"estimatedBytes,omitempty"`
	Directory      string `json:"directory,omitempty"`
}

// EventEnvelope is the tagged union delivered on the UI sink. The engine's
// wire schema has no repository tag; RepoID is injected by the reader task
// that owns the connection. The variant fields are flat so the envelope
// round-trips through JSON unchanged.
type EventEnvelope struct {
	RepoID RepoID `json:"repoId"`
	Type   string `json:"type"`

	// task-progress
	TaskID   string        `json:"taskId,omitempty"`
	Progress *Progress     `json:"progress,omitempty"`
	Counters *TaskCounters `json:"counters,omitempty"`

	// shared by task-progress and snapshot-progress
	Status string `json:"status,omitempty"`

	// snapshot-progress
	Source *SnapshotSource `json:"source,omitempty"`
	Upload *SnapshotUpload `json:"upload,omitempty"`

	// error and notification
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
	Level   string `json:"level,omitempty"`
}

// ParseEvent decodes one raw message from the engine's realtime endpoint.
// The repository tag is left empty; the caller owns it.
func ParseEvent(data []byte) (EventEnvelope, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return EventEnvelope{}, err
	}
	switch env.Type {
	case EventTaskProgress, EventSnapshotProgress, EventError, EventNotification:
		return env, nil
	case "":
		return EventEnvelope{}, fmt.Errorf("event missing type discriminator")
	default:
		return EventEnvelope{}, fmt.Errorf("unknown event type %q", env.Type)
	}
}
