package bridge

import (
	"sync"

	"kopiad/pkg/types"
)

// Sink receives the bridge's output. Implementations must not block the
// caller: a slow consumer buffers with an explicit bound or drops progress
// events, never error or notification events.
type Sink interface {
	// Event delivers one tagged envelope.
	Event(env types.EventEnvelope)
	// Disconnected reports that the stream for repoID has terminated.
	Disconnected(repoID types.RepoID)
}

// MemorySink stores emissions in-memory for tests.
type MemorySink struct {
	mu           sync.Mutex
	events       []types.EventEnvelope
	disconnected []types.RepoID
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Event(env types.EventEnvelope) {
	s.mu.Lock()
	s.events = append(s.events, env)
	s.mu.Unlock()
}

func (s *MemorySink) Disconnected(repoID types.RepoID) {
	s.mu.Lock()
	s.disconnected = append(s.disconnected, repoID)
	s.mu.Unlock()
}

func (s *MemorySink) Events() []types.EventEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.EventEnvelope, len(s.events))
	copy(out, s.events)
	return out
}

func (s *MemorySink) Disconnects() []types.RepoID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.RepoID, len(s.disconnected))
	copy(out, s.disconnected)
	return out
}
