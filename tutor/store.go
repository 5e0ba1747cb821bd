package tutor

import (
	"context"
	"sync"

	"github.com/lumikids/tutorflow/types"
)

// ConversationStore persists per-session history between exchanges. The
// orchestrator treats it as best effort: a failing or absent store degrades
// to the caller-supplied history, never to a failed request.
type ConversationStore interface {
	// History returns up to limit most recent messages for the session in
	// chronological order. limit <= 0 means no limit.
	History(ctx context.Context, sessionID string, limit int) ([]types.Message, error)

	// Append adds messages to the end of the session's history.
	Append(ctx context.Context, sessionID string, messages ...types.Message) error
}

// defaultSessionCap bounds how many messages a session retains in memory.
const defaultSessionCap = 200

// MemoryStore is the in-process ConversationStore: a bounded slice per
// session. Suitable for tests and single-instance deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]types.Message
	cap      int
}

// NewMemoryStore creates a store keeping at most sessionCap messages per
// session; sessionCap <= 0 uses the default.
func NewMemoryStore(sessionCap int) *MemoryStore {
	if sessionCap <= 0 {
		sessionCap = defaultSessionCap
	}
	return &MemoryStore{
		sessions: make(map[string][]types.Message),
		cap:      sessionCap,
	}
}

func (s *MemoryStore) History(_ context.Context, sessionID string, limit int) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.sessions[sessionID]
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]types.Message, len(history))
	copy(out, history)
	return out, nil
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, messages ...types.Message) error {
	if len(messages) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.sessions[sessionID], messages...)
	if len(history) > s.cap {
		history = history[len(history)-s.cap:]
	}
	s.sessions[sessionID] = history
	return nil
}
