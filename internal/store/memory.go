package store

import (
	"context"
	"sync"

	"github.com/LegacyAung/chat-app/internal/relay"
)

// MemoryStore keeps messages in process memory. It backs store-less runs
// and tests; history does not survive a restart.
type MemoryStore struct {
	mu   sync.RWMutex
	msgs []relay.ChatMessage
}

var _ relay.MessageStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, msg relay.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *MemoryStore) History(ctx context.Context, userA, userB string) ([]relay.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []relay.ChatMessage
	for _, m := range s.msgs {
		if (m.Sender == userA && m.Receiver == userB) || (m.Sender == userB && m.Receiver == userA) {
			out = append(out, m)
		}
	}
	return out, nil
}

// Len reports the total number of appended messages.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}
