package session

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/intake-pipeline/internal/domain"
)

type memoryEntry struct {
	sess      domain.ConversationSession
	expiresAt time.Time
}

// MemoryStore is an in-process Store used by tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Get(ctx context.Context, identity string) (*domain.ConversationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[identity]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(s.entries, identity)
		return nil, ErrNotFound
	}
	sess := entry.sess
	return &sess, nil
}

func (s *MemoryStore) Put(ctx context.Context, sess *domain.ConversationSession, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sess.Identity] = memoryEntry{sess: *sess, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, identity)
	return nil
}

// TTL reports the remaining lifetime of an identity's entry, for tests.
func (s *MemoryStore) TTL(identity string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[identity]
	if !ok {
		return 0
	}
	return time.Until(entry.expiresAt)
}
