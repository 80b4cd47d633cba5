package cache

import (
	"context"
	"sync"
	"time"
)

// Store is the raw key-value backend under the cache Layer. Get returns
// (nil, false, nil) on a miss. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// InMemoryStore implements Store with a map and TTL-based expiration.
// Expired entries are removed on access.
type InMemoryStore struct {
	mu   sync.Mutex
	data map[string]storeEntry
	now  func() time.Time
}

type storeEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		data: make(map[string]storeEntry),
		now:  time.Now,
	}
}

// Get returns the stored bytes if present and not expired. Expired entries are deleted.
func (s *InMemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.data, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores a copy of value for ttl. Non-positive ttl deletes the key.
func (s *InMemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ttl <= 0 {
		delete(s.data, key)
		return nil
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	s.data[key] = storeEntry{value: buf, expiresAt: s.now().Add(ttl)}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}
