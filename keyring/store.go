package keyring

import (
	"sync"

	"github.com/sora-grayscale/splitvault/internal/util"
)

// DurableStore persists transport keys across client restarts, keyed by
// resource id. For password-protected resources it must never hold the
// password-derived half as well; that half lives only in a SessionStore
// with a shorter lifetime.
type DurableStore interface {
	Get(resourceID string) ([]byte, bool, error)
	Put(resourceID string, key []byte) error
	Delete(resourceID string) error
}

// SessionStore holds password-derived keys for the lifetime of the client
// session only. Implementations must not write through to durable storage.
type SessionStore interface {
	Get(resourceID string) ([]byte, bool)
	Put(resourceID string, key []byte)
	Delete(resourceID string)
}

// MemoryStore is a thread-safe in-memory key store. It satisfies both
// DurableStore (for tests) and, via MemorySessionStore, the session tier.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ DurableStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(resourceID string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.data[resourceID]
	if !ok {
		return nil, false, nil
	}
	return util.CopyBytes(key), true, nil
}

func (s *MemoryStore) Put(resourceID string, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[resourceID] = util.CopyBytes(key)
	return nil
}

func (s *MemoryStore) Delete(resourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, resourceID)
	return nil
}

// MemorySessionStore is the session-lifetime tier for password-derived
// keys. Dropping the store object is how a client session ends.
type MemorySessionStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ SessionStore = (*MemorySessionStore)(nil)

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{data: make(map[string][]byte)}
}

func (s *MemorySessionStore) Get(resourceID string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.data[resourceID]
	if !ok {
		return nil, false
	}
	return util.CopyBytes(key), true
}

func (s *MemorySessionStore) Put(resourceID string, key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[resourceID] = util.CopyBytes(key)
}

func (s *MemorySessionStore) Delete(resourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, resourceID)
}

// Wipe zeroes and drops every cached key. Called when the client session
// ends.
func (s *MemorySessionStore) Wipe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, key := range s.data {
		util.WipeBytes(key)
		delete(s.data, id)
	}
}
