// Package password implements the password side of resource protection:
// probe creation at password-set time, the verification protocol, and a
// short-lived in-memory session for verified passwords.
package password

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"

	"github.com/sora-grayscale/splitvault/internal/util"
)

const (
	// DefaultSessionTTL is the hard cap on a password session. Sessions do
	// not slide; access never extends them.
	DefaultSessionTTL = 30 * time.Minute
	// DefaultSweepInterval is how often expired entries are evicted by the
	// background sweep, in addition to lazy eviction on access.
	DefaultSweepInterval = 5 * time.Minute
)

// Handle identifies one password session entry. Possessing the handle is
// not sufficient to read the password; Get also checks the resource id the
// entry was created for.
type Handle string

type sessionEntry struct {
	resourceID string
	// key is the per-entry ephemeral key, encrypted at rest in memory.
	key *memguard.Enclave
	// sealed is the password encrypted under the ephemeral key. The
	// plaintext password exists only transiently inside Store and Get.
	sealed     []byte
	expiresAt  time.Time
	lastAccess time.Time
}

// SessionStore caches verified passwords in memory, isolated per resource,
// auto-expiring. Entries are never serialized to durable storage.
type SessionStore struct {
	mu            sync.Mutex
	entries       map[Handle]*sessionEntry
	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time
}

// SessionOption configures a SessionStore.
type SessionOption func(*SessionStore)

// WithTTL overrides the absolute session lifetime.
func WithTTL(ttl time.Duration) SessionOption {
	return func(s *SessionStore) {
		s.ttl = ttl
	}
}

// WithSweepInterval overrides how often Run evicts expired entries.
func WithSweepInterval(interval time.Duration) SessionOption {
	return func(s *SessionStore) {
		s.sweepInterval = interval
	}
}

// WithSessionClock substitutes the time source, for deterministic tests.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionStore) {
		s.now = now
	}
}

// NewSessionStore creates an empty password session store.
func NewSessionStore(opts ...SessionOption) *SessionStore {
	s := &SessionStore{
		entries:       make(map[Handle]*sessionEntry),
		ttl:           DefaultSessionTTL,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store encrypts the password under a fresh ephemeral key and records the
// entry. The ephemeral key itself lives in a memguard enclave so neither
// it nor the password sits in plain memory between uses.
func (s *SessionStore) Store(resourceID, password string) (Handle, error) {
	ephemeral, err := util.RandomBytes(util.ServerKeySize)
	if err != nil {
		return "", fmt.Errorf("generating session key: %w", err)
	}
	sealed, err := util.EncryptAES([]byte(password), ephemeral)
	if err != nil {
		return "", fmt.Errorf("sealing session password: %w", err)
	}
	// NewEnclave wipes the ephemeral slice.
	enclave := memguard.NewEnclave(ephemeral)

	handle := Handle(uuid.NewString())
	now := s.now()

	s.mu.Lock()
	s.entries[handle] = &sessionEntry{
		resourceID: resourceID,
		key:        enclave,
		sealed:     sealed,
		expiresAt:  now.Add(s.ttl),
		lastAccess: now,
	}
	s.mu.Unlock()

	return handle, nil
}

// Get returns the password for a handle. The resource id must match the
// one the session was created for. Access refreshes lastAccess but never
// the expiry; sessions are hard-capped to bound exposure.
func (s *SessionStore) Get(handle Handle, resourceID string) (string, bool) {
	s.mu.Lock()
	entry, ok := s.entries[handle]
	if !ok {
		s.mu.Unlock()
		return "", false
	}
	now := s.now()
	if now.After(entry.expiresAt) {
		delete(s.entries, handle)
		s.mu.Unlock()
		return "", false
	}
	if entry.resourceID != resourceID {
		s.mu.Unlock()
		return "", false
	}
	entry.lastAccess = now
	key := entry.key
	sealed := util.CopyBytes(entry.sealed)
	s.mu.Unlock()

	buf, err := key.Open()
	if err != nil {
		return "", false
	}
	defer buf.Destroy()

	plaintext, err := util.DecryptAES(sealed, buf.Bytes())
	if err != nil {
		return "", false
	}
	return string(plaintext), true
}

// HasActive reports whether any unexpired session exists for the resource.
func (s *SessionStore) HasActive(resourceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for handle, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, handle)
			continue
		}
		if entry.resourceID == resourceID {
			return true
		}
	}
	return false
}

// Clear removes a single session entry.
func (s *SessionStore) Clear(handle Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop(handle)
}

// ClearAll removes every session for the resource, e.g. when the resource
// is deleted or its password changes.
func (s *SessionStore) ClearAll(resourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for handle, entry := range s.entries {
		if entry.resourceID == resourceID {
			s.drop(handle)
		}
	}
}

// Run calls Sweep every sweep interval until ctx is cancelled. Call from
// a background goroutine for the lifetime of the client session.
func (s *SessionStore) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep evicts expired entries. Call periodically from a background
// goroutine; lazy eviction on access covers the gaps between sweeps.
func (s *SessionStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for handle, entry := range s.entries {
		if now.After(entry.expiresAt) {
			s.drop(handle)
		}
	}
}

// drop wipes and removes one entry. Callers hold s.mu.
func (s *SessionStore) drop(handle Handle) {
	if entry, ok := s.entries[handle]; ok {
		util.WipeBytes(entry.sealed)
		delete(s.entries, handle)
	}
}
