// Package memory provides an in-memory storage repository, used in tests
// and single-process development setups.
package memory

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sora-grayscale/splitvault/storage"
)

// Store implements storage.Repository with in-process maps. Records are
// deep-copied through JSON so callers can't mutate stored state.
type Store struct {
	mu        sync.RWMutex
	resources map[string][]byte
	twoFactor map[string][]byte
}

var _ storage.Repository = (*Store)(nil)

func NewRepository() *Store {
	return &Store{
		resources: make(map[string][]byte),
		twoFactor: make(map[string][]byte),
	}
}

func (s *Store) PutResource(record *storage.ResourceRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshalling resource record: %w", err)
	}
	s.mu.Lock()
	s.resources[record.ID] = data
	s.mu.Unlock()
	return nil
}

func (s *Store) GetResource(id string) (*storage.ResourceRecord, error) {
	s.mu.RLock()
	data, ok := s.resources[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("resource %s: %w", id, storage.ErrNotFound)
	}
	var record storage.ResourceRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshalling resource record: %w", err)
	}
	return &record, nil
}

func (s *Store) DeleteResource(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resources[id]; !ok {
		return fmt.Errorf("resource %s: %w", id, storage.ErrNotFound)
	}
	delete(s.resources, id)
	return nil
}

func (s *Store) PutTwoFactor(record *storage.TwoFactorRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshalling two-factor record: %w", err)
	}
	s.mu.Lock()
	s.twoFactor[record.AccountID] = data
	s.mu.Unlock()
	return nil
}

func (s *Store) GetTwoFactor(accountID string) (*storage.TwoFactorRecord, error) {
	s.mu.RLock()
	data, ok := s.twoFactor[accountID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("two-factor for %s: %w", accountID, storage.ErrNotFound)
	}
	var record storage.TwoFactorRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshalling two-factor record: %w", err)
	}
	return &record, nil
}

func (s *Store) DeleteTwoFactor(accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.twoFactor[accountID]; !ok {
		return fmt.Errorf("two-factor for %s: %w", accountID, storage.ErrNotFound)
	}
	delete(s.twoFactor, accountID)
	return nil
}
