// Package bbolt provides a BBolt-backed storage repository.
package bbolt

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/sora-grayscale/splitvault/storage"
)

var (
	resourceBucket  = []byte("resources")
	twoFactorBucket = []byte("two_factor")
)

// Store implements storage.Repository backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given BBolt database.
func NewRepository(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{resourceBucket, twoFactorBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// NewRepositoryFromFile opens a BBolt database at the given path and
// returns a new Repository.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewRepository(db)
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) put(bucket []byte, key string, v any) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func (s *Store) get(bucket []byte, key string, v any) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s: %w", key, storage.ErrNotFound)
		}
		return json.Unmarshal(data, v)
	})
}

func (s *Store) delete(bucket []byte, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b.Get([]byte(key)) == nil {
			return fmt.Errorf("%s: %w", key, storage.ErrNotFound)
		}
		return b.Delete([]byte(key))
	})
}

func (s *Store) PutResource(record *storage.ResourceRecord) error {
	return s.put(resourceBucket, record.ID, record)
}

func (s *Store) GetResource(id string) (*storage.ResourceRecord, error) {
	var record storage.ResourceRecord
	if err := s.get(resourceBucket, id, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) DeleteResource(id string) error {
	return s.delete(resourceBucket, id)
}

func (s *Store) PutTwoFactor(record *storage.TwoFactorRecord) error {
	return s.put(twoFactorBucket, record.AccountID, record)
}

func (s *Store) GetTwoFactor(accountID string) (*storage.TwoFactorRecord, error) {
	var record storage.TwoFactorRecord
	if err := s.get(twoFactorBucket, accountID, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) DeleteTwoFactor(accountID string) error {
	return s.delete(twoFactorBucket, accountID)
}
