package keyring

import (
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/sora-grayscale/splitvault/crypto"
	"github.com/sora-grayscale/splitvault/internal/util"
)

var transportBucket = []byte("transport_keys")

// BoltStore is a DurableStore backed by a BBolt database. Keys are stored
// base64url-encoded, one entry per resource id, matching the durable cache
// contract of the share-link scheme.
type BoltStore struct {
	db *bbolt.DB
}

var _ DurableStore = (*BoltStore)(nil)

// NewBoltStore returns a DurableStore backed by the given BBolt database.
func NewBoltStore(db *bbolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(transportBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating transport key bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// NewBoltStoreFromFile opens a BBolt database at the given path and
// returns a durable key store over it.
func NewBoltStoreFromFile(path string, options *bbolt.Options) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewBoltStore(db)
}

// Close closes the underlying BBolt database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Get(resourceID string) ([]byte, bool, error) {
	var key []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(transportBucket).Get([]byte(resourceID))
		if data == nil {
			return nil
		}
		decoded, err := crypto.DecodeKey(string(data))
		if err != nil {
			return fmt.Errorf("cached key for %s: %w", resourceID, err)
		}
		key = decoded
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if key == nil {
		return nil, false, nil
	}
	return key, true, nil
}

func (s *BoltStore) Put(resourceID string, key []byte) error {
	if len(key) != util.DataKeySize {
		return fmt.Errorf("%w: got %d bytes, want %d", crypto.ErrInvalidKeyFormat, len(key), util.DataKeySize)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(transportBucket).Put([]byte(resourceID), []byte(crypto.EncodeKey(key)))
	})
}

func (s *BoltStore) Delete(resourceID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(transportBucket).Delete([]byte(resourceID))
	})
}
