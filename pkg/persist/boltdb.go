package persist

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/burrow/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var bucketSnapshots = []byte("snapshots")

// BoltAdapter implements Adapter on a BoltDB file, one JSON envelope per
// snapshot key. Bolt's transactional Put gives the per-key atomicity the
// adapter contract requires.
type BoltAdapter struct {
	db *bolt.DB
}

// NewBoltAdapter opens (or creates) the database file at path
func NewBoltAdapter(path string) (*BoltAdapter, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSnapshots)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create snapshots bucket: %w", err)
	}

	return &BoltAdapter{db: db}, nil
}

// Save writes the envelope under key
func (s *BoltAdapter) Save(key string, envelope *types.SnapshotEnvelope) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		data, err := json.Marshal(envelope)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

// Load reads the envelope under key, nil when absent
func (s *BoltAdapter) Load(key string) (*types.SnapshotEnvelope, error) {
	var envelope *types.SnapshotEnvelope
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}
		envelope = &types.SnapshotEnvelope{}
		return json.Unmarshal(data, envelope)
	})
	if err != nil {
		return nil, err
	}
	return envelope, nil
}

// Keys lists every stored snapshot key
func (s *BoltAdapter) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		return b.ForEach(func(k, v []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

// Close closes the database
func (s *BoltAdapter) Close() error {
	return s.db.Close()
}
