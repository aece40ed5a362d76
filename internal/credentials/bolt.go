package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/nerrad567/lutron-gateway/internal/bridges/lutron"
)

// BoltStore keeps bundles in a bbolt file, one bucket per bridge type.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates the bolt file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{lutron.TypeHybrid, lutron.TypeTelnet} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Get loads the bundle of one bridge.
func (s *BoltStore) Get(_ context.Context, bridgeType, bridgeID string) (*lutron.CredentialBundle, error) {
	if err := checkKey(bridgeType, bridgeID); err != nil {
		return nil, err
	}

	var bundle lutron.CredentialBundle
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bridgeType))
		if b == nil {
			return fmt.Errorf("%s %s: %w", bridgeType, bridgeID, ErrNotFound)
		}
		data := b.Get([]byte(bridgeID))
		if data == nil {
			return fmt.Errorf("%s %s: %w", bridgeType, bridgeID, ErrNotFound)
		}
		return json.Unmarshal(data, &bundle)
	})
	if err != nil {
		return nil, err
	}
	return &bundle, nil
}

// Put stores the bundle of one bridge, creating the type bucket if needed.
func (s *BoltStore) Put(_ context.Context, bridgeType, bridgeID string, bundle *lutron.CredentialBundle) error {
	if err := checkKey(bridgeType, bridgeID); err != nil {
		return err
	}
	if bundle == nil {
		return fmt.Errorf("storing credentials for %s %s: nil bundle", bridgeType, bridgeID)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bridgeType))
		if err != nil {
			return err
		}
		data, err := json.Marshal(bundle)
		if err != nil {
			return err
		}
		return b.Put([]byte(bridgeID), data)
	})
}

// Close closes the bolt file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
