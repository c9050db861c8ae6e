package refstore

import (
	"context"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/cellar/pkg/cellarerr"
)

var bucketRefs = []byte("refs")

// BoltStore is the embedded-key-value RefStore adapter: one bucket, the
// composite key layout of spec.md §6 as the bbolt key. bbolt has no
// native CAS primitive, so Update's correctness comes from running the
// whole read-compare-write inside a single db.Update transaction, which
// bbolt guarantees is serialized against every other writer.
type BoltStore struct {
	db     *bolt.DB
	broker *Broker
}

// NewBoltStore opens (creating if absent) a bbolt database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, cellarerr.BackendFailure("refstore-bolt", "open", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRefs)
		return err
	})
	if err != nil {
		db.Close()
		return nil, cellarerr.BackendFailure("refstore-bolt", "create bucket", err)
	}
	return &BoltStore{db: db, broker: NewBroker()}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Get(_ context.Context, name, namespace string) (string, bool, error) {
	if err := ValidateKey(name, namespace); err != nil {
		return "", false, err
	}
	var fp []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		fp = tx.Bucket(bucketRefs).Get([]byte(CompositeKey(name, namespace)))
		return nil
	})
	if err != nil {
		return "", false, cellarerr.BackendFailure("refstore-bolt", "Get", err)
	}
	if fp == nil {
		return "", false, nil
	}
	return string(fp), true, nil
}

func (s *BoltStore) New(_ context.Context, name, namespace, fingerprint string) (bool, error) {
	if err := ValidateKey(name, namespace); err != nil {
		return false, err
	}
	key := []byte(CompositeKey(name, namespace))
	created := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRefs)
		if b.Get(key) != nil {
			return nil
		}
		created = true
		return b.Put(key, []byte(fingerprint))
	})
	if err != nil {
		return false, cellarerr.BackendFailure("refstore-bolt", "New", err)
	}
	if created {
		s.broker.Publish(name, namespace, nil, fingerprint)
	}
	return created, nil
}

func (s *BoltStore) Update(_ context.Context, name, namespace, expected, desired string) (bool, error) {
	if err := ValidateKey(name, namespace); err != nil {
		return false, err
	}
	key := []byte(CompositeKey(name, namespace))
	updated := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRefs)
		current := b.Get(key)
		if current == nil || string(current) != expected {
			return nil
		}
		updated = true
		return b.Put(key, []byte(desired))
	})
	if err != nil {
		return false, cellarerr.BackendFailure("refstore-bolt", "Update", err)
	}
	if updated {
		old := expected
		s.broker.Publish(name, namespace, &old, desired)
	}
	return updated, nil
}

func (s *BoltStore) Delete(_ context.Context, name, namespace string) (bool, error) {
	if err := ValidateKey(name, namespace); err != nil {
		return false, err
	}
	key := []byte(CompositeKey(name, namespace))
	deleted := false
	var old string
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRefs)
		current := b.Get(key)
		if current == nil {
			return nil
		}
		old = string(current)
		deleted = true
		return b.Delete(key)
	})
	if err != nil {
		return false, cellarerr.BackendFailure("refstore-bolt", "Delete", err)
	}
	if deleted {
		s.broker.Publish(name, namespace, &old, "")
	}
	return deleted, nil
}

// restoreAll replaces every cell in the bucket with cells, used by
// RaftStore when replaying a snapshot onto this node's local tier.
func (s *BoltStore) restoreAll(cells map[string]string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketRefs); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		b, err := tx.CreateBucket(bucketRefs)
		if err != nil {
			return err
		}
		for k, v := range cells {
			if err := b.Put([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return cellarerr.BackendFailure("refstore-bolt", "restore", err)
	}
	return nil
}

func (s *BoltStore) Subscribe(name, namespace string, callback Callback) (uuid.UUID, error) {
	return s.broker.Subscribe(name, namespace, callback), nil
}

// SubscriptionCount returns the number of active subscriptions, for
// metrics collection.
func (s *BoltStore) SubscriptionCount() int {
	return s.broker.Count()
}

func (s *BoltStore) Unsubscribe(id uuid.UUID) bool {
	return s.broker.Unsubscribe(id)
}
