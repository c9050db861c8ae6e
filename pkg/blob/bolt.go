package blob

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/cellar/pkg/cellarerr"
)

var bucketBlobs = []byte("blobs")

// BoltStore is the embedded-key-value BlobStore adapter, one bbolt
// bucket with one key per fingerprint.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a bbolt database at path and
// ensures the blobs bucket exists.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, cellarerr.BackendFailure("bolt", "open", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBlobs)
		return err
	})
	if err != nil {
		db.Close()
		return nil, cellarerr.BackendFailure("bolt", "create bucket", err)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Has(_ context.Context, fingerprint string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketBlobs).Get([]byte(fingerprint)) != nil
		return nil
	})
	if err != nil {
		return false, cellarerr.BackendFailure("bolt", "Has", err)
	}
	return found, nil
}

func (s *BoltStore) Get(_ context.Context, fingerprint string) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBlobs).Get([]byte(fingerprint))
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, cellarerr.BackendFailure("bolt", "Get", err)
	}
	return out, out != nil, nil
}

// GetMany uses a single read transaction rather than the parallel
// default, since bbolt already serves every read from one consistent
// snapshot without needing concurrent goroutines.
func (s *BoltStore) GetMany(_ context.Context, fingerprints []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(fingerprints))
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlobs)
		for _, fp := range fingerprints {
			if v := b.Get([]byte(fp)); v != nil {
				out[fp] = append([]byte(nil), v...)
			}
		}
		return nil
	})
	if err != nil {
		return nil, cellarerr.BackendFailure("bolt", "GetMany", err)
	}
	return out, nil
}

func (s *BoltStore) Put(_ context.Context, blob []byte) (string, error) {
	fp := fingerprintOf(blob)
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlobs)
		if b.Get([]byte(fp)) != nil {
			return nil
		}
		return b.Put([]byte(fp), blob)
	})
	if err != nil {
		return "", cellarerr.BackendFailure("bolt", "Put", err)
	}
	return fp, nil
}

// PutMany writes every blob within a single transaction, batching the
// fsync bbolt performs at commit.
func (s *BoltStore) PutMany(_ context.Context, blobs [][]byte) ([]string, error) {
	fps := make([]string, len(blobs))
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlobs)
		for i, blob := range blobs {
			fp := fingerprintOf(blob)
			fps[i] = fp
			if b.Get([]byte(fp)) != nil {
				continue
			}
			if err := b.Put([]byte(fp), blob); err != nil {
				return fmt.Errorf("put %s: %w", fp, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, cellarerr.BackendFailure("bolt", "PutMany", err)
	}
	return fps, nil
}

func (s *BoltStore) Delete(_ context.Context, fingerprint string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlobs).Delete([]byte(fingerprint))
	})
	if err != nil {
		return cellarerr.BackendFailure("bolt", "Delete", err)
	}
	return nil
}
