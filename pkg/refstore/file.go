package refstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/cuemby/cellar/pkg/cellarerr"
)

// FileStore is the file-backed RefStore adapter: a JSON document of
// cells on disk, guarded by the same gofrs/flock advisory lock strategy
// as blob.FileStore (read-modify-write under the lock, per spec.md
// §4.2's "local file" row).
type FileStore struct {
	path     string
	lockPath string
	retries  int
	retryGap time.Duration

	mu     sync.Mutex
	cells  map[string]string // CompositeKey -> fingerprint
	broker *Broker
}

// NewFileStore opens (or creates) the JSON document at path.
func NewFileStore(path string) (*FileStore, error) {
	f := &FileStore{
		path:     path,
		lockPath: path + ".lock",
		retries:  20,
		retryGap: 50 * time.Millisecond,
		cells:    make(map[string]string),
		broker:   NewBroker(),
	}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FileStore) load() error {
	b, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return cellarerr.BackendFailure("refstore-file", "load", err)
	}
	if len(b) == 0 {
		return nil
	}
	var cells map[string]string
	if err := json.Unmarshal(b, &cells); err != nil {
		return cellarerr.Corruption("", "reference document is not valid JSON: %v", err)
	}
	f.cells = cells
	return nil
}

func (f *FileStore) persist() error {
	b, err := json.Marshal(f.cells)
	if err != nil {
		return cellarerr.BackendFailure("refstore-file", "marshal", err)
	}
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".refs-*.tmp")
	if err != nil {
		return cellarerr.BackendFailure("refstore-file", "create temp", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return cellarerr.BackendFailure("refstore-file", "write temp", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return cellarerr.BackendFailure("refstore-file", "sync temp", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return cellarerr.BackendFailure("refstore-file", "close temp", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return cellarerr.BackendFailure("refstore-file", "rename", err)
	}
	return nil
}

func (f *FileStore) withLock(ctx context.Context, fn func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	lock := flock.New(f.lockPath)
	var locked bool
	var err error
	for attempt := 0; attempt <= f.retries; attempt++ {
		locked, err = lock.TryLock()
		if err != nil {
			return cellarerr.BackendFailure("refstore-file", "lock", err)
		}
		if locked {
			break
		}
		if attempt < f.retries {
			select {
			case <-ctx.Done():
				return cellarerr.BackendFailure("refstore-file", "lock", ctx.Err())
			case <-time.After(f.retryGap):
			}
		}
	}
	if !locked {
		return cellarerr.BackendFailure("refstore-file", "lock", fmt.Errorf("could not acquire %s after %d retries", f.lockPath, f.retries))
	}
	defer lock.Unlock()

	if err := f.load(); err != nil {
		return err
	}
	return fn()
}

func (f *FileStore) Get(_ context.Context, name, namespace string) (string, bool, error) {
	if err := ValidateKey(name, namespace); err != nil {
		return "", false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fp, ok := f.cells[CompositeKey(name, namespace)]
	return fp, ok, nil
}

func (f *FileStore) New(ctx context.Context, name, namespace, fingerprint string) (bool, error) {
	if err := ValidateKey(name, namespace); err != nil {
		return false, err
	}
	key := CompositeKey(name, namespace)
	created := false
	err := f.withLock(ctx, func() error {
		if _, exists := f.cells[key]; exists {
			return nil
		}
		f.cells[key] = fingerprint
		created = true
		return f.persist()
	})
	if err != nil {
		return false, err
	}
	if created {
		f.broker.Publish(name, namespace, nil, fingerprint)
	}
	return created, nil
}

func (f *FileStore) Update(ctx context.Context, name, namespace, expected, desired string) (bool, error) {
	if err := ValidateKey(name, namespace); err != nil {
		return false, err
	}
	key := CompositeKey(name, namespace)
	updated := false
	err := f.withLock(ctx, func() error {
		current, exists := f.cells[key]
		if !exists || current != expected {
			return nil
		}
		f.cells[key] = desired
		updated = true
		return f.persist()
	})
	if err != nil {
		return false, err
	}
	if updated {
		old := expected
		f.broker.Publish(name, namespace, &old, desired)
	}
	return updated, nil
}

func (f *FileStore) Delete(ctx context.Context, name, namespace string) (bool, error) {
	if err := ValidateKey(name, namespace); err != nil {
		return false, err
	}
	key := CompositeKey(name, namespace)
	deleted := false
	var old string
	err := f.withLock(ctx, func() error {
		current, exists := f.cells[key]
		if !exists {
			return nil
		}
		old = current
		delete(f.cells, key)
		deleted = true
		return f.persist()
	})
	if err != nil {
		return false, err
	}
	if deleted {
		f.broker.Publish(name, namespace, &old, "")
	}
	return deleted, nil
}

func (f *FileStore) Subscribe(name, namespace string, callback Callback) (uuid.UUID, error) {
	return f.broker.Subscribe(name, namespace, callback), nil
}

// SubscriptionCount returns the number of active subscriptions, for
// metrics collection.
func (f *FileStore) SubscriptionCount() int {
	return f.broker.Count()
}

func (f *FileStore) Unsubscribe(id uuid.UUID) bool {
	return f.broker.Unsubscribe(id)
}
