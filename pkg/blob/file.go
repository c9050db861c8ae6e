package blob

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/cuemby/cellar/pkg/cellarerr"
)

// FileStore is the file-backed BlobStore adapter of spec.md §4.1: a
// single JSON document on disk mapping fingerprint (hex) to blob,
// serving as both working set and persistence. Writes atomically
// replace the file under an advisory lock file, serializing concurrent
// writers on the same host.
type FileStore struct {
	path     string
	lockPath string
	retries  int
	retryGap time.Duration

	mu   sync.Mutex // serializes in-process writers before they ever touch the flock
	data map[string][]byte
}

// FileStoreOption configures a FileStore at construction.
type FileStoreOption func(*FileStore)

// WithFileRetries sets how many times a writer retries acquiring the
// advisory lock before giving up, and the gap between attempts.
func WithFileRetries(n int, gap time.Duration) FileStoreOption {
	return func(f *FileStore) {
		f.retries = n
		f.retryGap = gap
	}
}

// NewFileStore opens (or creates) the JSON document at path, loading its
// current contents into memory.
func NewFileStore(path string, opts ...FileStoreOption) (*FileStore, error) {
	f := &FileStore{
		path:     path,
		lockPath: path + ".lock",
		retries:  20,
		retryGap: 50 * time.Millisecond,
		data:     make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(f)
	}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

// fileDocument is the on-disk shape: fingerprint -> base64-encoded blob
// bytes. Blobs are themselves canonical JSON, but nesting raw JSON bytes
// as a json.RawMessage value would re-indent or re-escape them on
// rewrite; base64 keeps the on-disk bytes exactly as first computed.
type fileDocument map[string]string

func (f *FileStore) load() error {
	b, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return cellarerr.BackendFailure("file", "load", err)
	}
	if len(b) == 0 {
		return nil
	}
	var doc fileDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return cellarerr.Corruption("", "file-backed blob document is not valid JSON: %v", err)
	}
	data := make(map[string][]byte, len(doc))
	for fp, encoded := range doc {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return cellarerr.Corruption(fp, "stored blob is not valid base64: %v", err)
		}
		data[fp] = raw
	}
	f.data = data
	return nil
}

// persist writes the whole document atomically: encode to a temp file in
// the same directory, fsync, then rename over the target.
func (f *FileStore) persist() error {
	doc := make(fileDocument, len(f.data))
	for fp, raw := range f.data {
		doc[fp] = base64.StdEncoding.EncodeToString(raw)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return cellarerr.BackendFailure("file", "marshal", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".blob-*.tmp")
	if err != nil {
		return cellarerr.BackendFailure("file", "create temp", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return cellarerr.BackendFailure("file", "write temp", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return cellarerr.BackendFailure("file", "sync temp", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return cellarerr.BackendFailure("file", "close temp", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return cellarerr.BackendFailure("file", "rename", err)
	}
	return nil
}

// withLock runs fn while holding both the in-process mutex (so this
// process's own writers serialize without touching the OS lock for
// every call) and the advisory file lock (so writers on other processes
// sharing this path also serialize), retrying acquisition up to
// f.retries times.
func (f *FileStore) withLock(ctx context.Context, fn func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	lock := flock.New(f.lockPath)
	var locked bool
	var err error
	for attempt := 0; attempt <= f.retries; attempt++ {
		locked, err = lock.TryLock()
		if err != nil {
			return cellarerr.BackendFailure("file", "lock", err)
		}
		if locked {
			break
		}
		if attempt < f.retries {
			select {
			case <-ctx.Done():
				return cellarerr.BackendFailure("file", "lock", ctx.Err())
			case <-time.After(f.retryGap):
			}
		}
	}
	if !locked {
		return cellarerr.BackendFailure("file", "lock", fmt.Errorf("could not acquire %s after %d retries", f.lockPath, f.retries))
	}
	defer lock.Unlock()

	if err := f.load(); err != nil {
		return err
	}
	return fn()
}

func (f *FileStore) Has(_ context.Context, fingerprint string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[fingerprint]
	return ok, nil
}

func (f *FileStore) Get(_ context.Context, fingerprint string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.data[fingerprint]
	return b, ok, nil
}

func (f *FileStore) GetMany(ctx context.Context, fingerprints []string) (map[string][]byte, error) {
	return ParallelGetMany(ctx, f, fingerprints)
}

func (f *FileStore) Put(ctx context.Context, blob []byte) (string, error) {
	fp := fingerprintOf(blob)
	err := f.withLock(ctx, func() error {
		if _, exists := f.data[fp]; exists {
			return nil
		}
		f.data[fp] = blob
		return f.persist()
	})
	if err != nil {
		return "", err
	}
	return fp, nil
}

func (f *FileStore) PutMany(ctx context.Context, blobs [][]byte) ([]string, error) {
	fps := make([]string, len(blobs))
	err := f.withLock(ctx, func() error {
		changed := false
		for i, blob := range blobs {
			fp := fingerprintOf(blob)
			fps[i] = fp
			if _, exists := f.data[fp]; !exists {
				f.data[fp] = blob
				changed = true
			}
		}
		if !changed {
			return nil
		}
		return f.persist()
	})
	if err != nil {
		return nil, err
	}
	return fps, nil
}

func (f *FileStore) Delete(ctx context.Context, fingerprint string) error {
	return f.withLock(ctx, func() error {
		if _, exists := f.data[fingerprint]; !exists {
			return nil
		}
		delete(f.data, fingerprint)
		return f.persist()
	})
}
