package blob

import (
	"context"
	"sync"
)

// Memory is the in-process BlobStore adapter: a concurrent mapping from
// fingerprint to blob. Reads are lock-free; writes are exclusive per
// key, via sync.Map.
type Memory struct {
	data sync.Map // fingerprint string -> []byte
}

// NewMemory returns an empty in-memory blob store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Has(_ context.Context, fingerprint string) (bool, error) {
	_, ok := m.data.Load(fingerprint)
	return ok, nil
}

func (m *Memory) Get(_ context.Context, fingerprint string) ([]byte, bool, error) {
	v, ok := m.data.Load(fingerprint)
	if !ok {
		return nil, false, nil
	}
	return v.([]byte), true, nil
}

func (m *Memory) GetMany(ctx context.Context, fingerprints []string) (map[string][]byte, error) {
	return ParallelGetMany(ctx, m, fingerprints)
}

func (m *Memory) Put(_ context.Context, blob []byte) (string, error) {
	fp := fingerprintOf(blob)
	// LoadOrStore makes the put idempotent without a second round trip:
	// a blob already present is never rewritten.
	m.data.LoadOrStore(fp, blob)
	return fp, nil
}

func (m *Memory) PutMany(ctx context.Context, blobs [][]byte) ([]string, error) {
	return ParallelPutMany(ctx, m, blobs)
}

func (m *Memory) Delete(_ context.Context, fingerprint string) error {
	m.data.Delete(fingerprint)
	return nil
}
