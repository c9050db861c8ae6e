package refstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestBoltStore(t *testing.T) *BoltStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewBoltStore(filepath.Join(dir, "refs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBoltStoreConformance(t *testing.T) {
	exerciseStore(t, newTestBoltStore(t))
}

func TestBoltStoreSubscription(t *testing.T) {
	exerciseSubscription(t, newTestBoltStore(t))
}
