package blob

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorePutGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blobs.json")
	fs, err := NewFileStore(path)
	require.NoError(t, err)

	ctx := context.Background()
	fp, err := fs.Put(ctx, []byte(`{"a":1}`))
	require.NoError(t, err)

	b, ok, err := fs.Get(ctx, fp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(b))
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blobs.json")
	ctx := context.Background()

	fs1, err := NewFileStore(path)
	require.NoError(t, err)
	fp, err := fs1.Put(ctx, []byte(`"hello"`))
	require.NoError(t, err)

	fs2, err := NewFileStore(path)
	require.NoError(t, err)
	b, ok, err := fs2.Get(ctx, fp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `"hello"`, string(b))
}

func TestFileStorePutIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blobs.json")
	fs, err := NewFileStore(path)
	require.NoError(t, err)

	ctx := context.Background()
	fp1, err := fs.Put(ctx, []byte(`1`))
	require.NoError(t, err)
	fp2, err := fs.Put(ctx, []byte(`1`))
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
}

func TestFileStoreDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blobs.json")
	fs, err := NewFileStore(path)
	require.NoError(t, err)

	ctx := context.Background()
	fp, err := fs.Put(ctx, []byte(`1`))
	require.NoError(t, err)

	require.NoError(t, fs.Delete(ctx, fp))
	require.NoError(t, fs.Delete(ctx, fp))

	_, ok, err := fs.Get(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok)
}
