package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPutIsIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	fp1, err := m.Put(ctx, []byte(`{"a":1}`))
	require.NoError(t, err)
	fp2, err := m.Put(ctx, []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)

	b, ok, err := m.Get(ctx, fp1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(b))
}

func TestMemoryGetAbsentIsNotError(t *testing.T) {
	m := NewMemory()
	_, ok, err := m.Get(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryDeleteIsIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	fp, err := m.Put(ctx, []byte(`1`))
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, fp))
	require.NoError(t, m.Delete(ctx, fp)) // deleting again is still success

	ok, err := m.Has(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryGetMany(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	fp1, _ := m.Put(ctx, []byte(`1`))
	fp2, _ := m.Put(ctx, []byte(`2`))

	got, err := m.GetMany(ctx, []string{fp1, fp2, "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, []byte(`1`), got[fp1])
	assert.Equal(t, []byte(`2`), got[fp2])
}

func TestMemoryPutMany(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	fps, err := m.PutMany(ctx, [][]byte{[]byte(`1`), []byte(`2`)})
	require.NoError(t, err)
	require.Len(t, fps, 2)

	ok, err := m.Has(ctx, fps[0])
	require.NoError(t, err)
	assert.True(t, ok)
}
