package valuestore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/cellar/pkg/blob"
	"github.com/cuemby/cellar/pkg/canon"
	"github.com/cuemby/cellar/pkg/cellarerr"
	"github.com/cuemby/cellar/pkg/dynamic"
	"github.com/cuemby/cellar/pkg/normalize"
)

func TestPutGetRoundTripSimpleSequence(t *testing.T) {
	ctx := context.Background()
	s := New(blob.NewMemory())

	v := dynamic.List{
		dynamic.List{json.Number("2"), json.Number("22")},
		dynamic.List{json.Number("1"), json.Number("11")},
		dynamic.List{"a", "aa"},
	}

	fp, err := s.Put(ctx, v)
	require.NoError(t, err)

	got, err := s.Get(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestPutGetRoundTripRichTypes(t *testing.T) {
	ctx := context.Background()
	s := New(blob.NewMemory())

	when, err := time.Parse(time.RFC3339, "2024-01-02T03:04:05Z")
	require.NoError(t, err)

	v := dynamic.List{
		dynamic.Date(when),
		dynamic.MapOrdered{
			{Key: "a", Value: dynamic.SetImmutable{json.Number("1"), dynamic.Object{"innerinner": "inin"}}},
			{Key: "b", Value: dynamic.MapImmutable{{Key: "c", Value: "CC"}}},
		},
	}

	fp, err := s.Put(ctx, v)
	require.NoError(t, err)

	got, err := s.Get(ctx, fp)
	require.NoError(t, err)

	gotList, ok := got.(dynamic.List)
	require.True(t, ok)
	require.Len(t, gotList, 2)

	gotDate, ok := gotList[0].(dynamic.Date)
	require.True(t, ok)
	assert.True(t, time.Time(gotDate).Equal(when))

	gotMap, ok := gotList[1].(dynamic.MapOrdered)
	require.True(t, ok)
	require.Len(t, gotMap, 2)
	assert.Equal(t, "a", gotMap[0].Key)
	assert.Equal(t, "b", gotMap[1].Key)
}

func TestPutStructuralSharingDedupesFragments(t *testing.T) {
	ctx := context.Background()
	mem := blob.NewMemory()
	s := New(mem)

	v := dynamic.Object{"x": "shared", "y": "shared"}
	rootFP, err := s.Put(ctx, v)
	require.NoError(t, err)

	descBytes, ok, err := mem.Get(ctx, rootFP)
	require.NoError(t, err)
	require.True(t, ok)
	descriptor, err := canon.Decode(descBytes)
	require.NoError(t, err)
	fragments, err := normalize.DecodeManifest(ctx, descriptor, mem)
	require.NoError(t, err)
	// One fragment for "shared" (stored once) plus the object itself.
	assert.Len(t, fragments, 2)
}

func TestDeleteDoesNotCascade(t *testing.T) {
	ctx := context.Background()
	mem := blob.NewMemory()
	s := New(mem)

	v := dynamic.List{"leaf-one", "leaf-two"}
	rootFP, err := s.Put(ctx, v)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, rootFP))

	_, err = s.Get(ctx, rootFP)
	assert.ErrorIs(t, err, cellarerr.ErrNotFound)

	leafFP, _, err := canon.Fingerprint("leaf-one")
	require.NoError(t, err)
	stillThere, err := mem.Has(ctx, leafFP)
	require.NoError(t, err)
	assert.True(t, stillThere)
}

func TestGetMissingFingerprintIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := New(blob.NewMemory())
	_, err := s.Get(ctx, "0000000000000000000000000000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, cellarerr.ErrNotFound)
}

func TestPutSinglePrimitiveYieldsOneFragment(t *testing.T) {
	ctx := context.Background()
	mem := blob.NewMemory()
	s := New(mem)

	fp, err := s.Put(ctx, json.Number("42"))
	require.NoError(t, err)

	descBytes, ok, err := mem.Get(ctx, fp)
	require.NoError(t, err)
	require.True(t, ok)
	descriptor, err := canon.Decode(descBytes)
	require.NoError(t, err)
	fragments, err := normalize.DecodeManifest(ctx, descriptor, mem)
	require.NoError(t, err)
	assert.Len(t, fragments, 1)

	got, err := s.Get(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, json.Number("42"), got)
}
