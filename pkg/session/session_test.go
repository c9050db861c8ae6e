package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/cellar/pkg/blob"
	"github.com/cuemby/cellar/pkg/cellarerr"
	"github.com/cuemby/cellar/pkg/dynamic"
	"github.com/cuemby/cellar/pkg/refstore"
	"github.com/cuemby/cellar/pkg/valuestore"
)

func newTestSession() *Session {
	return New(valuestore.New(blob.NewMemory()), refstore.NewMemory())
}

func waitForCondition(t *testing.T, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.Fail(t, "condition never became true")
}

func TestReferenceLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestSession()

	ref, err := s.NewRef(ctx, "cfg", "app", dynamic.Object{"version": json.Number("1")}, RefOptions{})
	require.NoError(t, err)
	defer ref.Close()

	f1 := ref.Fingerprint()
	require.NotEmpty(t, f1)

	p1 := ref
	p2, err := s.GetRef(ctx, "cfg", "app", RefOptions{})
	require.NoError(t, err)
	defer p2.Close()

	require.NoError(t, p1.Set(ctx, dynamic.Object{"version": json.Number("2")}))

	err = p2.Set(ctx, dynamic.Object{"version": json.Number("3")})
	assert.ErrorIs(t, err, cellarerr.ErrOCCConflict)

	require.NoError(t, p2.Pull(ctx))
	got := p2.Read().(dynamic.Object)
	assert.Equal(t, json.Number("2"), got["version"])
}

func TestSubscriptionDeliversOldAndNew(t *testing.T) {
	ctx := context.Background()
	s := newTestSession()

	ref, err := s.NewRef(ctx, "cfg", "app", dynamic.Object{"version": json.Number("1")}, RefOptions{})
	require.NoError(t, err)
	defer ref.Close()
	f1 := ref.Fingerprint()

	var mu sync.Mutex
	var gotOld *string
	var gotNew string
	id, err := s.refs.Subscribe("cfg", "app", func(name, namespace string, old *string, newFingerprint string) {
		mu.Lock()
		defer mu.Unlock()
		gotOld = old
		gotNew = newFingerprint
	})
	require.NoError(t, err)
	defer s.refs.Unsubscribe(id)

	require.NoError(t, ref.Set(ctx, dynamic.Object{"version": json.Number("2")}))

	waitForCondition(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotNew != ""
	})

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, gotOld)
	assert.Equal(t, f1, *gotOld)
	assert.Equal(t, ref.Fingerprint(), gotNew)
}

func TestDeleteSemanticsDoNotCascade(t *testing.T) {
	ctx := context.Background()
	s := newTestSession()

	ref, err := s.NewRef(ctx, "cfg", "app", dynamic.Object{"version": json.Number("1")}, RefOptions{})
	require.NoError(t, err)
	f2, err := s.values.Put(ctx, dynamic.Object{"version": json.Number("2")})
	require.NoError(t, err)
	ref.Close()

	deleted, err := s.DeleteRef(ctx, "cfg", "app")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, ok, err := s.refs.Get(ctx, "cfg", "app")
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := s.values.Get(ctx, f2)
	require.NoError(t, err)
	assert.Equal(t, dynamic.Object{"version": json.Number("2")}, v)
}

func TestGetOrNewRefFallsBackOnRace(t *testing.T) {
	ctx := context.Background()
	s := newTestSession()

	first, err := s.NewRef(ctx, "widget", "", dynamic.Object{"n": json.Number("1")}, RefOptions{})
	require.NoError(t, err)
	defer first.Close()

	second, err := s.GetOrNewRef(ctx, "widget", "", dynamic.Object{"n": json.Number("99")}, RefOptions{})
	require.NoError(t, err)
	defer second.Close()

	assert.Equal(t, first.Fingerprint(), second.Fingerprint())
	assert.Equal(t, dynamic.Object{"n": json.Number("1")}, second.Read())
}

func TestNewRefRejectsExistingCell(t *testing.T) {
	ctx := context.Background()
	s := newTestSession()

	ref, err := s.NewRef(ctx, "widget", "", dynamic.Object{"n": json.Number("1")}, RefOptions{})
	require.NoError(t, err)
	defer ref.Close()

	_, err = s.NewRef(ctx, "widget", "", dynamic.Object{"n": json.Number("2")}, RefOptions{})
	assert.ErrorIs(t, err, cellarerr.ErrPrecondition)
}

func TestGetRefMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestSession()

	_, err := s.GetRef(ctx, "nonexistent", "", RefOptions{})
	assert.ErrorIs(t, err, cellarerr.ErrNotFound)
}

func TestAutoPullKeepsRefFresh(t *testing.T) {
	ctx := context.Background()
	s := newTestSession()

	writer, err := s.NewRef(ctx, "watched", "", dynamic.Object{"n": json.Number("1")}, RefOptions{})
	require.NoError(t, err)
	defer writer.Close()

	reader, err := s.GetRef(ctx, "watched", "", RefOptions{AutoPull: true})
	require.NoError(t, err)
	defer reader.Close()

	require.NoError(t, writer.Set(ctx, dynamic.Object{"n": json.Number("2")}))

	waitForCondition(t, func() bool {
		v, ok := reader.Read().(dynamic.Object)
		return ok && v["n"] == json.Number("2")
	})
}

func TestUpdateAppliesFunction(t *testing.T) {
	ctx := context.Background()
	s := newTestSession()

	ref, err := s.NewRef(ctx, "counter", "", dynamic.Object{"n": json.Number("1")}, RefOptions{})
	require.NoError(t, err)
	defer ref.Close()

	err = ref.Update(ctx, func(v dynamic.Value) dynamic.Value {
		obj := v.(dynamic.Object)
		n, _ := obj["n"].(json.Number).Int64()
		return dynamic.Object{"n": json.Number(fmt.Sprintf("%d", n+1))}
	})
	require.NoError(t, err)
	got := ref.Read().(dynamic.Object)
	assert.Equal(t, json.Number("2"), got["n"])
}

func TestCloseUnsubscribes(t *testing.T) {
	ctx := context.Background()
	s := newTestSession()

	writer, err := s.NewRef(ctx, "watched", "", dynamic.Object{"n": json.Number("1")}, RefOptions{})
	require.NoError(t, err)
	defer writer.Close()

	reader, err := s.GetRef(ctx, "watched", "", RefOptions{AutoPull: true})
	require.NoError(t, err)
	reader.Close()

	require.NoError(t, writer.Set(ctx, dynamic.Object{"n": json.Number("2")}))
	time.Sleep(20 * time.Millisecond)

	got := reader.Read().(dynamic.Object)
	assert.Equal(t, json.Number("1"), got["n"], "closed Ref must not keep receiving updates")
}
