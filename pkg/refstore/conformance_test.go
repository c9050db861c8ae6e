package refstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the shared contract every Store adapter must
// satisfy: New/Update/Delete OCC semantics and Get visibility. Each
// adapter's _test.go calls this against its own fresh instance.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "widget", "prod")
	require.NoError(t, err)
	require.False(t, ok)

	created, err := s.New(ctx, "widget", "prod", "fp1")
	require.NoError(t, err)
	assert.True(t, created)

	fp, ok, err := s.Get(ctx, "widget", "prod")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fp1", fp)

	createdAgain, err := s.New(ctx, "widget", "prod", "fp2")
	require.NoError(t, err)
	assert.False(t, createdAgain, "New must not overwrite an existing cell")
	fp, _, _ = s.Get(ctx, "widget", "prod")
	assert.Equal(t, "fp1", fp)

	updated, err := s.Update(ctx, "widget", "prod", "wrong-expected", "fp3")
	require.NoError(t, err)
	assert.False(t, updated)

	updated, err = s.Update(ctx, "widget", "prod", "fp1", "fp2")
	require.NoError(t, err)
	assert.True(t, updated)
	fp, _, _ = s.Get(ctx, "widget", "prod")
	assert.Equal(t, "fp2", fp)

	deleted, err := s.Delete(ctx, "widget", "prod")
	require.NoError(t, err)
	assert.True(t, deleted)
	_, ok, _ = s.Get(ctx, "widget", "prod")
	assert.False(t, ok)

	deletedAgain, err := s.Delete(ctx, "widget", "prod")
	require.NoError(t, err)
	assert.False(t, deletedAgain)

	_, err = s.New(ctx, "", "prod", "fp")
	assert.Error(t, err, "empty name must be rejected")
	_, err = s.New(ctx, "has"+KeySep+"sep", "prod", "fp")
	assert.Error(t, err, "reserved separator in name must be rejected")
}

// exerciseSubscription verifies a Store delivers New/Update/Delete
// notifications with correct old/new fingerprints to a matching
// subscriber.
func exerciseSubscription(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	var mu sync.Mutex
	type event struct {
		old *string
		new string
	}
	var events []event
	id, err := s.Subscribe("gadget", "prod", func(name, namespace string, old *string, newFingerprint string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event{old: old, new: newFingerprint})
	})
	require.NoError(t, err)
	defer s.Unsubscribe(id)

	_, err = s.New(ctx, "gadget", "prod", "fp1")
	require.NoError(t, err)
	_, err = s.Update(ctx, "gadget", "prod", "fp1", "fp2")
	require.NoError(t, err)
	_, err = s.Delete(ctx, "gadget", "prod")
	require.NoError(t, err)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 3
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 3)
	assert.Nil(t, events[0].old)
	assert.Equal(t, "fp1", events[0].new)
	require.NotNil(t, events[1].old)
	assert.Equal(t, "fp1", *events[1].old)
	assert.Equal(t, "fp2", events[1].new)
	require.NotNil(t, events[2].old, "delete must report the removed fingerprint as old")
	assert.Equal(t, "fp2", *events[2].old)
	assert.Equal(t, "", events[2].new, "delete must report an empty newFingerprint")
}
