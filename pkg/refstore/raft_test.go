package refstore

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests exercise refFSM.Apply directly against raft.Log entries,
// the same unit the teacher's poc/raft tests a FSM with, without
// standing up a real multi-node cluster.
func newTestFSM(t *testing.T) *refFSM {
	t.Helper()
	dir := t.TempDir()
	local, err := NewBoltStore(filepath.Join(dir, "refs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })
	return newRefFSM(local, NewBroker())
}

func applyCmd(t *testing.T, fsm *refFSM, cmd refCommand) commandResult {
	t.Helper()
	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	res, ok := fsm.Apply(&raft.Log{Data: data}).(commandResult)
	require.True(t, ok)
	return res
}

func TestRefFSMAppliesNewUpdateDelete(t *testing.T) {
	fsm := newTestFSM(t)

	res := applyCmd(t, fsm, refCommand{Op: "new", Name: "widget", Namespace: "prod", Fingerprint: "fp1"})
	require.NoError(t, res.err)
	assert.True(t, res.changed)

	fp, ok, err := fsm.local.Get(context.Background(), "widget", "prod")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fp1", fp)

	res = applyCmd(t, fsm, refCommand{Op: "new", Name: "widget", Namespace: "prod", Fingerprint: "fp2"})
	require.NoError(t, res.err)
	assert.False(t, res.changed, "second new must not overwrite")

	res = applyCmd(t, fsm, refCommand{Op: "update", Name: "widget", Namespace: "prod", Expected: "wrong", Fingerprint: "fp2"})
	require.NoError(t, res.err)
	assert.False(t, res.changed)

	res = applyCmd(t, fsm, refCommand{Op: "update", Name: "widget", Namespace: "prod", Expected: "fp1", Fingerprint: "fp2"})
	require.NoError(t, res.err)
	assert.True(t, res.changed)

	res = applyCmd(t, fsm, refCommand{Op: "delete", Name: "widget", Namespace: "prod"})
	require.NoError(t, res.err)
	assert.True(t, res.changed)
}

func TestRefFSMRejectsUnknownOp(t *testing.T) {
	fsm := newTestFSM(t)
	res := applyCmd(t, fsm, refCommand{Op: "nonsense", Name: "widget"})
	assert.Error(t, res.err)
}

func TestRefFSMRejectsMalformedLogEntry(t *testing.T) {
	fsm := newTestFSM(t)
	res, ok := fsm.Apply(&raft.Log{Data: []byte("not json")}).(commandResult)
	require.True(t, ok)
	assert.Error(t, res.err)
}

// pipeSink adapts an io.PipeWriter to raft.SnapshotSink so a
// refSnapshot can be persisted without a real raft.FileSnapshotStore.
type pipeSink struct {
	*io.PipeWriter
}

func (pipeSink) ID() string    { return "test-snapshot" }
func (pipeSink) Cancel() error { return nil }

func TestRefFSMSnapshotRestoreRoundTrip(t *testing.T) {
	fsm := newTestFSM(t)
	applyCmd(t, fsm, refCommand{Op: "new", Name: "widget", Namespace: "prod", Fingerprint: "fp1"})
	applyCmd(t, fsm, refCommand{Op: "new", Name: "gadget", Namespace: "", Fingerprint: "fp2"})

	snap, err := fsm.Snapshot()
	require.NoError(t, err)

	dir := t.TempDir()
	fresh, err := NewBoltStore(filepath.Join(dir, "restored.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = fresh.Close() })
	restoredFSM := newRefFSM(fresh, NewBroker())

	pr, pw := io.Pipe()
	go func() {
		_ = snap.Persist(pipeSink{pw})
	}()
	require.NoError(t, restoredFSM.Restore(pr))

	fp, ok, err := fresh.Get(context.Background(), "widget", "prod")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fp1", fp)

	fp, ok, err = fresh.Get(context.Background(), "gadget", "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fp2", fp)
}
