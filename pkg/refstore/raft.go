package refstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/cellar/pkg/cellarerr"
)

// refCommand is the Raft log entry shape for RefStore mutations,
// grounded on the teacher's pkg/manager.Command{Op, Data} envelope.
// Unlike the teacher, cellar's command set is small and fixed, so the
// payload fields live directly on the command instead of behind a
// second json.RawMessage unmarshal.
type refCommand struct {
	Op          string `json:"op"` // "new", "update", "delete"
	Name        string `json:"name"`
	Namespace   string `json:"namespace"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Expected    string `json:"expected,omitempty"`
}

// refFSM applies committed refCommands to a local BoltStore, the same
// durable tier the single-node adapter uses, and publishes to a Broker
// on every node so local subscribers see committed changes regardless
// of which node accepted the write.
type refFSM struct {
	local  *BoltStore
	broker *Broker
}

type commandResult struct {
	changed bool
	err     error
}

func newRefFSM(local *BoltStore, broker *Broker) *refFSM {
	return &refFSM{local: local, broker: broker}
}

// Apply implements raft.FSM. It is invoked by Raft once a log entry is
// committed to a majority of the cluster, on every node including
// followers.
func (f *refFSM) Apply(l *raft.Log) interface{} {
	var cmd refCommand
	if err := json.Unmarshal(l.Data, &cmd); err != nil {
		return commandResult{err: fmt.Errorf("refstore: malformed raft command: %w", err)}
	}

	ctx := context.Background()
	switch cmd.Op {
	case "new":
		ok, err := f.local.New(ctx, cmd.Name, cmd.Namespace, cmd.Fingerprint)
		if err == nil && ok {
			f.broker.Publish(cmd.Name, cmd.Namespace, nil, cmd.Fingerprint)
		}
		return commandResult{changed: ok, err: err}
	case "update":
		ok, err := f.local.Update(ctx, cmd.Name, cmd.Namespace, cmd.Expected, cmd.Fingerprint)
		if err == nil && ok {
			old := cmd.Expected
			f.broker.Publish(cmd.Name, cmd.Namespace, &old, cmd.Fingerprint)
		}
		return commandResult{changed: ok, err: err}
	case "delete":
		old, existed, getErr := f.local.Get(ctx, cmd.Name, cmd.Namespace)
		if getErr != nil {
			return commandResult{err: getErr}
		}
		ok, err := f.local.Delete(ctx, cmd.Name, cmd.Namespace)
		if err == nil && ok && existed {
			f.broker.Publish(cmd.Name, cmd.Namespace, &old, "")
		}
		return commandResult{changed: ok, err: err}
	default:
		return commandResult{err: fmt.Errorf("refstore: unknown raft command %q", cmd.Op)}
	}
}

// Snapshot dumps every cell in the local BoltStore. Restore replays
// them into a fresh bucket. Raft calls Snapshot/Restore to compact the
// log and to catch up a node that fell behind or just joined.
func (f *refFSM) Snapshot() (raft.FSMSnapshot, error) {
	cells := make(map[string]string)
	err := f.local.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRefs).ForEach(func(k, v []byte) error {
			cells[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, cellarerr.BackendFailure("refstore-raft", "snapshot", err)
	}
	return &refSnapshot{cells: cells}, nil
}

func (f *refFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var cells map[string]string
	if err := json.NewDecoder(rc).Decode(&cells); err != nil {
		return cellarerr.Corruption("", "raft snapshot is not valid JSON: %v", err)
	}
	return f.local.restoreAll(cells)
}

type refSnapshot struct {
	cells map[string]string
}

func (s *refSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s.cells); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *refSnapshot) Release() {}

// RaftConfig configures a clustered RefStore node.
type RaftConfig struct {
	NodeID   string
	BindAddr string
	DataDir  string
	// JoinAddr, when set, causes NewRaftStore to skip single-node
	// bootstrap; the caller must separately call AddVoter on the
	// current leader with NodeID/BindAddr (spec.md's cluster tier has
	// no membership-change RPC of its own — that lives in the serving
	// layer the manager builds on top).
	JoinAddr string
}

// RaftStore is the clustered RefStore adapter of spec.md §4.2/§6's
// "Raft-replicated" row: New/Update/Delete are proposed as Raft log
// entries and only resolve once committed; Get reads the local BoltStore
// tier directly, since a committed read needs no consensus round trip.
// Grounded on the teacher's pkg/manager.Manager (Bootstrap/Join/AddVoter)
// and poc/raft (TCP transport, file snapshot store, raft-boltdb log and
// stable stores).
type RaftStore struct {
	raft   *raft.Raft
	fsm    *refFSM
	local  *BoltStore
	broker *Broker
}

// NewRaftStore starts (or rejoins) a Raft node backed by a local
// BoltStore tier at <DataDir>/refs.db.
func NewRaftStore(cfg RaftConfig) (*RaftStore, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, cellarerr.BackendFailure("refstore-raft", "mkdir data dir", err)
	}

	local, err := NewBoltStore(filepath.Join(cfg.DataDir, "refs.db"))
	if err != nil {
		return nil, err
	}

	broker := NewBroker()
	fsm := newRefFSM(local, broker)

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID)

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, cellarerr.BackendFailure("refstore-raft", "resolve bind address", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, cellarerr.BackendFailure("refstore-raft", "create transport", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, cellarerr.BackendFailure("refstore-raft", "create snapshot store", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, cellarerr.BackendFailure("refstore-raft", "create log store", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, cellarerr.BackendFailure("refstore-raft", "create stable store", err)
	}

	r, err := raft.NewRaft(raftCfg, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, cellarerr.BackendFailure("refstore-raft", "create raft", err)
	}

	if cfg.JoinAddr == "" {
		configuration := raft.Configuration{
			Servers: []raft.Server{
				{ID: raftCfg.LocalID, Address: transport.LocalAddr()},
			},
		}
		if err := r.BootstrapCluster(configuration).Error(); err != nil {
			return nil, cellarerr.BackendFailure("refstore-raft", "bootstrap cluster", err)
		}
	}

	return &RaftStore{raft: r, fsm: fsm, local: local, broker: broker}, nil
}

// AddVoter adds a new node to the cluster. Must be called on the
// current leader.
func (s *RaftStore) AddVoter(nodeID, address string) error {
	if s.raft.State() != raft.Leader {
		return cellarerr.Precondition("refstore: AddVoter called on non-leader")
	}
	future := s.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return cellarerr.BackendFailure("refstore-raft", "add voter", err)
	}
	return nil
}

// IsLeader reports whether this node currently holds Raft leadership.
func (s *RaftStore) IsLeader() bool {
	return s.raft.State() == raft.Leader
}

// Peers returns the number of voters in the current cluster
// configuration, for metrics collection.
func (s *RaftStore) Peers() int {
	future := s.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return 0
	}
	return len(future.Configuration().Servers)
}

// Close shuts down the Raft node and its local storage tier.
func (s *RaftStore) Close() error {
	if err := s.raft.Shutdown().Error(); err != nil {
		return cellarerr.BackendFailure("refstore-raft", "shutdown", err)
	}
	return s.local.Close()
}

func (s *RaftStore) apply(ctx context.Context, cmd refCommand) (bool, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return false, cellarerr.BackendFailure("refstore-raft", "marshal command", err)
	}
	timeout := 10 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d < timeout {
			timeout = d
		}
	}
	future := s.raft.Apply(data, timeout)
	if err := future.Error(); err != nil {
		return false, cellarerr.BackendFailure("refstore-raft", "apply", err)
	}
	res, ok := future.Response().(commandResult)
	if !ok {
		return false, cellarerr.BackendFailure("refstore-raft", "apply", fmt.Errorf("unexpected FSM response type %T", future.Response()))
	}
	return res.changed, res.err
}

func (s *RaftStore) Get(ctx context.Context, name, namespace string) (string, bool, error) {
	return s.local.Get(ctx, name, namespace)
}

func (s *RaftStore) New(ctx context.Context, name, namespace, fingerprint string) (bool, error) {
	if err := ValidateKey(name, namespace); err != nil {
		return false, err
	}
	return s.apply(ctx, refCommand{Op: "new", Name: name, Namespace: namespace, Fingerprint: fingerprint})
}

func (s *RaftStore) Update(ctx context.Context, name, namespace, expected, desired string) (bool, error) {
	if err := ValidateKey(name, namespace); err != nil {
		return false, err
	}
	return s.apply(ctx, refCommand{Op: "update", Name: name, Namespace: namespace, Expected: expected, Fingerprint: desired})
}

func (s *RaftStore) Delete(ctx context.Context, name, namespace string) (bool, error) {
	if err := ValidateKey(name, namespace); err != nil {
		return false, err
	}
	return s.apply(ctx, refCommand{Op: "delete", Name: name, Namespace: namespace})
}

func (s *RaftStore) Subscribe(name, namespace string, callback Callback) (uuid.UUID, error) {
	return s.broker.Subscribe(name, namespace, callback), nil
}

// SubscriptionCount returns the number of active subscriptions, for
// metrics collection.
func (s *RaftStore) SubscriptionCount() int {
	return s.broker.Count()
}

func (s *RaftStore) Unsubscribe(id uuid.UUID) bool {
	return s.broker.Unsubscribe(id)
}
