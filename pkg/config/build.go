package config

import (
	"database/sql"
	"fmt"

	"github.com/cuemby/cellar/pkg/blob"
	"github.com/cuemby/cellar/pkg/refstore"
	"github.com/cuemby/cellar/pkg/session"
	"github.com/cuemby/cellar/pkg/valuestore"
)

// BuildBlobStore constructs the tiered blob.Multi described by
// c.BlobTiers, in order. A single tier is still wrapped in a Multi of
// one, so callers always get the same type.
func (c *Config) BuildBlobStore() (blob.Store, error) {
	tiers := make([]blob.Store, 0, len(c.BlobTiers))
	for i, t := range c.BlobTiers {
		s, err := buildBlobTier(t)
		if err != nil {
			return nil, fmt.Errorf("config: blobTiers[%d]: %w", i, err)
		}
		tiers = append(tiers, s)
	}
	return blob.NewMulti(tiers...), nil
}

func buildBlobTier(t BlobTierConfig) (blob.Store, error) {
	switch t.Kind {
	case "memory":
		return blob.NewMemory(), nil
	case "file":
		return blob.NewFileStore(t.Path)
	case "bolt":
		return blob.NewBoltStore(t.Path)
	case "postgres":
		db, err := sql.Open("postgres", t.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return blob.NewPostgresStore(db, blob.PostgresOptions{})
	default:
		return nil, fmt.Errorf("unknown kind %q", t.Kind)
	}
}

// BuildRefStore constructs the single refstore.Store backend selected
// by c.RefStore (and, for "raft", c.Raft).
func (c *Config) BuildRefStore() (refstore.Store, error) {
	switch c.RefStore.Kind {
	case "memory":
		return refstore.NewMemory(), nil
	case "file":
		return refstore.NewFileStore(c.RefStore.Path)
	case "bolt":
		return refstore.NewBoltStore(c.RefStore.Path)
	case "postgres":
		db, err := sql.Open("postgres", c.RefStore.DSN)
		if err != nil {
			return nil, fmt.Errorf("config: refStore: open postgres: %w", err)
		}
		return refstore.NewPostgresStore(db, refstore.PostgresOptions{DSN: c.RefStore.DSN})
	case "raft":
		return refstore.NewRaftStore(refstore.RaftConfig{
			NodeID:   c.Raft.NodeID,
			BindAddr: c.Raft.BindAddr,
			DataDir:  c.Raft.DataDir,
			JoinAddr: c.Raft.Join,
		})
	default:
		return nil, fmt.Errorf("config: refStore: unknown kind %q", c.RefStore.Kind)
	}
}

// BuildSession wires BuildBlobStore and BuildRefStore into a ready
// session.Session.
func (c *Config) BuildSession() (*session.Session, error) {
	blobs, err := c.BuildBlobStore()
	if err != nil {
		return nil, err
	}
	refs, err := c.BuildRefStore()
	if err != nil {
		return nil, err
	}
	values := valuestore.New(blobs)
	return session.New(values, refs), nil
}
