package session

import (
	"context"

	"github.com/cuemby/cellar/pkg/cellarerr"
	"github.com/cuemby/cellar/pkg/dynamic"
	"github.com/cuemby/cellar/pkg/refstore"
	"github.com/cuemby/cellar/pkg/valuestore"
)

// Session binds one ValueStore and one RefStore (spec.md §4.6); every
// Ref it hands out shares them.
type Session struct {
	values *valuestore.Store
	refs   refstore.Store
}

// New binds values and refs into a Session.
func New(values *valuestore.Store, refs refstore.Store) *Session {
	return &Session{values: values, refs: refs}
}

// RefOptions configures a Ref at construction.
type RefOptions struct {
	// AutoPull, when true, keeps the Ref's cached value current via a
	// background RefStore subscription instead of requiring explicit
	// Pull calls.
	AutoPull bool
}

// NewRef creates (name, namespace) with initialValue and returns a Ref
// bound to it. It fails if the cell already exists — use GetOrNewRef
// for a create-or-attach call.
func (s *Session) NewRef(ctx context.Context, name, namespace string, initialValue dynamic.Value, opts RefOptions) (*Ref, error) {
	fp, err := s.values.Put(ctx, initialValue)
	if err != nil {
		return nil, err
	}
	created, err := s.refs.New(ctx, name, namespace, fp)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, cellarerr.Precondition("session: NewRef(%s, %s): cell already exists", name, namespace)
	}
	return newRef(s, name, namespace, fp, initialValue, opts.AutoPull)
}

// GetRef attaches a Ref to an existing (name, namespace) cell, fetching
// its current value. Returns cellarerr.ErrNotFound if absent.
func (s *Session) GetRef(ctx context.Context, name, namespace string, opts RefOptions) (*Ref, error) {
	fp, ok, err := s.refs.Get(ctx, name, namespace)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, cellarerr.NotFound(name, namespace)
	}
	v, err := s.values.Get(ctx, fp)
	if err != nil {
		return nil, err
	}
	return newRef(s, name, namespace, fp, v, opts.AutoPull)
}

// GetOrNewRef attaches to (name, namespace) if it exists, or creates it
// with defaultValue if not. Not atomic against concurrent creators: if
// two callers race, one wins New and the other's New call returns
// false, transparently falling back to Get.
func (s *Session) GetOrNewRef(ctx context.Context, name, namespace string, defaultValue dynamic.Value, opts RefOptions) (*Ref, error) {
	fp, err := s.values.Put(ctx, defaultValue)
	if err != nil {
		return nil, err
	}
	created, err := s.refs.New(ctx, name, namespace, fp)
	if err != nil {
		return nil, err
	}
	if created {
		return newRef(s, name, namespace, fp, defaultValue, opts.AutoPull)
	}
	return s.GetRef(ctx, name, namespace, opts)
}

// DeleteRef removes the (name, namespace) cell. It does not close any
// live Ref attached to it — callers holding one should Close it
// themselves once they observe the cell is gone.
func (s *Session) DeleteRef(ctx context.Context, name, namespace string) (bool, error) {
	return s.refs.Delete(ctx, name, namespace)
}
