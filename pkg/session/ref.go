package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/cuemby/cellar/pkg/cellarerr"
	"github.com/cuemby/cellar/pkg/dynamic"
)

// Ref is the mutable-looking handle of spec.md §4.6: a cached
// (fingerprint, decoded value) pair over one (name, namespace) cell,
// bound to the Session's ValueStore and RefStore. A Ref is not
// thread-safe by itself — sharing one across goroutines requires
// external synchronization (spec.md §5).
//
// State machine: a freshly constructed Ref is Bound(F) at its initial
// fingerprint; Set/Update/Pull move it to Bound(F'); Close moves it to
// Closed. An OCC failure from Set/Update never changes state — the Ref
// stays at its last-known-good fingerprint and the caller may Pull and
// retry.
type Ref struct {
	session   *Session
	name      string
	namespace string

	mu          sync.Mutex
	fingerprint string
	value       dynamic.Value
	closed      bool

	autoPull bool
	subID    uuid.UUID
	hasSub   bool
}

func newRef(s *Session, name, namespace, fingerprint string, value dynamic.Value, autoPull bool) (*Ref, error) {
	r := &Ref{
		session:     s,
		name:        name,
		namespace:   namespace,
		fingerprint: fingerprint,
		value:       value,
		autoPull:    autoPull,
	}
	if autoPull {
		if err := r.subscribe(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// subscribe registers a RefStore callback that keeps the cached value
// fresh in the background. It is registered only for autoPull Refs. The
// callback never calls back into the RefStore: on a new fingerprint it
// eagerly fetches the value from the ValueStore and swaps it into the
// cache, so Read never blocks on I/O. A failed fetch leaves the cache
// unchanged.
func (r *Ref) subscribe() error {
	id, err := r.session.refs.Subscribe(r.name, r.namespace, func(name, namespace string, old *string, newFingerprint string) {
		r.mu.Lock()
		if r.closed || newFingerprint == r.fingerprint {
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()

		v, err := r.session.values.Get(context.Background(), newFingerprint)
		if err != nil {
			return
		}
		r.mu.Lock()
		if !r.closed {
			r.fingerprint = newFingerprint
			r.value = v
		}
		r.mu.Unlock()
	})
	if err != nil {
		return err
	}
	r.subID = id
	r.hasSub = true
	return nil
}

// Read returns the cached value. With autoPull enabled the background
// subscription keeps it current; otherwise it reflects the last Set,
// Update, or Pull.
func (r *Ref) Read() dynamic.Value {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value
}

// Fingerprint returns the cached fingerprint.
func (r *Ref) Fingerprint() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fingerprint
}

// Pull re-reads the RefStore and, if the fingerprint changed, fetches
// and caches the new value.
func (r *Ref) Pull(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return cellarerr.Precondition("session: Pull called on a closed Ref")
	}
	current := r.fingerprint
	r.mu.Unlock()

	fp, ok, err := r.session.refs.Get(ctx, r.name, r.namespace)
	if err != nil {
		return err
	}
	if !ok {
		return cellarerr.NotFound(r.name, r.namespace)
	}
	if fp == current {
		return nil
	}

	v, err := r.session.values.Get(ctx, fp)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return cellarerr.Precondition("session: Pull called on a closed Ref")
	}
	r.fingerprint = fp
	r.value = v
	return nil
}

// Set puts newValue via the ValueStore and attempts a CAS against the
// Ref's cached fingerprint. On success it advances the local
// fingerprint/value and returns nil. On an OCC conflict it returns
// cellarerr.ErrOCCConflict without moving the Ref's state — the caller
// should Pull and retry.
func (r *Ref) Set(ctx context.Context, newValue dynamic.Value) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return cellarerr.Precondition("session: Set called on a closed Ref")
	}
	expected := r.fingerprint
	r.mu.Unlock()

	newFingerprint, err := r.session.values.Put(ctx, newValue)
	if err != nil {
		return err
	}

	ok, err := r.session.refs.Update(ctx, r.name, r.namespace, expected, newFingerprint)
	if err != nil {
		return err
	}
	if !ok {
		return cellarerr.Wrap(cellarerr.ErrOCCConflict, "session: Set(%s, %s): expected fingerprint %s is stale", r.name, r.namespace, expected)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.fingerprint = newFingerprint
		r.value = newValue
	}
	return nil
}

// Update is functionally Set(fn(Read())) — same OCC semantics as Set.
func (r *Ref) Update(ctx context.Context, fn func(dynamic.Value) dynamic.Value) error {
	current := r.Read()
	return r.Set(ctx, fn(current))
}

// Close unsubscribes (if autoPull was enabled) and releases resources.
// It is safe to call more than once.
func (r *Ref) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	if r.hasSub {
		r.session.refs.Unsubscribe(r.subID)
		r.hasSub = false
	}
}
