// Package refstore implements cellar's RefStore: transactional
// (name, namespace) -> fingerprint cells with optimistic concurrency
// control and change subscriptions.
package refstore

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/cuemby/cellar/pkg/cellarerr"
)

// KeySep is the reserved separator used to compose the local-persistent
// key layout "<VAR_PREFIX><SEP><name><SEP><namespace-or-empty>"
// (spec.md §6). Names and namespaces containing it are rejected.
const KeySep = "\x1f"

// VarPrefix prefixes every composite key, so a RefStore's keyspace never
// collides with unrelated keys an embedding KV store might hold.
const VarPrefix = "cellar-ref"

// Wildcard matches any name or any namespace in Subscribe.
const Wildcard = "*"

// Callback is the subscription notification signature of spec.md §4.2:
// the (name, namespace) that changed, the fingerprint observed before
// the change (nil if the cell was absent), and the fingerprint after.
type Callback func(name, namespace string, old *string, newFingerprint string)

// Store is the RefStore contract of spec.md §4.2. Get returning absent
// is not an error; New/Update/Delete report OCC outcomes as a bool
// return, never as an error — OCCConflict is something the Ref/Session
// facade layers on top, not the store itself.
type Store interface {
	// Get returns the fingerprint currently bound to (name, namespace),
	// or ("", false, nil) if absent.
	Get(ctx context.Context, name, namespace string) (fingerprint string, ok bool, err error)

	// New creates (name, namespace) -> fingerprint. Returns true if
	// created, false if the cell already existed (not an error).
	New(ctx context.Context, name, namespace, fingerprint string) (bool, error)

	// Update atomically sets (name, namespace) to desired iff its
	// current fingerprint equals expected. Returns true iff the CAS
	// succeeded.
	Update(ctx context.Context, name, namespace, expected, desired string) (bool, error)

	// Delete removes (name, namespace). Returns true iff it existed.
	Delete(ctx context.Context, name, namespace string) (bool, error)

	// Subscribe registers callback for every successful New/Update/Delete
	// on cells matching name and namespace (each may be Wildcard). A
	// Delete callback carries the fingerprint that was removed as old
	// and an empty string as newFingerprint.
	Subscribe(name, namespace string, callback Callback) (uuid.UUID, error)

	// Unsubscribe removes a subscription. Returns true iff it existed.
	Unsubscribe(id uuid.UUID) bool
}

// ValidateKey enforces spec.md §3's reference-cell precondition: name
// must be non-empty, and neither name nor namespace may contain the
// reserved separator substring.
func ValidateKey(name, namespace string) error {
	if name == "" {
		return cellarerr.Precondition("refstore: name must not be empty")
	}
	if strings.Contains(name, KeySep) {
		return cellarerr.Precondition("refstore: name must not contain the reserved separator")
	}
	if strings.Contains(namespace, KeySep) {
		return cellarerr.Precondition("refstore: namespace must not contain the reserved separator")
	}
	return nil
}

// CompositeKey builds the local-persistent key layout of spec.md §6.
func CompositeKey(name, namespace string) string {
	return VarPrefix + KeySep + name + KeySep + namespace
}
