// Package blob implements cellar's BlobStore: the immutable,
// content-addressed layer that puts/gets flat JSON blobs keyed by their
// own fingerprint.
package blob

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/cuemby/cellar/pkg/canon"
)

// Store is the BlobStore contract of spec.md §4.1. Every method is safe
// for concurrent use. Put and PutMany are idempotent: storing the same
// canonical bytes twice returns the same fingerprint without rewriting.
type Store interface {
	// Has reports whether a blob with fingerprint F is present.
	Has(ctx context.Context, fingerprint string) (bool, error)

	// Get returns the blob's canonical bytes and true, or (nil, false)
	// if absent. Absence is not an error.
	Get(ctx context.Context, fingerprint string) ([]byte, bool, error)

	// GetMany returns every present blob among fingerprints, keyed by
	// fingerprint; absent fingerprints are simply missing from the
	// result map, not an error.
	GetMany(ctx context.Context, fingerprints []string) (map[string][]byte, error)

	// Put stores blob (already canonical bytes) and returns its
	// fingerprint.
	Put(ctx context.Context, blob []byte) (string, error)

	// PutMany stores every blob and returns their fingerprints in the
	// same order.
	PutMany(ctx context.Context, blobs [][]byte) ([]string, error)

	// Delete removes the blob at fingerprint. It succeeds whether or
	// not the blob existed; the postcondition is always absence.
	Delete(ctx context.Context, fingerprint string) error
}

// ParallelGetMany is the default GetMany implementation spec.md §4.1
// describes: run Get concurrently per fingerprint. Adapters with native
// batch support (bbolt, Postgres) override it; Memory and FileStore use
// this directly since their single Get is already cheap and lock-free
// or already holds the whole document in memory.
func ParallelGetMany(ctx context.Context, s Store, fingerprints []string) (map[string][]byte, error) {
	results := make([][]byte, len(fingerprints))
	present := make([]bool, len(fingerprints))

	g, gctx := errgroup.WithContext(ctx)
	for i, fp := range fingerprints {
		i, fp := i, fp
		g.Go(func() error {
			b, ok, err := s.Get(gctx, fp)
			if err != nil {
				return err
			}
			results[i] = b
			present[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]byte, len(fingerprints))
	for i, fp := range fingerprints {
		if present[i] {
			out[fp] = results[i]
		}
	}
	return out, nil
}

// ParallelPutMany is the default PutMany implementation: run Put
// concurrently per blob, preserving input order in the returned slice.
func ParallelPutMany(ctx context.Context, s Store, blobs [][]byte) ([]string, error) {
	fps := make([]string, len(blobs))
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range blobs {
		i, b := i, b
		g.Go(func() error {
			fp, err := s.Put(gctx, b)
			if err != nil {
				return err
			}
			fps[i] = fp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return fps, nil
}

// fingerprintOf hashes already-canonical blob bytes, the fingerprint
// every adapter uses as its storage key.
func fingerprintOf(blob []byte) string {
	return canon.FingerprintBytes(blob)
}
