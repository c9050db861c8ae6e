package valuestore

import (
	"context"

	"github.com/cuemby/cellar/pkg/blob"
	"github.com/cuemby/cellar/pkg/canon"
	"github.com/cuemby/cellar/pkg/cellarerr"
	"github.com/cuemby/cellar/pkg/dynamic"
	"github.com/cuemby/cellar/pkg/normalize"
)

// Store is the ValueStore of spec.md §4.5: codec + normalizer composed
// over a single BlobStore. It holds no state beyond that reference, so
// it is safe for concurrent use from multiple goroutines.
type Store struct {
	blobs blob.Store
}

// New wraps blobs as a ValueStore.
func New(blobs blob.Store) *Store {
	return &Store{blobs: blobs}
}

// Put encodes v, normalizes it into fragments, writes every fragment
// plus a root descriptor to the BlobStore, and returns the descriptor's
// own fingerprint. A value that encodes to a single primitive still
// produces exactly one fragment and one descriptor blob.
func (s *Store) Put(ctx context.Context, v dynamic.Value) (string, error) {
	encoded, err := dynamic.Encode(v)
	if err != nil {
		return "", err
	}
	fragments, err := normalize.Normalize(encoded)
	if err != nil {
		return "", err
	}

	blobs := make([][]byte, len(fragments))
	fps := make([]string, len(fragments))
	for i, f := range fragments {
		b, err := canon.Marshal(f.Value)
		if err != nil {
			return "", err
		}
		blobs[i] = b
		fps[i] = f.Fingerprint
	}
	if _, err := s.blobs.PutMany(ctx, blobs); err != nil {
		return "", cellarerr.BackendFailure("blobstore", "PutMany", err)
	}

	descriptor, err := normalize.EncodeManifest(fps)
	if err != nil {
		return "", err
	}
	descBytes, err := canon.Marshal(descriptor)
	if err != nil {
		return "", err
	}
	rootFingerprint, err := s.blobs.Put(ctx, descBytes)
	if err != nil {
		return "", cellarerr.BackendFailure("blobstore", "Put", err)
	}
	return rootFingerprint, nil
}

// Get fetches the root descriptor at rootFingerprint, resolves its
// manifest, denormalizes, and decodes back into a dynamic.Value.
func (s *Store) Get(ctx context.Context, rootFingerprint string) (dynamic.Value, error) {
	descBytes, ok, err := s.blobs.Get(ctx, rootFingerprint)
	if err != nil {
		return nil, cellarerr.BackendFailure("blobstore", "Get", err)
	}
	if !ok {
		return nil, cellarerr.NotFound(rootFingerprint, "")
	}
	descriptor, err := canon.Decode(descBytes)
	if err != nil {
		return nil, cellarerr.Corruption(rootFingerprint, "root descriptor is not valid canonical Json: %v", err)
	}

	fragments, err := normalize.DecodeManifest(ctx, descriptor, s.blobs)
	if err != nil {
		return nil, err
	}
	plain, err := normalize.Denormalize(fragments)
	if err != nil {
		return nil, err
	}
	return dynamic.Decode(plain)
}

// Delete removes only the top-level descriptor blob at F. Referenced
// fragments are left untouched — there is no cascading delete.
func (s *Store) Delete(ctx context.Context, rootFingerprint string) error {
	if err := s.blobs.Delete(ctx, rootFingerprint); err != nil {
		return cellarerr.BackendFailure("blobstore", "Delete", err)
	}
	return nil
}
