package blob

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/cuemby/cellar/pkg/cellarerr"
)

// Multi is the MultiBlobStore composite of spec.md §4.1: an ordered list
// of tiers. Reads probe tiers in order and return on first hit; writes
// fan out to every tier in parallel and fail loudly if any tier
// disagrees on the resulting fingerprint, since that would mean two
// tiers hold different bytes under the same key. Typical deployment is
// [memory cache, local durable store, remote store].
type Multi struct {
	tiers []Store
}

// NewMulti builds a tiered composite. tiers[0] is probed first on reads.
func NewMulti(tiers ...Store) *Multi {
	return &Multi{tiers: tiers}
}

func (m *Multi) Has(ctx context.Context, fingerprint string) (bool, error) {
	for _, t := range m.tiers {
		ok, err := t.Has(ctx, fingerprint)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (m *Multi) Get(ctx context.Context, fingerprint string) ([]byte, bool, error) {
	for _, t := range m.tiers {
		b, ok, err := t.Get(ctx, fingerprint)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return b, true, nil
		}
	}
	return nil, false, nil
}

func (m *Multi) GetMany(ctx context.Context, fingerprints []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(fingerprints))
	remaining := fingerprints
	for _, t := range m.tiers {
		if len(remaining) == 0 {
			break
		}
		found, err := t.GetMany(ctx, remaining)
		if err != nil {
			return nil, err
		}
		next := remaining[:0:0]
		for _, fp := range remaining {
			if b, ok := found[fp]; ok {
				out[fp] = b
			} else {
				next = append(next, fp)
			}
		}
		remaining = next
	}
	return out, nil
}

// Put fans out to every tier in parallel and requires they all agree on
// the fingerprint. Since fingerprint is a pure function of the bytes,
// disagreement can only mean a tier computed it over different bytes —
// corruption, not a legitimate race.
func (m *Multi) Put(ctx context.Context, blob []byte) (string, error) {
	fps, err := m.putAll(ctx, blob)
	if err != nil {
		return "", err
	}
	return fps[0], nil
}

func (m *Multi) putAll(ctx context.Context, blob []byte) ([]string, error) {
	fps := make([]string, len(m.tiers))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range m.tiers {
		i, t := i, t
		g.Go(func() error {
			fp, err := t.Put(gctx, blob)
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
	for i := 1; i < len(fps); i++ {
		if fps[i] != fps[0] {
			return nil, cellarerr.Corruption(fps[0], "tier %d returned fingerprint %s, tier 0 returned %s for the same blob", i, fps[i], fps[0])
		}
	}
	return fps, nil
}

func (m *Multi) PutMany(ctx context.Context, blobs [][]byte) ([]string, error) {
	out := make([]string, len(blobs))
	g, gctx := errgroup.WithContext(ctx)
	for i, blob := range blobs {
		i, blob := i, blob
		g.Go(func() error {
			fp, err := m.Put(gctx, blob)
			if err != nil {
				return err
			}
			out[i] = fp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Multi) Delete(ctx context.Context, fingerprint string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range m.tiers {
		t := t
		g.Go(func() error {
			return t.Delete(gctx, fingerprint)
		})
	}
	return g.Wait()
}
