package normalize

import (
	"context"
	"strings"

	"github.com/cuemby/cellar/pkg/canon"
	"github.com/cuemby/cellar/pkg/cellarerr"
)

// ValRefPrefix tags a primitive string as a reference to another
// fragment's fingerprint, rather than a literal string value.
const ValRefPrefix = "<VAL_REF>"

// NormSentinel tags a root descriptor — the two-element pair a ValueStore
// stores at a value's own fingerprint.
const NormSentinel = "<NORM_SENTINEL>"

// Fragment is one entry of a normalized DAG: a NormalizedJson value (a
// primitive, or a sequence/mapping of primitives and ValRefPrefix-tagged
// references) together with its own fingerprint.
type Fragment struct {
	Fingerprint string
	Value       any
}

// BlobGetter is the subset of pkg/blob.Store DecodeManifest needs: a
// batch fetch of fingerprint-addressed blobs. Accepting this narrow
// interface rather than the full Store keeps normalize decoupled from
// any particular blob backend.
type BlobGetter interface {
	GetMany(ctx context.Context, fingerprints []string) (map[string][]byte, error)
}

// Normalize shreds v (already validated as canon.Json) into a
// topologically ordered list of fragments: leaves first, the fragment
// for v itself last. Every value, primitive or aggregate, becomes its
// own content-addressed fragment.
func Normalize(v any) ([]Fragment, error) {
	if err := canon.Validate(v); err != nil {
		return nil, err
	}
	acc := make([]Fragment, 0, 4)
	seen := make(map[string]bool)

	if _, err := shredValue(v, &acc, seen); err != nil {
		return nil, err
	}
	return acc, nil
}

// shredValue fragments v itself (recursing into children first for an
// aggregate), appends it to acc, and returns its fingerprint.
func shredValue(v any, acc *[]Fragment, seen map[string]bool) (string, error) {
	switch v.(type) {
	case []any, map[string]any:
		return shredAggregate(v, acc, seen)
	default:
		fp, _, err := canon.Fingerprint(v)
		if err != nil {
			return "", err
		}
		appendFragment(acc, seen, fp, v)
		return fp, nil
	}
}

// shredChild fragments child (whether primitive or aggregate) and
// returns a ValRefPrefix-tagged reference to it, for a parent aggregate's
// flattened fragment to hold in child's place. This is what keeps every
// emitted fragment free of nested values of any kind.
func shredChild(child any, acc *[]Fragment, seen map[string]bool) (any, error) {
	fp, err := shredValue(child, acc, seen)
	if err != nil {
		return nil, err
	}
	return ValRefPrefix + fp, nil
}

// shredAggregate flattens v's direct children (replacing every child,
// primitive or aggregate, with a ref), appends the flattened fragment to acc, and
// returns its fingerprint.
func shredAggregate(v any, acc *[]Fragment, seen map[string]bool) (string, error) {
	switch x := v.(type) {
	case []any:
		flat := make([]any, len(x))
		for i, e := range x {
			r, err := shredChild(e, acc, seen)
			if err != nil {
				return "", err
			}
			flat[i] = r
		}
		fp, _, err := canon.Fingerprint(flat)
		if err != nil {
			return "", err
		}
		appendFragment(acc, seen, fp, flat)
		return fp, nil

	case map[string]any:
		flat := make(map[string]any, len(x))
		for k, e := range x {
			r, err := shredChild(e, acc, seen)
			if err != nil {
				return "", err
			}
			flat[k] = r
		}
		fp, _, err := canon.Fingerprint(flat)
		if err != nil {
			return "", err
		}
		appendFragment(acc, seen, fp, flat)
		return fp, nil

	default:
		return "", cellarerr.CodecRejection("$", "not an aggregate: %T", v)
	}
}

func appendFragment(acc *[]Fragment, seen map[string]bool, fp string, v any) {
	if seen[fp] {
		return
	}
	seen[fp] = true
	*acc = append(*acc, Fragment{Fingerprint: fp, Value: v})
}

// Denormalize reassembles a value from fragments, whose last element is
// the root. Any primitive string of the form ValRefPrefix+F is replaced
// by the denormalized form of F, looked up in the fragment set; a
// missing reference fails loudly rather than passing the ref string
// through.
func Denormalize(fragments []Fragment) (any, error) {
	if len(fragments) == 0 {
		return nil, cellarerr.Precondition("normalize: cannot denormalize an empty fragment set")
	}
	byFP := make(map[string]any, len(fragments))
	for _, f := range fragments {
		byFP[f.Fingerprint] = f.Value
	}
	root := fragments[len(fragments)-1]
	return expand(root.Value, byFP)
}

func expand(v any, byFP map[string]any) (any, error) {
	switch x := v.(type) {
	case string:
		fp, ok := strings.CutPrefix(x, ValRefPrefix)
		if !ok {
			return x, nil
		}
		frag, ok := byFP[fp]
		if !ok {
			return nil, cellarerr.Corruption(fp, "denormalize: manifest references a fragment that was not supplied")
		}
		return expand(frag, byFP)

	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			r, err := expand(e, byFP)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil

	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			r, err := expand(e, byFP)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil

	default:
		return x, nil
	}
}

// EncodeManifest wraps an ordered list of fragment fingerprints (leaves
// first, root last) into the root-descriptor pair spec.md §3 defines.
func EncodeManifest(fragmentFingerprints []string) (any, error) {
	if len(fragmentFingerprints) == 0 {
		return nil, cellarerr.Precondition("normalize: manifest must be non-empty")
	}
	root := fragmentFingerprints[len(fragmentFingerprints)-1]
	manifest := make([]any, len(fragmentFingerprints))
	for i, fp := range fragmentFingerprints {
		manifest[i] = fp
	}
	return []any{
		NormSentinel,
		map[string]any{
			"objectSha256": root,
			"manifest":     manifest,
		},
	}, nil
}

// DecodeManifest validates rootDescriptor's tag, fetches every fragment
// named in its manifest from getter, and returns them in manifest order.
// It fails loudly if the descriptor is malformed or any fragment is
// absent.
func DecodeManifest(ctx context.Context, rootDescriptor any, getter BlobGetter) ([]Fragment, error) {
	pair, ok := rootDescriptor.([]any)
	if !ok || len(pair) != 2 {
		return nil, cellarerr.Corruption("", "root descriptor is not a two-element pair")
	}
	tag, ok := pair[0].(string)
	if !ok || tag != NormSentinel {
		return nil, cellarerr.Corruption("", "root descriptor missing %s tag", NormSentinel)
	}
	obj, ok := pair[1].(map[string]any)
	if !ok {
		return nil, cellarerr.Corruption("", "root descriptor payload is not an object")
	}
	rootFP, ok := obj["objectSha256"].(string)
	if !ok {
		return nil, cellarerr.Corruption("", "root descriptor missing objectSha256")
	}
	manifestRaw, ok := obj["manifest"].([]any)
	if !ok || len(manifestRaw) == 0 {
		return nil, cellarerr.Corruption(rootFP, "root descriptor manifest is missing or empty")
	}

	fps := make([]string, len(manifestRaw))
	for i, e := range manifestRaw {
		s, ok := e.(string)
		if !ok {
			return nil, cellarerr.Corruption(rootFP, "manifest entry %d is not a fingerprint string", i)
		}
		fps[i] = s
	}
	if fps[len(fps)-1] != rootFP {
		return nil, cellarerr.Corruption(rootFP, "manifest's last entry does not match objectSha256")
	}

	blobs, err := getter.GetMany(ctx, fps)
	if err != nil {
		return nil, cellarerr.BackendFailure("blobstore", "GetMany", err)
	}

	frags := make([]Fragment, len(fps))
	for i, fp := range fps {
		raw, ok := blobs[fp]
		if !ok {
			return nil, cellarerr.Corruption(fp, "manifest fragment was not found in the blob store")
		}
		v, err := canon.Decode(raw)
		if err != nil {
			return nil, cellarerr.Corruption(fp, "manifest fragment is not valid canonical Json: %v", err)
		}
		if got := canon.FingerprintBytes(raw); got != fp {
			return nil, cellarerr.Corruption(fp, "fetched blob's fingerprint %s does not match requested fingerprint", got)
		}
		frags[i] = Fragment{Fingerprint: fp, Value: v}
	}
	return frags, nil
}
