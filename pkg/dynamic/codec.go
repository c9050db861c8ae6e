package dynamic

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/cuemby/cellar/pkg/cellarerr"
)

// encodeState tracks slices/maps currently being walked, by their backing
// pointer, so Encode can refuse a genuine cycle instead of recursing
// forever. Go values can only cycle through a reference type (slice or
// map) that ends up containing itself, directly or transitively.
type encodeState struct {
	inFlight map[uintptr]struct{}
}

func (s *encodeState) enter(v any, path string) (func(), error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		if rv.IsNil() || rv.Len() == 0 {
			return func() {}, nil
		}
		ptr := rv.Pointer()
		if _, seen := s.inFlight[ptr]; seen {
			return nil, cellarerr.CodecRejection(path, "cycle detected while encoding")
		}
		s.inFlight[ptr] = struct{}{}
		return func() { delete(s.inFlight, ptr) }, nil
	default:
		return func() {}, nil
	}
}

// Encode translates a Value into a canon.Json value, tagging the eleven
// recognized rich types as [sentinel, payload] pairs and recursing
// structurally through Object/Array.
func Encode(v Value) (any, error) {
	return encode(v, "$", &encodeState{inFlight: map[uintptr]struct{}{}})
}

func encode(v Value, path string, st *encodeState) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return x, nil
	case json.Number:
		return x, nil
	case string:
		return x, nil
	case Bytes:
		return pair(sentinelBinary, base64.StdEncoding.EncodeToString(x)), nil
	case Date:
		return pair(sentinelDate, time.Time(x).UTC().Format(time.RFC3339Nano)), nil
	case Regexp:
		return pair(sentinelRegexp, map[string]any{"source": x.Source, "flags": x.Flags}), nil
	case List:
		return encodeSeq(sentinelList, []Value(x), path, st)
	case Stack:
		return encodeSeq(sentinelStack, []Value(x), path, st)
	case SetBuiltin:
		return encodeSeq(sentinelSetBuiltin, []Value(x), path, st)
	case SetImmutable:
		return encodeSeq(sentinelSetImmutable, []Value(x), path, st)
	case SetOrdered:
		return encodeSeq(sentinelSetOrdered, []Value(x), path, st)
	case MapBuiltin:
		return encodePairs(sentinelMapBuiltin, []Pair(x), path, st)
	case MapImmutable:
		return encodePairs(sentinelMapImmutable, []Pair(x), path, st)
	case MapOrdered:
		return encodePairs(sentinelMapOrdered, []Pair(x), path, st)
	case Object:
		release, err := st.enter(v, path)
		if err != nil {
			return nil, err
		}
		defer release()
		out := make(map[string]any, len(x))
		for k, e := range x {
			ev, err := encode(e, fmt.Sprintf("%s.%s", path, k), st)
			if err != nil {
				return nil, err
			}
			out[k] = ev
		}
		return out, nil
	case Array:
		release, err := st.enter(v, path)
		if err != nil {
			return nil, err
		}
		defer release()
		out := make([]any, len(x))
		for i, e := range x {
			ev, err := encode(e, fmt.Sprintf("%s[%d]", path, i), st)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	default:
		return nil, cellarerr.CodecRejection(path, "unsupported type %T", v)
	}
}

func pair(sentinel string, payload any) []any {
	return []any{sentinel, payload}
}

func encodeSeq(sentinel string, elems []Value, path string, st *encodeState) (any, error) {
	release, err := st.enter(elems, path)
	if err != nil {
		return nil, err
	}
	defer release()
	out := make([]any, len(elems))
	for i, e := range elems {
		ev, err := encode(e, fmt.Sprintf("%s[%d]", path, i), st)
		if err != nil {
			return nil, err
		}
		out[i] = ev
	}
	return pair(sentinel, out), nil
}

func encodePairs(sentinel string, pairs []Pair, path string, st *encodeState) (any, error) {
	release, err := st.enter(pairs, path)
	if err != nil {
		return nil, err
	}
	defer release()
	out := make([]any, len(pairs))
	for i, p := range pairs {
		k, err := encode(p.Key, fmt.Sprintf("%s[%d].key", path, i), st)
		if err != nil {
			return nil, err
		}
		val, err := encode(p.Value, fmt.Sprintf("%s[%d].value", path, i), st)
		if err != nil {
			return nil, err
		}
		out[i] = []any{k, val}
	}
	return pair(sentinel, out), nil
}
