package dynamic

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/cellar/pkg/cellarerr"
)

// Decode translates a canon.Json value back into a Value, recognizing the
// sentinel pairs §3 (and the §3 binary supplement) tag and reconstructing
// the matching concrete type. A two-element array whose first element is
// a string that isn't a known sentinel is not an error: it decodes as a
// plain Array, since caller data may legitimately contain such a shape.
func Decode(v any) (Value, error) {
	return decode(v, "$")
}

func decode(v any, path string) (Value, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return x, nil
	case json.Number:
		return x, nil
	case string:
		return x, nil
	case []any:
		if len(x) == 2 {
			if tag, ok := x[0].(string); ok && knownSentinels[tag] {
				return decodeSentinel(tag, x[1], path)
			}
		}
		out := make(Array, len(x))
		for i, e := range x {
			dv, err := decode(e, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = dv
		}
		return out, nil
	case map[string]any:
		out := make(Object, len(x))
		for k, e := range x {
			dv, err := decode(e, fmt.Sprintf("%s.%s", path, k))
			if err != nil {
				return nil, err
			}
			out[k] = dv
		}
		return out, nil
	default:
		return nil, cellarerr.CodecRejection(path, "value %v is not a recognized Json shape", v)
	}
}

func decodeSentinel(tag string, payload any, path string) (Value, error) {
	switch tag {
	case sentinelBinary:
		s, ok := payload.(string)
		if !ok {
			return nil, cellarerr.CodecRejection(path, "binary payload must be a base64 string")
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, cellarerr.CodecRejection(path, "binary payload is not valid base64: %v", err)
		}
		return Bytes(b), nil

	case sentinelDate:
		s, ok := payload.(string)
		if !ok {
			return nil, cellarerr.CodecRejection(path, "date payload must be an ISO-8601 string")
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, cellarerr.CodecRejection(path, "date payload %q is not ISO-8601: %v", s, err)
		}
		return Date(t), nil

	case sentinelRegexp:
		m, ok := payload.(map[string]any)
		if !ok {
			return nil, cellarerr.CodecRejection(path, "regexp payload must be an object")
		}
		source, _ := m["source"].(string)
		flags, _ := m["flags"].(string)
		if _, ok := m["source"]; !ok {
			return nil, cellarerr.CodecRejection(path, "regexp payload missing source")
		}
		return Regexp{Source: source, Flags: flags}, nil

	case sentinelList, sentinelStack, sentinelSetBuiltin, sentinelSetImmutable, sentinelSetOrdered:
		elems, err := decodeSeqPayload(payload, path)
		if err != nil {
			return nil, err
		}
		switch tag {
		case sentinelList:
			return List(elems), nil
		case sentinelStack:
			return Stack(elems), nil
		case sentinelSetBuiltin:
			return SetBuiltin(elems), nil
		case sentinelSetImmutable:
			return SetImmutable(elems), nil
		default:
			return SetOrdered(elems), nil
		}

	case sentinelMapBuiltin, sentinelMapImmutable, sentinelMapOrdered:
		pairs, err := decodePairsPayload(payload, path)
		if err != nil {
			return nil, err
		}
		switch tag {
		case sentinelMapBuiltin:
			return MapBuiltin(pairs), nil
		case sentinelMapImmutable:
			return MapImmutable(pairs), nil
		default:
			return MapOrdered(pairs), nil
		}

	default:
		return nil, cellarerr.CodecRejection(path, "unknown sentinel %q", tag)
	}
}

func decodeSeqPayload(payload any, path string) ([]Value, error) {
	seq, ok := payload.([]any)
	if !ok {
		return nil, cellarerr.CodecRejection(path, "sequence payload must be an array")
	}
	out := make([]Value, len(seq))
	for i, e := range seq {
		dv, err := decode(e, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out[i] = dv
	}
	return out, nil
}

func decodePairsPayload(payload any, path string) ([]Pair, error) {
	seq, ok := payload.([]any)
	if !ok {
		return nil, cellarerr.CodecRejection(path, "mapping payload must be an array of pairs")
	}
	out := make([]Pair, len(seq))
	for i, e := range seq {
		kv, ok := e.([]any)
		if !ok || len(kv) != 2 {
			return nil, cellarerr.CodecRejection(path, "mapping entry %d is not a [key, value] pair", i)
		}
		k, err := decode(kv[0], fmt.Sprintf("%s[%d].key", path, i))
		if err != nil {
			return nil, err
		}
		val, err := decode(kv[1], fmt.Sprintf("%s[%d].value", path, i))
		if err != nil {
			return nil, err
		}
		out[i] = Pair{Key: k, Value: val}
	}
	return out, nil
}
