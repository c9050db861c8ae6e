package dynamic

import "time"

// Value is the public element type of cellar's rich value union. It holds
// nil, bool, json.Number, string, or one of the named types in this file.
// Callers build and inspect values through these concrete types rather
// than through the sentinel pairs Encode/Decode move over the wire.
type Value = any

// Bytes is raw binary data — the §3-supplement binary sentinel.
type Bytes []byte

// Date is an instant in time — the date sentinel, carried on the wire as
// an ISO-8601 string.
type Date time.Time

// Regexp is a regular expression literal, carried as source pattern plus
// a flags string (e.g. "i", "gi") rather than a compiled form, since flag
// dialects vary by consumer.
type Regexp struct {
	Source string
	Flags  string
}

// Pair is a single (key, value) entry of a mapping sentinel. Key is itself
// a Value since map-builtin permits arbitrary (non-string) keys.
type Pair struct {
	Key   Value
	Value Value
}

// List is an immutable sequence — the list sentinel.
type List []Value

// Stack is a stack, serialized top-first — the stack sentinel.
type Stack []Value

// MapBuiltin is a mapping with arbitrary (possibly non-string) keys,
// serialized as a sequence of pairs — the map-builtin sentinel.
type MapBuiltin []Pair

// MapImmutable is a structural, order-insensitive mapping — the
// map-immutable sentinel. Same payload shape as MapBuiltin; kept as a
// distinct Go type so Decode(Encode(v)) reconstructs the same sentinel.
type MapImmutable []Pair

// MapOrdered is a mapping that preserves insertion order — the
// map-ordered sentinel.
type MapOrdered []Pair

// SetBuiltin is an unordered set — the set-builtin sentinel.
type SetBuiltin []Value

// SetImmutable is an unordered, immutable set — the set-immutable
// sentinel.
type SetImmutable []Value

// SetOrdered is a set that preserves insertion order — the set-ordered
// sentinel.
type SetOrdered []Value

// Object is a plain mapping with string keys. It passes through Encode
// untagged, as a native JSON object.
type Object map[string]Value

// Array is a plain sequence. It passes through Encode untagged, as a
// native JSON array.
type Array []Value
