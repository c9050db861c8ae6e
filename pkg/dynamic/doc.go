/*
Package dynamic implements cellar's codec: the translation between the rich
value union a caller works with and the closed Json variant pkg/canon
serializes and fingerprints.

A Value is Go's any, holding one of:

	nil                        // null
	bool                       // boolean
	json.Number                // number
	string                     // string
	Bytes                      // raw bytes            (binary sentinel, §3 supplement)
	Date                       // an instant            (date sentinel)
	Regexp                     // a regular expression   (regexp sentinel)
	List                       // immutable sequence     (list sentinel)
	Stack                      // stack, top first       (stack sentinel)
	MapBuiltin                 // mapping, arbitrary keys (map-builtin sentinel)
	MapImmutable               // structural mapping      (map-immutable sentinel)
	MapOrdered                 // insertion-order mapping (map-ordered sentinel)
	SetBuiltin                 // unordered set           (set-builtin sentinel)
	SetImmutable               // unordered set, immutable (set-immutable sentinel)
	SetOrdered                 // ordered set              (set-ordered sentinel)
	Object                     // plain mapping, string keys, passes through untagged
	Array                      // plain sequence, passes through untagged

Encode walks a Value and produces a canon.Json value: scalars pass through,
the eleven rich types become two-element [sentinel, payload] pairs, Object
and Array recurse structurally without a tag. Decode does the inverse,
recognizing sentinel pairs and reconstructing the matching concrete type;
a two-element array whose first element is a string but not one of the
eleven known sentinels is not an error — it decodes as a plain Array,
since the sentinel space is closed but caller data is not.

Encode detects reference cycles — reachable through a Go slice or map that
directly or indirectly contains itself — and refuses with a
cellarerr.ErrCodecRejection rather than recursing forever.
*/
package dynamic
