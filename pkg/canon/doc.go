/*
Package canon implements canonical JSON serialization and content
fingerprinting for cellar.

The closed JSON variant used throughout cellar (`Json` in the spec this
package grounds) is represented with Go's `any`, holding exactly one of:

	nil             // JSON null
	bool            // JSON true/false
	json.Number     // JSON number, carried as its original decimal text
	string          // JSON string
	[]any           // JSON array, each element itself one of these kinds
	map[string]any  // JSON object, each value itself one of these kinds

Numbers are kept as json.Number rather than float64 so that the canonical
byte representation of a value never depends on float formatting: whatever
decimal text a producer wrote is the text that gets hashed. This is what
makes fingerprints reproducible across backends (spec.md invariant 1).

Canonicalization sorts object keys lexicographically by byte value, emits no
insignificant whitespace, and forbids NaN/Inf (which have no JSON
representation). Decode does not reject duplicate object keys in its
input: the last occurrence of a key wins.
*/
package canon
