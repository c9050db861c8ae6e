/*
Package normalize shreds a canon.Json value into a flat, topologically
ordered DAG of fragments keyed by fingerprint, and reassembles a value
from such a DAG.

A NormalizedJson fragment is a Json value that is never recursively
nested through another object or array: it is a primitive, or a sequence
of primitives, or a mapping of primitives. Nesting between fragments is
expressed by replacing every child of an aggregate, primitive or
aggregate, with the primitive string "<VAL_REF>" +
fingerprint-of-that-child's-own-fragment.

Normalize walks depth-first, post-order: every child is
shredded and appended to the accumulator before the fragment that
references it, so the accumulator is topologically sorted — leaves
first, the root fragment last. The root descriptor produced alongside
it is the tagged pair spec.md §3 defines: [<NORM_SENTINEL>,
{objectSha256: F, manifest: [F0, F1, ..., Fn]}], where F is the last
manifest entry.

Denormalize takes such a manifest, builds a fingerprint→fragment map,
and recursively expands the root fragment by resolving every
"<VAL_REF>"-tagged string against that map, failing loudly if a
referenced fragment is absent.
*/
package normalize
