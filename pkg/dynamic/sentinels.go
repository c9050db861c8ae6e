package dynamic

// The closed sentinel set from spec.md §3, plus the §3-supplement
// "binary" sentinel. These are the only first-elements Decode recognizes
// as tagging a rich-type pair; any other two-element array decodes as a
// plain Array.
const (
	sentinelDate         = "date"
	sentinelRegexp       = "regexp"
	sentinelMapBuiltin   = "map-builtin"
	sentinelSetBuiltin   = "set-builtin"
	sentinelMapImmutable = "map-immutable"
	sentinelMapOrdered   = "map-ordered"
	sentinelList         = "list"
	sentinelSetImmutable = "set-immutable"
	sentinelSetOrdered   = "set-ordered"
	sentinelStack        = "stack"
	sentinelBinary       = "binary"
)

var knownSentinels = map[string]bool{
	sentinelDate:         true,
	sentinelRegexp:       true,
	sentinelMapBuiltin:   true,
	sentinelSetBuiltin:   true,
	sentinelMapImmutable: true,
	sentinelMapOrdered:   true,
	sentinelList:         true,
	sentinelSetImmutable: true,
	sentinelSetOrdered:   true,
	sentinelStack:        true,
	sentinelBinary:       true,
}
