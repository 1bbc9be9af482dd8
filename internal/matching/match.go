package matching

// Match is one emitted result from a Fuzzy or Near driver: the matched key,
// its resolved value (resolved lazily, only for keys the caller actually
// consumes), a driver-defined score, and the segment/state the key came
// from so a caller can correlate matches back to storage.
type Match struct {
	key           []byte
	value         []byte
	score         int
	segmentHandle any
	stateHandle   uint64
	empty         bool
}

// Key returns the matched key's bytes, including the exact prefix the
// driver was gated on.
func (m Match) Key() []byte { return m.key }

// Value returns the resolved value bytes, or nil if the segment carried no
// resolver.
func (m Match) Value() []byte { return m.value }

// Score is the driver-defined match quality: edit distance for Fuzzy,
// exact prefix length plus exact_depth for Near. Lower is not always better across drivers;
// compare scores only within the same driver's results.
func (m Match) Score() int { return m.score }

// SegmentHandle is the opaque segment identifier the match came from, as
// supplied in the originating Segment.
func (m Match) SegmentHandle() any { return m.segmentHandle }

// StateHandle is the FSA state-value ordinal backing the match, usable as a
// deletion-index key or a resolver handle.
func (m Match) StateHandle() uint64 { return m.stateHandle }

// IsEmpty reports whether this is the sentinel Match returned alongside a
// false ok from Iterator.Next.
func (m Match) IsEmpty() bool { return m.empty }
