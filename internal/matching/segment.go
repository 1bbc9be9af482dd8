// Package matching implements the fuzzy and near matching drivers: prefix
// gating, emission policy, and Match construction over one or more FSA
// segments merged through package fsa's zip traverser.
package matching

import "fsadict/internal/fsa"

// ValueResolver resolves a state-value handle to the serialized value bytes
// stored for a key. Invoked lazily, only for matches actually returned to
// the caller.
type ValueResolver interface {
	Resolve(handle uint64) []byte
}

// Segment is one FSA plus the metadata the matching drivers need to gate,
// order, and mask it: an immutable reader, a resolver for its values, a
// stable identifier used for deletion lookups, and its priority (higher
// masks lower on tied paths).
type Segment struct {
	Reader   fsa.Reader
	Resolver ValueResolver
	ID       string
	Priority int
}

// DeletionFunc reports whether the key with the given state-value ordinal
// in the named segment has been deleted. A nil DeletionFunc is normalized
// to NoDeletions by the driver constructors.
type DeletionFunc func(segmentID string, ordinal uint64) bool

// NoDeletions is the deletion predicate for callers with no deletion
// tracking: every key is live.
func NoDeletions(string, uint64) bool { return false }

// walkPrefix walks prefix through reader starting at its start state,
// returning the resulting state and whether every byte had a transition.
func walkPrefix(reader fsa.Reader, prefix []byte) (fsa.State, bool) {
	state := reader.Start()
	for _, b := range prefix {
		state = reader.TryWalk(state, b)
		if state == fsa.NoState {
			return fsa.NoState, false
		}
	}
	return state, true
}
