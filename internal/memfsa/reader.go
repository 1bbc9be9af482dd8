// Package memfsa is a concrete, in-memory fsa.Reader implementation: a
// plain byte-labeled trie compiled from a sorted key/value list, with a
// simple on-disk encoding for use as a segment's transition table.
//
// It is a demonstration construction, not a minimal-FSA compiler: shared
// suffixes are not merged, and states are one per trie node.
package memfsa

import "fsadict/internal/fsa"

type edge struct {
	label  byte
	target uint32
}

type node struct {
	edges   []edge // sorted ascending by label
	final   bool
	ordinal uint64
}

// Reader is an immutable fsa.Reader over the keys a Builder compiled, or
// that Load reconstructed from disk. It is safe for concurrent read-only
// use by many matchers.
type Reader struct {
	nodes  []node
	values [][]byte
}

var _ fsa.Reader = (*Reader)(nil)

// deadState is reserved as fsa.NoState; the root lives at index 1.
const deadState = 0

func (r *Reader) Start() fsa.State { return fsa.State(1) }

func (r *Reader) TryWalk(state fsa.State, b byte) fsa.State {
	if state == deadState || int(state) >= len(r.nodes) {
		return fsa.NoState
	}
	edges := r.nodes[state].edges
	lo, hi := 0, len(edges)
	for lo < hi {
		mid := (lo + hi) / 2
		if edges[mid].label < b {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(edges) && edges[lo].label == b {
		return fsa.State(edges[lo].target)
	}
	return fsa.NoState
}

func (r *Reader) IsFinal(state fsa.State) bool {
	return state != deadState && int(state) < len(r.nodes) && r.nodes[state].final
}

func (r *Reader) StateValue(state fsa.State) uint64 {
	if state == deadState || int(state) >= len(r.nodes) {
		return 0
	}
	return r.nodes[state].ordinal
}

func (r *Reader) OutgoingLabels(state fsa.State) []byte {
	if state == deadState || int(state) >= len(r.nodes) {
		return nil
	}
	edges := r.nodes[state].edges
	labels := make([]byte, len(edges))
	for i, e := range edges {
		labels[i] = e.label
	}
	return labels
}

// Resolve returns the value bytes stored for the key whose final state's
// StateValue equals handle. It implements matching.ValueResolver.
func (r *Reader) Resolve(handle uint64) []byte {
	if handle >= uint64(len(r.values)) {
		return nil
	}
	return r.values[handle]
}

// KeyCount returns the number of distinct keys compiled into the reader.
func (r *Reader) KeyCount() int { return len(r.values) }
