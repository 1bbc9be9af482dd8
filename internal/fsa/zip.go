package fsa

import (
	"bytes"
	"container/heap"
)

// ZipTraverser merges N Comparable traversers into one forward-only stream,
// ordered by (label, depth), reporting only the highest-priority traverser
// among any group that shares an identical path at the same depth.
//
// The merge algorithm follows the shape of a container/heap-based
// postings-list merge, generalized from doc-ID merging to (label, depth,
// priority) merging with full-path equality for de-duplication.
type ZipTraverser struct {
	h       zipHeap
	current *Comparable
	// pending holds the traversers sitting on the current position (the
	// exposed one and those it shadows); the next Advance steps them.
	pending []*Comparable
}

// NewZipTraverser builds a ZipTraverser over comparables, priming each one
// to its root position. The heap is built in O(N).
func NewZipTraverser(comparables []*Comparable) *ZipTraverser {
	z := &ZipTraverser{}
	for _, c := range comparables {
		if c.Advance() {
			z.h = append(z.h, c)
		}
	}
	heap.Init(&z.h)
	return z
}

// Advance first steps the traversers that sat on the previous position
// (the survivor and every shadowed traverser) by one, then pops the
// globally-minimal (label, depth) position, drains and shadows any other
// traverser reporting an identical path at that depth, and exposes the
// popped position as current. It returns false once every underlying
// traverser is exhausted.
func (z *ZipTraverser) Advance() bool {
	for _, p := range z.pending {
		if p.Advance() {
			heap.Push(&z.h, p)
		}
	}
	z.pending = z.pending[:0]

	if z.h.Len() == 0 {
		z.current = nil
		return false
	}

	head := heap.Pop(&z.h).(*Comparable)
	headLabel, headHasLabel, headDepth, _ := head.key()
	headPath := append([]byte(nil), head.Labels()...)

	z.pending = append(z.pending, head)
	for z.h.Len() > 0 {
		cand := z.h[0]
		label, hasLabel, depth, _ := cand.key()
		if hasLabel != headHasLabel || label != headLabel || depth != headDepth {
			break
		}
		if !bytes.Equal(cand.Labels(), headPath) {
			break
		}
		heap.Pop(&z.h)
		z.pending = append(z.pending, cand)
	}

	z.current = head
	return true
}

func (z *ZipTraverser) Depth() int         { return z.current.Depth() }
func (z *ZipTraverser) IsFinal() bool      { return z.current.IsFinal() }
func (z *ZipTraverser) StateValue() uint64 { return z.current.StateValue() }
func (z *ZipTraverser) Labels() []byte     { return z.current.Labels() }
func (z *ZipTraverser) RawPayload() any    { return z.current.RawPayload() }
func (z *ZipTraverser) Exhausted() bool    { return z.h.Len() == 0 && z.current == nil }

// Segment returns the opaque segment handle the current position came from.
func (z *ZipTraverser) Segment() any { return z.current.Segment() }

// zipHeap is a min-heap of Comparable traversers ordered by
// (label, depth, -priority): lower labels first, then shallower depths,
// then higher priority (so newer segments mask older ones on ties).
type zipHeap []*Comparable

func (h zipHeap) Len() int { return len(h) }

func (h zipHeap) Less(i, j int) bool {
	li, hi, di, pi := h[i].key()
	lj, hj, dj, pj := h[j].key()
	if hi != hj {
		return !hi // no-label (root) sorts before any labeled position
	}
	if hi && li != lj {
		return li < lj
	}
	if di != dj {
		return di < dj
	}
	return pi > pj
}

func (h zipHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *zipHeap) Push(x any) {
	*h = append(*h, x.(*Comparable))
}

func (h *zipHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}
