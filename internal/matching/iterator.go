package matching

// Iterator yields Match values one at a time, in the order its driver
// defines. It is forward-only and single-pass, mirroring the underlying
// traverser's explicit-stack DFS.
type Iterator interface {
	// Next returns the next match and true, or an empty Match (IsEmpty
	// reports true) and false once exhausted.
	Next() (Match, bool)
	// Err returns the first error encountered constructing the iterator or
	// while advancing it, if any.
	Err() error
}

// First drains at most one Match from it, for callers that only need an
// existence check or a single best result. The iterator remains usable for
// any remaining matches.
func First(it Iterator) Match {
	if m, ok := it.Next(); ok {
		return m
	}
	return Match{empty: true}
}

// emptyIterator is returned when a driver's prefix gating eliminates every
// segment, or when construction fails outright.
type emptyIterator struct {
	err error
}

func (e *emptyIterator) Next() (Match, bool) { return Match{empty: true}, false }
func (e *emptyIterator) Err() error          { return e.err }
