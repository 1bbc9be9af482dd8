package matching

import "fsadict/internal/fsa"

// nearIterator drives one NearPayload traversal (possibly zipped across
// many segments) into a stream of Matches, applying the greedy or
// first-depth-lock emission policy over the payload's exact_depth.
type nearIterator struct {
	cursor   *fsa.ZipTraverser
	segments map[string]Segment
	prefix   []byte
	greedy   bool
	deleted  DeletionFunc

	locked       bool
	matchedDepth int
	done         bool
	err          error
}

// Near returns an Iterator over keys sharing prefix (the first
// minimumExactPrefix bytes of query, matched exactly) and ranked by how
// much of the remainder they continue to share, without requiring an exact
// full-key match. It is intended for locality-preserving key encodings
// (e.g. Morton/geohash-style keys) where the shared-prefix length is a
// proxy for proximity.
//
// When greedy is true, every final state visited is emitted, in traversal
// order. When greedy is false, the first final state visited fixes the
// match's exact_depth as the session's matched_depth: subsequent finals
// with an equal exact_depth are also emitted, a lower exact_depth ends the
// iteration (traversal order guarantees no better match remains), and a
// higher exact_depth is skipped without ending the iteration.
func Near(segments []Segment, query []byte, minimumExactPrefix int, greedy bool, deleted DeletionFunc) Iterator {
	if deleted == nil {
		deleted = NoDeletions
	}
	if minimumExactPrefix < 0 || minimumExactPrefix > len(query) {
		return &emptyIterator{}
	}
	prefix := query[:minimumExactPrefix]
	nearKey := query[minimumExactPrefix:]

	comparables := make([]*fsa.Comparable, 0, len(segments))
	byID := make(map[string]Segment, len(segments))
	for _, seg := range segments {
		state, ok := walkPrefix(seg.Reader, prefix)
		if !ok {
			continue
		}
		payload := fsa.NewNearPayload(nearKey)
		tr := fsa.NewNearTraverser(seg.Reader, state, payload)
		comparables = append(comparables, fsa.NewComparable(tr, seg.Priority, seg.ID))
		byID[seg.ID] = seg
	}
	if len(comparables) == 0 {
		return &emptyIterator{}
	}

	return &nearIterator{
		cursor:   fsa.NewZipTraverser(comparables),
		segments: byID,
		prefix:   prefix,
		greedy:   greedy,
		deleted:  deleted,
	}
}

func (it *nearIterator) Next() (Match, bool) {
	if it.done {
		return Match{empty: true}, false
	}
	for it.cursor.Advance() {
		if !it.cursor.IsFinal() {
			continue
		}
		payload, ok := it.cursor.RawPayload().(fsa.NearPayload)
		if !ok {
			continue
		}
		exactDepth := payload.ExactDepth()

		if !it.greedy {
			switch {
			case !it.locked:
				it.locked = true
				it.matchedDepth = exactDepth
			case exactDepth < it.matchedDepth:
				it.done = true
				return Match{empty: true}, false
			case exactDepth > it.matchedDepth:
				continue
			}
		}

		segID, _ := it.cursor.Segment().(string)
		if it.deleted(segID, it.cursor.StateValue()) {
			continue
		}
		seg, ok := it.segments[segID]
		if !ok {
			continue
		}

		key := make([]byte, 0, len(it.prefix)+len(it.cursor.Labels()))
		key = append(key, it.prefix...)
		key = append(key, it.cursor.Labels()...)

		var value []byte
		if seg.Resolver != nil {
			value = seg.Resolver.Resolve(it.cursor.StateValue())
		}

		return Match{
			key:           key,
			value:         value,
			score:         len(it.prefix) + exactDepth,
			segmentHandle: segID,
			stateHandle:   it.cursor.StateValue(),
		}, true
	}
	return Match{empty: true}, false
}

func (it *nearIterator) Err() error { return it.err }
