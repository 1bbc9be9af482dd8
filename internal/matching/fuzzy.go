package matching

import "fsadict/internal/fsa"

// fuzzyIterator drives one FuzzyPayload traversal (possibly zipped across
// many segments) into a stream of Matches, filtering by edit distance and
// by the caller's deletion predicate.
type fuzzyIterator struct {
	cursor   *fsa.ZipTraverser
	segments map[string]Segment
	prefix   []byte
	k        int
	deleted  DeletionFunc
	err      error
}

// Fuzzy returns an Iterator over every key across segments within
// maxEditDistance of query, after minimumExactPrefix bytes are matched
// exactly. Segments lacking the exact prefix are dropped before traversal
// begins; segments sharing a path are merged and de-duplicated by
// priority, with segments ordered later in the slice taking precedence.
//
// deleted, if non-nil, is consulted for every candidate final state and
// suppresses matches it reports as deleted. A nil deleted is treated as
// NoDeletions.
func Fuzzy(segments []Segment, query []byte, maxEditDistance, minimumExactPrefix int, deleted DeletionFunc) Iterator {
	if deleted == nil {
		deleted = NoDeletions
	}
	if minimumExactPrefix < 0 || minimumExactPrefix > len(query) {
		return &emptyIterator{}
	}
	prefix := query[:minimumExactPrefix]
	suffix := query[minimumExactPrefix:]

	comparables := make([]*fsa.Comparable, 0, len(segments))
	byID := make(map[string]Segment, len(segments))
	for _, seg := range segments {
		state, ok := walkPrefix(seg.Reader, prefix)
		if !ok {
			continue
		}
		payload, err := fsa.NewFuzzyPayload(suffix, maxEditDistance)
		if err != nil {
			return &emptyIterator{err: err}
		}
		tr := fsa.NewFuzzyTraverser(seg.Reader, state, payload)
		comparables = append(comparables, fsa.NewComparable(tr, seg.Priority, seg.ID))
		byID[seg.ID] = seg
	}
	if len(comparables) == 0 {
		return &emptyIterator{}
	}

	return &fuzzyIterator{
		cursor:   fsa.NewZipTraverser(comparables),
		segments: byID,
		prefix:   prefix,
		k:        maxEditDistance,
		deleted:  deleted,
	}
}

func (it *fuzzyIterator) Next() (Match, bool) {
	for it.cursor.Advance() {
		if !it.cursor.IsFinal() {
			continue
		}
		payload, ok := it.cursor.RawPayload().(fsa.FuzzyPayload)
		if !ok || payload.Distance() > it.k {
			continue
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
			score:         payload.Distance(),
			segmentHandle: segID,
			stateHandle:   it.cursor.StateValue(),
		}, true
	}
	return Match{empty: true}, false
}

func (it *fuzzyIterator) Err() error { return it.err }
