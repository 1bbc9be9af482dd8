package matching

import (
	"testing"

	"fsadict/internal/fsa"
)

// trieReader is a minimal hand-built fsa.Reader over an explicit key/value
// set, used to exercise the matching drivers without a real memfsa.
type trieReader struct {
	trans map[fsa.State]map[byte]fsa.State
	final map[fsa.State]bool
	value map[fsa.State]uint64
	next  fsa.State
}

func newTrieReader(keys map[string]uint64) *trieReader {
	r := &trieReader{
		trans: map[fsa.State]map[byte]fsa.State{1: {}},
		final: map[fsa.State]bool{},
		value: map[fsa.State]uint64{},
		next:  2,
	}
	for key, v := range keys {
		cur := fsa.State(1)
		for i := 0; i < len(key); i++ {
			b := key[i]
			if r.trans[cur] == nil {
				r.trans[cur] = map[byte]fsa.State{}
			}
			nxt, ok := r.trans[cur][b]
			if !ok {
				nxt = r.next
				r.next++
				r.trans[cur][b] = nxt
				r.trans[nxt] = map[byte]fsa.State{}
			}
			cur = nxt
		}
		r.final[cur] = true
		r.value[cur] = v
	}
	return r
}

func (r *trieReader) Start() fsa.State { return 1 }
func (r *trieReader) TryWalk(state fsa.State, b byte) fsa.State {
	m, ok := r.trans[state]
	if !ok {
		return fsa.NoState
	}
	next, ok := m[b]
	if !ok {
		return fsa.NoState
	}
	return next
}
func (r *trieReader) IsFinal(state fsa.State) bool      { return r.final[state] }
func (r *trieReader) StateValue(state fsa.State) uint64 { return r.value[state] }
func (r *trieReader) OutgoingLabels(state fsa.State) []byte {
	m := r.trans[state]
	labels := make([]byte, 0, len(m))
	for b := range m {
		labels = append(labels, b)
	}
	for i := 1; i < len(labels); i++ {
		for j := i; j > 0 && labels[j-1] > labels[j]; j-- {
			labels[j-1], labels[j] = labels[j], labels[j-1]
		}
	}
	return labels
}

type valueResolver map[uint64]string

func (v valueResolver) Resolve(handle uint64) []byte { return []byte(v[handle]) }

func TestFuzzyExactMatch(t *testing.T) {
	r := newTrieReader(map[string]uint64{"cat": 1, "car": 2, "dog": 3})
	segs := []Segment{{Reader: r, ID: "s0", Priority: 0}}

	it := Fuzzy(segs, []byte("cat"), 0, 0, nil)
	var got []string
	for {
		m, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, string(m.Key()))
	}
	if len(got) != 1 || got[0] != "cat" {
		t.Fatalf("expected exactly [cat], got %v", got)
	}
}

func TestFuzzyEditOneWithPriorityMasking(t *testing.T) {
	r0 := newTrieReader(map[string]uint64{"cat": 100})
	r1 := newTrieReader(map[string]uint64{"cat": 200, "cot": 201})
	segs := []Segment{
		{Reader: r0, ID: "old", Priority: 0, Resolver: valueResolver{100: "old-cat"}},
		{Reader: r1, ID: "new", Priority: 1, Resolver: valueResolver{200: "new-cat", 201: "new-cot"}},
	}

	it := Fuzzy(segs, []byte("cat"), 1, 0, nil)
	found := map[string]Match{}
	for {
		m, ok := it.Next()
		if !ok {
			break
		}
		found[string(m.Key())] = m
	}

	if len(found) != 2 {
		t.Fatalf("expected 2 matches (cat, cot), got %v", found)
	}
	catMatch, ok := found["cat"]
	if !ok {
		t.Fatalf("expected a match for 'cat', got %v", found)
	}
	if catMatch.SegmentHandle() != "new" || string(catMatch.Value()) != "new-cat" {
		t.Fatalf("expected higher-priority segment to win for 'cat', got segment=%v value=%q",
			catMatch.SegmentHandle(), catMatch.Value())
	}
	if catMatch.Score() != 0 {
		t.Fatalf("expected exact match score 0 for 'cat', got %d", catMatch.Score())
	}
	if cotMatch, ok := found["cot"]; !ok || cotMatch.Score() != 1 {
		t.Fatalf("expected 'cot' at distance 1, got %v ok=%v", cotMatch, ok)
	}
}

func TestFuzzyRespectsDeletions(t *testing.T) {
	r := newTrieReader(map[string]uint64{"cat": 1, "cot": 2})
	segs := []Segment{{Reader: r, ID: "s0", Priority: 0}}

	deleted := func(segID string, ordinal uint64) bool {
		return segID == "s0" && ordinal == 1 // "cat" deleted
	}

	it := Fuzzy(segs, []byte("cat"), 1, 0, deleted)
	var got []string
	for {
		m, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, string(m.Key()))
	}
	if len(got) != 1 || got[0] != "cot" {
		t.Fatalf("expected only [cot] once 'cat' is masked as deleted, got %v", got)
	}
}

func TestFuzzyMinimumExactPrefixGatesSegments(t *testing.T) {
	r := newTrieReader(map[string]uint64{"cat": 1, "dog": 2})
	segs := []Segment{{Reader: r, ID: "s0", Priority: 0}}

	it := Fuzzy(segs, []byte("cats"), 1, 3, nil)
	m := First(it)
	if m.IsEmpty() || string(m.Key()) != "cat" {
		t.Fatalf("expected 'cat' to survive the exact prefix gate, got %v", m)
	}

	// "dot" shares no 3-byte exact prefix with any key: no survivors.
	it2 := Fuzzy(segs, []byte("dot"), 1, 3, nil)
	if m2 := First(it2); !m2.IsEmpty() {
		t.Fatalf("expected no matches when the exact prefix eliminates every segment, got %v", m2)
	}
}

func TestFuzzyMinimumExactPrefixLongerThanQueryIsEmpty(t *testing.T) {
	r := newTrieReader(map[string]uint64{"cat": 1})
	segs := []Segment{{Reader: r, ID: "s0", Priority: 0}}

	it := Fuzzy(segs, []byte("ca"), 1, 3, nil)
	if m := First(it); !m.IsEmpty() {
		t.Fatalf("expected an empty iterator when min prefix exceeds query length, got %v", m)
	}
}

func TestNearNonGreedyLocksToFirstDepth(t *testing.T) {
	// Near-key "37" over Morton-ish codes sharing prefix "g". Traversal
	// visits outgoing labels in ascending order and depth-first, so among
	// "g37" (exact_depth 2), "g311" (exact_depth 1) and "g4" (exact_depth
	// 0), "g311" is reached first: it shares the 'g3' branch and its next
	// byte '1' sorts before "g37"'s next byte '7'. Locking to the first
	// final's exact_depth (1) then admits nothing shallower ("g4", depth
	// 0, ends the scan) and skips anything deeper ("g37", depth 2) without
	// ending it.
	r := newTrieReader(map[string]uint64{
		"g37":  1,
		"g311": 2,
		"g4":   3,
	})
	segs := []Segment{{Reader: r, ID: "s0", Priority: 0}}

	it := Near(segs, []byte("g37"), 1, false, nil)
	var got []string
	for {
		m, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, string(m.Key()))
	}
	if len(got) != 1 || got[0] != "g311" {
		t.Fatalf("expected exactly one match at the first-encountered depth, got %v", got)
	}
}

func TestNearGreedyEmitsEveryFinal(t *testing.T) {
	r := newTrieReader(map[string]uint64{
		"g37":  1,
		"g311": 2,
		"g4":   3,
	})
	segs := []Segment{{Reader: r, ID: "s0", Priority: 0}}

	it := Near(segs, []byte("g37"), 1, true, nil)
	var got []string
	for {
		m, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, string(m.Key()))
	}
	if len(got) != 3 {
		t.Fatalf("expected all 3 finals under greedy emission, got %v", got)
	}
}

func TestNearDeduplicatesAcrossSegments(t *testing.T) {
	r0 := newTrieReader(map[string]uint64{"g37": 10})
	r1 := newTrieReader(map[string]uint64{"g37": 20})
	segs := []Segment{
		{Reader: r0, ID: "old", Priority: 0},
		{Reader: r1, ID: "new", Priority: 1},
	}

	it := Near(segs, []byte("g37"), 1, true, nil)
	var got []Match
	for {
		m, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, m)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly one de-duplicated match, got %d: %v", len(got), got)
	}
	if got[0].SegmentHandle() != "new" {
		t.Fatalf("expected the higher-priority segment to mask the other, got %v", got[0].SegmentHandle())
	}
}

func TestNearMinimumExactPrefixLongerThanQueryIsEmpty(t *testing.T) {
	r := newTrieReader(map[string]uint64{"g37": 1})
	segs := []Segment{{Reader: r, ID: "s0", Priority: 0}}

	it := Near(segs, []byte("g3"), 5, false, nil)
	if m := First(it); !m.IsEmpty() {
		t.Fatalf("expected an empty iterator when min prefix exceeds query length, got %v", m)
	}
}

func TestFuzzyEmptyQueryMatchesWithinEditDistance(t *testing.T) {
	r := newTrieReader(map[string]uint64{"a": 1, "ab": 2, "abc": 3})
	segs := []Segment{{Reader: r, ID: "s0", Priority: 0}}

	it := Fuzzy(segs, []byte(""), 3, 0, nil)
	var got []string
	for {
		m, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, string(m.Key()))
	}
	// against an empty query, edit distance is just key length: "a" (1),
	// "ab" (2), "abc" (3), all admissible within k=3.
	want := map[string]bool{"a": true, "ab": true, "abc": true}
	if len(got) != len(want) {
		t.Fatalf("got %v, want keys %v", got, want)
	}
	for _, k := range got {
		if !want[k] {
			t.Fatalf("unexpected match %q", k)
		}
	}
}
