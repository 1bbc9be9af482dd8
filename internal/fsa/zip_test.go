package fsa

import "testing"

// twoKeyFSA builds a minimal trie over the given keys, sharing no
// state with other instances, so different "segments" in a zip merge can
// disagree about which keys exist.
type twoKeyFSA struct {
	trans map[State]map[byte]State
	final map[State]bool
	value map[State]uint64
	next  State
}

func buildFSA(keysToValues map[string]uint64) *twoKeyFSA {
	f := &twoKeyFSA{
		trans: map[State]map[byte]State{},
		final: map[State]bool{},
		value: map[State]uint64{},
		next:  2,
	}
	f.trans[1] = map[byte]State{}
	for key, v := range keysToValues {
		cur := State(1)
		for i := 0; i < len(key); i++ {
			b := key[i]
			if f.trans[cur] == nil {
				f.trans[cur] = map[byte]State{}
			}
			nxt, ok := f.trans[cur][b]
			if !ok {
				nxt = f.next
				f.next++
				f.trans[cur][b] = nxt
				f.trans[nxt] = map[byte]State{}
			}
			cur = nxt
		}
		f.final[cur] = true
		f.value[cur] = v
	}
	return f
}

func (f *twoKeyFSA) Start() State { return 1 }
func (f *twoKeyFSA) TryWalk(state State, b byte) State {
	m, ok := f.trans[state]
	if !ok {
		return NoState
	}
	next, ok := m[b]
	if !ok {
		return NoState
	}
	return next
}
func (f *twoKeyFSA) IsFinal(state State) bool      { return f.final[state] }
func (f *twoKeyFSA) StateValue(state State) uint64 { return f.value[state] }
func (f *twoKeyFSA) OutgoingLabels(state State) []byte {
	m := f.trans[state]
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

func fuzzyComparable(t *testing.T, f Reader, query string, k int, priority int, seg any) *Comparable {
	t.Helper()
	p, err := NewFuzzyPayload([]byte(query), k)
	if err != nil {
		t.Fatal(err)
	}
	tr := NewFuzzyTraverser(f, f.Start(), p)
	return NewComparable(tr, priority, seg)
}

func TestZipTraverserOrderedMerge(t *testing.T) {
	s0 := buildFSA(map[string]uint64{"ab": 1, "ac": 2})
	s1 := buildFSA(map[string]uint64{"aa": 3, "ad": 4})

	c0 := fuzzyComparable(t, s0, "", 2, 0, "s0")
	c1 := fuzzyComparable(t, s1, "", 2, 1, "s1")

	z := NewZipTraverser([]*Comparable{c0, c1})

	var seen []string
	for z.Advance() {
		if z.Depth() > 0 {
			seen = append(seen, string(z.Labels()))
		}
	}

	// ascending order by full label path expected across the merge.
	want := []string{"a", "aa", "ab", "ac", "ad"}
	if len(seen) != len(want) {
		t.Fatalf("got %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("position %d: got %q, want %q (full: %v)", i, seen[i], want[i], seen)
		}
	}
}

func TestZipTraverserDeduplicatesByPriority(t *testing.T) {
	s0 := buildFSA(map[string]uint64{"ab": 100}) // lower priority
	s1 := buildFSA(map[string]uint64{"ab": 200}) // higher priority

	c0 := fuzzyComparable(t, s0, "", 2, 0, "s0")
	c1 := fuzzyComparable(t, s1, "", 2, 1, "s1")

	z := NewZipTraverser([]*Comparable{c0, c1})

	count := 0
	var value uint64
	var seg any
	for z.Advance() {
		if z.Depth() == 2 && string(z.Labels()) == "ab" && z.IsFinal() {
			count++
			value = z.StateValue()
			seg = z.Segment()
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one emission for duplicate key, got %d", count)
	}
	if value != 200 || seg != "s1" {
		t.Fatalf("expected higher-priority segment s1's value 200, got value=%d seg=%v", value, seg)
	}
}
