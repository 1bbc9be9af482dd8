package memfsa

import (
	"bytes"
	"sort"

	"github.com/tchap/go-patricia/v2/patricia"
)

// Builder accumulates key/value pairs and compiles them into an immutable
// Reader. It uses a github.com/tchap/go-patricia/v2/patricia trie purely as
// insertion scaffolding — last-write-wins semantics for repeated keys and a
// single full-key enumeration pass — not for its compressed radix
// structure; the compiled Reader is a plain byte-labeled trie rebuilt from
// the sorted enumeration, structurally unrelated to patricia's internal
// node layout.
type Builder struct {
	trie *patricia.Trie
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{trie: patricia.NewTrie()}
}

// Insert adds or replaces the value stored for key. Order of Insert calls
// does not matter; Build always compiles entries in sorted key order.
func (b *Builder) Insert(key, value []byte) {
	b.trie.Set(patricia.Prefix(key), append([]byte(nil), value...))
}

// Build compiles every inserted key into an immutable Reader. Final states
// are assigned dense ordinals in ascending key order, so ordinal 0 is
// always the lexicographically smallest key.
func (b *Builder) Build() (*Reader, error) {
	type kv struct {
		key   []byte
		value []byte
	}
	var entries []kv
	err := b.trie.Visit(func(p patricia.Prefix, item patricia.Item) error {
		v, _ := item.([]byte)
		entries = append(entries, kv{key: append([]byte(nil), p...), value: v})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].key, entries[j].key) < 0
	})

	nodes := []node{{}, {}} // index 0: dead. index 1: root.
	var values [][]byte

	for _, e := range entries {
		cur := 1
		for _, b := range e.key {
			n := &nodes[cur]
			target := -1
			for i := range n.edges {
				if n.edges[i].label == b {
					target = int(n.edges[i].target)
					break
				}
			}
			if target < 0 {
				nodes = append(nodes, node{})
				target = len(nodes) - 1
				nodes[cur].edges = append(nodes[cur].edges, edge{label: b, target: uint32(target)})
			}
			cur = target
		}
		nodes[cur].final = true
		nodes[cur].ordinal = uint64(len(values))
		values = append(values, e.value)
	}

	return &Reader{nodes: nodes, values: values}, nil
}
