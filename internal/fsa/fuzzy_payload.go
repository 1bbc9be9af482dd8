package fsa

import "errors"

// MaxEditDistance bounds the edit distance a FuzzyPayload will track. Above
// this the DP row still works, but callers get diminishing returns quickly
// as the accepted subtree explodes.
const MaxEditDistance = 8

// ErrEditDistanceTooLarge is returned by NewFuzzyPayload when maxDist exceeds
// MaxEditDistance or is negative.
var ErrEditDistanceTooLarge = errors.New("fsa: edit distance exceeds maximum")

// FuzzyPayload is the per-path state for fuzzy (bounded Levenshtein)
// traversal: a dynamic-programming row over the query, one cell per query
// prefix length, holding the minimum edit distance from that query prefix
// to the path walked so far. Values are immutable; Step returns a new row.
type FuzzyPayload struct {
	query   []byte
	maxDist int
	row     []int
}

// NewFuzzyPayload seeds a payload representing the empty consumed path
// against the full query, i.e. row[j] = j (j insertions to reach query[:j]
// from nothing).
func NewFuzzyPayload(query []byte, maxDist int) (FuzzyPayload, error) {
	if maxDist < 0 || maxDist > MaxEditDistance {
		return FuzzyPayload{}, ErrEditDistanceTooLarge
	}
	row := make([]int, len(query)+1)
	for j := range row {
		row[j] = j
	}
	return FuzzyPayload{query: query, maxDist: maxDist, row: row}, nil
}

// Distance returns the edit distance between the path walked so far and the
// full query.
func (p FuzzyPayload) Distance() int {
	return p.row[len(p.row)-1]
}

// MaxDistance returns the configured upper bound k.
func (p FuzzyPayload) MaxDistance() int {
	return p.maxDist
}

// minRow returns the smallest cell in the row, used for subtree pruning:
// once every possible alignment of the remaining query costs more than
// maxDist, no descendant of this path can ever come back under budget.
func (p FuzzyPayload) minRow() int {
	m := p.row[0]
	for _, v := range p.row[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// fuzzyStep extends the payload by one consumed byte b, returning the updated
// row and whether the resulting subtree is still admissible (worth
// descending into).
func fuzzyStep(_ int, p FuzzyPayload, b byte) (FuzzyPayload, bool) {
	m := len(p.query)
	newRow := make([]int, m+1)
	newRow[0] = p.row[0] + 1
	for j := 1; j <= m; j++ {
		cost := 1
		if p.query[j-1] == b {
			cost = 0
		}
		del := p.row[j] + 1
		ins := newRow[j-1] + 1
		sub := p.row[j-1] + cost
		best := del
		if ins < best {
			best = ins
		}
		if sub < best {
			best = sub
		}
		newRow[j] = best
	}
	next := FuzzyPayload{query: p.query, maxDist: p.maxDist, row: newRow}
	return next, next.minRow() <= p.maxDist
}
