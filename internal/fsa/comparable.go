package fsa

// Comparable wraps a Cursor with a segment priority and an opaque segment
// handle, making its current (label, depth, priority) position observable
// so a ZipTraverser can merge many of them into one ordered stream. It does
// not alter traversal order on its own.
type Comparable struct {
	cursor   Cursor
	priority int
	segment  any
}

// NewComparable adapts cursor for merging. priority is the segment's
// position in the caller's segment list; larger means more recent, and
// masks lower-priority segments on tied paths. segment is an opaque handle
// (typically the owning segment's identifier) threaded through to Match
// construction.
func NewComparable(cursor Cursor, priority int, segment any) *Comparable {
	return &Comparable{cursor: cursor, priority: priority, segment: segment}
}

func (c *Comparable) Priority() int { return c.priority }
func (c *Comparable) Segment() any  { return c.segment }

func (c *Comparable) Depth() int          { return c.cursor.Depth() }
func (c *Comparable) IsFinal() bool       { return c.cursor.IsFinal() }
func (c *Comparable) StateValue() uint64  { return c.cursor.StateValue() }
func (c *Comparable) Labels() []byte      { return c.cursor.Labels() }
func (c *Comparable) RawPayload() any     { return c.cursor.RawPayload() }
func (c *Comparable) Advance() bool       { return c.cursor.Advance() }
func (c *Comparable) Exhausted() bool     { return c.cursor.Exhausted() }

// key returns the current sort key: the label of the edge into the current
// state (hasLabel is false at depth 0, where there is no incoming edge),
// the depth, and the priority.
func (c *Comparable) key() (label byte, hasLabel bool, depth int, priority int) {
	labels := c.cursor.Labels()
	depth = c.cursor.Depth()
	priority = c.priority
	if len(labels) == 0 {
		return 0, false, depth, priority
	}
	return labels[len(labels)-1], true, depth, priority
}
