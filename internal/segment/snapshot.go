package segment

import (
	"errors"
	"sync/atomic"
	"time"

	"fsadict/internal/matching"
)

// ErrSnapshotReleased is returned by operations attempted on an already
// released Snapshot.
var ErrSnapshotReleased = errors.New("segment: snapshot already released")

// Snapshot is a point-in-time, isolated view of a committed generation: the
// segment set it pins, and the deletion bitmaps as they stood at the moment
// of acquisition. A commit or a Delete call made after Acquire never
// changes what a held Snapshot sees, matching the fuzzy/near read-only
// contract's requirement that a scan not observe a moving target.
type Snapshot struct {
	ID         uint64
	Generation uint64
	AcquiredAt time.Time

	refs     []*Ref
	segments []matching.Segment
	deleted  matching.DeletionFunc

	manager  *Manager
	released atomic.Bool
}

// Segments returns the matching.Segment set this snapshot pins, ready to
// pass to matching.Fuzzy or matching.Near.
func (s *Snapshot) Segments() []matching.Segment { return s.segments }

// Deleted returns the isolated deletion predicate captured at Acquire time.
func (s *Snapshot) Deleted() matching.DeletionFunc { return s.deleted }

// Release unpins every segment this snapshot holds and detaches it from its
// Manager. Safe to call more than once; only the first call has effect.
// Callers must always Release an acquired Snapshot, typically via defer.
func (s *Snapshot) Release() error {
	if !s.released.CompareAndSwap(false, true) {
		return nil
	}
	for _, ref := range s.refs {
		ref.Unpin()
	}
	if s.manager != nil {
		s.manager.releaseSnapshot(s)
	}
	return nil
}

// Released reports whether Release has already run.
func (s *Snapshot) Released() bool { return s.released.Load() }

// HeldDuration returns how long this snapshot has been open.
func (s *Snapshot) HeldDuration() time.Duration { return time.Since(s.AcquiredAt) }
