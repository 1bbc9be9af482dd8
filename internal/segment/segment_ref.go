package segment

import "sync"

// Ref tracks the reference count for one segment: how many live Snapshots
// currently pin it, and whether it is still named by the current manifest.
// Safe for concurrent use.
type Ref struct {
	segmentID  string
	pins       int
	mu         sync.Mutex
	inManifest bool
}

// NewRef returns a Ref for segmentID with zero pins.
func NewRef(segmentID string) *Ref {
	return &Ref{segmentID: segmentID}
}

// SegmentID returns the segment this Ref tracks.
func (r *Ref) SegmentID() string { return r.segmentID }

// Pin increments the pin count. Called when a Snapshot acquires the segment.
func (r *Ref) Pin() {
	r.mu.Lock()
	r.pins++
	r.mu.Unlock()
}

// Unpin decrements the pin count. Called when a Snapshot releases the segment.
func (r *Ref) Unpin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pins--
	if r.pins < 0 {
		panic("segment: ref count went negative for " + r.segmentID)
	}
}

// PinCount returns the current number of holders.
func (r *Ref) PinCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pins
}

// SetInManifest marks whether the current manifest still names this segment.
func (r *Ref) SetInManifest(v bool) {
	r.mu.Lock()
	r.inManifest = v
	r.mu.Unlock()
}

// InManifest reports whether the current manifest still names this segment.
func (r *Ref) InManifest() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inManifest
}

// CanReclaim reports whether the segment's files may be deleted: nothing
// holds it, and it has been superseded (dropped from the manifest, e.g. by
// a future compaction) or was never activated.
func (r *Ref) CanReclaim() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pins == 0 && !r.inManifest
}
