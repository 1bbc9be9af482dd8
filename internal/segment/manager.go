package segment

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"fsadict/internal/matching"
	"fsadict/internal/memfsa"
)

// Manager owns the currently active manifest, lazily loads and caches each
// segment's compiled fsa.Reader, and hands out pin-counted Snapshots so a
// long-running fuzzy or near scan is unaffected by concurrent commits.
//
// Lock ordering: generationMu before snapshotsMu before cacheMu before any
// individual Ref's own lock. Never acquire generationMu while holding one
// of the others.
type Manager struct {
	dir       *Dir
	deletions *DeletionIndex
	logger    *slog.Logger

	generationMu sync.RWMutex
	generation   uint64
	meta         map[string]Meta
	refs         map[string]*Ref

	cacheMu sync.Mutex
	readers map[string]*memfsa.Reader

	snapshotsMu sync.Mutex
	active      map[uint64]*Snapshot
	nextID      atomic.Uint64

	// LeakThreshold is how long a Snapshot may be held before DetectLeaks
	// reports it. Zero disables leak detection.
	LeakThreshold time.Duration
}

// NewManager builds a Manager over an already-recovered manifest. deletions
// is the live deletion index that Acquire snapshots; the first time a
// segment is loaded, its on-disk deletion bitmap is read into deletions with
// LoadInto, replacing any bitmap already held for that segment. Manager
// itself never marks keys deleted.
func NewManager(dir *Dir, deletions *DeletionIndex, manifest *Manifest, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if manifest == nil {
		manifest = EmptyManifest()
	}

	meta := make(map[string]Meta, len(manifest.Segments))
	refs := make(map[string]*Ref, len(manifest.Segments))
	for _, m := range manifest.Segments {
		meta[m.ID] = m
		ref := NewRef(m.ID)
		ref.SetInManifest(true)
		refs[m.ID] = ref
	}

	return &Manager{
		dir:           dir,
		deletions:     deletions,
		logger:        logger,
		generation:    manifest.Generation,
		meta:          meta,
		refs:          refs,
		readers:       make(map[string]*memfsa.Reader),
		active:        make(map[uint64]*Snapshot),
		LeakThreshold: 5 * time.Minute,
	}
}

// CurrentGeneration returns the generation Manager currently serves.
func (m *Manager) CurrentGeneration() uint64 {
	m.generationMu.RLock()
	defer m.generationMu.RUnlock()
	return m.generation
}

// Acquire pins every segment in the current generation and returns a
// Snapshot ready for matching.Fuzzy/matching.Near. The caller must Release
// it, generally via defer, once the scan completes.
func (m *Manager) Acquire() (*Snapshot, error) {
	m.generationMu.RLock()
	generation := m.generation
	metas := make([]Meta, 0, len(m.meta))
	for _, meta := range m.meta {
		metas = append(metas, meta)
	}
	refs := make([]*Ref, 0, len(metas))
	for _, meta := range metas {
		ref := m.refs[meta.ID]
		ref.Pin()
		refs = append(refs, ref)
	}
	m.generationMu.RUnlock()

	segments := make([]matching.Segment, 0, len(metas))
	for _, meta := range metas {
		reader, err := m.loadSegment(meta)
		if err != nil {
			for _, ref := range refs {
				ref.Unpin()
			}
			return nil, fmt.Errorf("acquire snapshot: load segment %s: %w", meta.ID, err)
		}
		segments = append(segments, matching.Segment{
			Reader:   reader,
			Resolver: reader,
			ID:       meta.ID,
			Priority: meta.Priority(),
		})
	}

	isolated := make(map[string]*roaring.Bitmap, len(metas))
	for _, meta := range metas {
		isolated[meta.ID] = m.deletions.Snapshot(meta.ID)
	}
	deletedFn := func(segmentID string, ordinal uint64) bool {
		b, ok := isolated[segmentID]
		return ok && b.Contains(uint32(ordinal))
	}

	snap := &Snapshot{
		ID:         m.nextID.Add(1),
		Generation: generation,
		AcquiredAt: time.Now(),
		refs:       refs,
		segments:   segments,
		deleted:    deletedFn,
		manager:    m,
	}

	m.snapshotsMu.Lock()
	m.active[snap.ID] = snap
	m.snapshotsMu.Unlock()

	m.logger.Debug("snapshot acquired", "snapshot_id", snap.ID, "generation", generation, "segments", len(segments))
	return snap, nil
}

// UpdateGeneration installs a newly committed manifest as current. Segments
// carried over from the previous generation keep their Ref (and any live
// pins); segments dropped from the manifest are marked reclaimable once
// unpinned. Returns segment IDs that are immediately reclaimable.
func (m *Manager) UpdateGeneration(newManifest *Manifest) []string {
	m.generationMu.Lock()
	defer m.generationMu.Unlock()

	if newManifest.Generation <= m.generation {
		panic(fmt.Sprintf("segment: generation must increase: current=%d, new=%d", m.generation, newManifest.Generation))
	}

	newMeta := make(map[string]Meta, len(newManifest.Segments))
	newRefs := make(map[string]*Ref, len(newManifest.Segments))
	present := make(map[string]bool, len(newManifest.Segments))
	for _, meta := range newManifest.Segments {
		present[meta.ID] = true
		newMeta[meta.ID] = meta
		if existing, ok := m.refs[meta.ID]; ok {
			newRefs[meta.ID] = existing
			continue
		}
		ref := NewRef(meta.ID)
		ref.SetInManifest(true)
		newRefs[meta.ID] = ref
	}

	var reclaimable []string
	for id, ref := range m.refs {
		if present[id] {
			continue
		}
		ref.SetInManifest(false)
		if ref.CanReclaim() {
			reclaimable = append(reclaimable, id)
		} else {
			newRefs[id] = ref
		}
	}

	m.generation = newManifest.Generation
	m.meta = newMeta
	m.refs = newRefs

	m.logger.Info("generation updated", "generation", newManifest.Generation, "segments", len(newManifest.Segments), "reclaimable", len(reclaimable))
	return reclaimable
}

// Reclaimable returns the segment IDs eligible for deletion right now:
// unpinned and no longer named by the current manifest.
func (m *Manager) Reclaimable() []string {
	m.generationMu.RLock()
	defer m.generationMu.RUnlock()
	var out []string
	for id, ref := range m.refs {
		if ref.CanReclaim() {
			out = append(out, id)
		}
	}
	return out
}

// EvictCache drops cached readers for the given segment IDs. Call this
// after their directories have actually been removed from disk.
func (m *Manager) EvictCache(segmentIDs []string) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	for _, id := range segmentIDs {
		delete(m.readers, id)
	}
}

// ActiveSnapshotCount returns the number of currently held snapshots.
func (m *Manager) ActiveSnapshotCount() int {
	m.snapshotsMu.Lock()
	defer m.snapshotsMu.Unlock()
	return len(m.active)
}

// SegmentRefCount returns the pin count for segmentID, or -1 if unknown.
func (m *Manager) SegmentRefCount(segmentID string) int {
	m.generationMu.RLock()
	defer m.generationMu.RUnlock()
	if ref, ok := m.refs[segmentID]; ok {
		return ref.PinCount()
	}
	return -1
}

// DetectLeaks returns snapshots held longer than LeakThreshold.
func (m *Manager) DetectLeaks() []*Snapshot {
	if m.LeakThreshold <= 0 {
		return nil
	}
	m.snapshotsMu.Lock()
	defer m.snapshotsMu.Unlock()
	var leaks []*Snapshot
	for _, snap := range m.active {
		if snap.HeldDuration() > m.LeakThreshold {
			leaks = append(leaks, snap)
		}
	}
	return leaks
}

func (m *Manager) releaseSnapshot(snap *Snapshot) {
	m.snapshotsMu.Lock()
	delete(m.active, snap.ID)
	m.snapshotsMu.Unlock()
	m.logger.Debug("snapshot released", "snapshot_id", snap.ID, "generation", snap.Generation, "held", snap.HeldDuration())
}

func (m *Manager) loadSegment(meta Meta) (*memfsa.Reader, error) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	if r, ok := m.readers[meta.ID]; ok {
		return r, nil
	}
	path := m.dir.SegmentFile(meta.ID, FSAFileName)
	r, err := memfsa.Load(path)
	if err != nil {
		return nil, err
	}
	if err := m.deletions.LoadInto(meta.ID, m.dir.SegmentFile(meta.ID, DeletionsFileName)); err != nil {
		return nil, fmt.Errorf("load deletions for %s: %w", meta.ID, err)
	}
	m.readers[meta.ID] = r
	return r, nil
}
