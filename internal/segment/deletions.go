package segment

import (
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"fsadict/internal/matching"
	"fsadict/internal/storage"
)

// DeletionIndex tracks, per segment, which state-value ordinals have been
// marked deleted. It never touches a segment's FSA transition table:
// marking a key deleted only adds its ordinal to the segment's bitmap.
// Safe for concurrent use.
type DeletionIndex struct {
	mu      sync.RWMutex
	bitmaps map[string]*roaring.Bitmap
}

// NewDeletionIndex returns an empty index.
func NewDeletionIndex() *DeletionIndex {
	return &DeletionIndex{bitmaps: make(map[string]*roaring.Bitmap)}
}

// Delete marks ordinal deleted within segmentID.
func (d *DeletionIndex) Delete(segmentID string, ordinal uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.bitmaps[segmentID]
	if !ok {
		b = roaring.New()
		d.bitmaps[segmentID] = b
	}
	b.Add(uint32(ordinal))
}

// IsDeleted implements matching.DeletionFunc.
func (d *DeletionIndex) IsDeleted(segmentID string, ordinal uint64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.bitmaps[segmentID]
	if !ok {
		return false
	}
	return b.Contains(uint32(ordinal))
}

// Predicate returns d.IsDeleted bound as a matching.DeletionFunc.
func (d *DeletionIndex) Predicate() matching.DeletionFunc { return d.IsDeleted }

// Count returns the number of ordinals marked deleted within segmentID.
func (d *DeletionIndex) Count(segmentID string) uint32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.bitmaps[segmentID]
	if !ok {
		return 0
	}
	return uint32(b.GetCardinality())
}

// Snapshot returns a deep copy of the bitmap for segmentID, or an empty one
// if segmentID has no deletions yet. Used by Manager.Acquire so a held
// Snapshot observes a fixed deletion set even if later Delete calls mark
// more keys deleted.
func (d *DeletionIndex) Snapshot(segmentID string) *roaring.Bitmap {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.bitmaps[segmentID]
	if !ok {
		return roaring.New()
	}
	return b.Clone()
}

// Save serializes segmentID's bitmap (or an empty one) with a trailing
// checksum, using the same atomic-write discipline as memfsa.Save.
func (d *DeletionIndex) Save(segmentID, finalPath, tmpDir string) error {
	b := d.Snapshot(segmentID)
	payload, err := b.ToBytes()
	if err != nil {
		return fmt.Errorf("serialize deletion bitmap %s: %w", segmentID, err)
	}
	sum := storage.ComputeChecksum(payload)
	full := make([]byte, 0, len(payload)+len(sum))
	full = append(full, payload...)
	full = append(full, []byte(sum)...)
	return storage.AtomicWriteFile(finalPath, full, tmpDir)
}

// LoadInto reads a bitmap file written by Save and installs it as
// segmentID's deletion set.
func (d *DeletionIndex) LoadInto(segmentID, path string) error {
	data, err := readChecksummed(path)
	if err != nil {
		return fmt.Errorf("load deletion bitmap %s: %w", segmentID, err)
	}
	b := roaring.New()
	if len(data) > 0 {
		if err := b.UnmarshalBinary(data); err != nil {
			return fmt.Errorf("decode deletion bitmap %s: %w", segmentID, err)
		}
	}
	d.mu.Lock()
	d.bitmaps[segmentID] = b
	d.mu.Unlock()
	return nil
}
