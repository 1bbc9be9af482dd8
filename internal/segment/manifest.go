package segment

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"fsadict/internal/storage"
)

// ErrManifestCorrupt is returned when a manifest's stored checksum does not
// match its recomputed content checksum.
var ErrManifestCorrupt = errors.New("manifest checksum verification failed")

// FileMeta describes one file within a segment directory.
type FileMeta struct {
	Size     int64            `json:"size"`
	Checksum storage.Checksum `json:"checksum"`
}

// Meta describes one committed segment.
type Meta struct {
	ID                string              `json:"id"`
	GenerationCreated uint64              `json:"generation_created"`
	KeyCount          uint32              `json:"key_count"`
	DeletedCount      uint32              `json:"deleted_count"`
	SizeBytes         uint64              `json:"size_bytes"`
	Files             map[string]FileMeta `json:"files"`
}

// Priority orders segments for matching: newer generations mask older ones
// on tied traversal paths.
func (m Meta) Priority() int { return int(m.GenerationCreated) }

// Manifest represents a committed generation's segment set.
type Manifest struct {
	Generation         uint64           `json:"generation"`
	PreviousGeneration uint64           `json:"previous_generation"`
	Timestamp          time.Time        `json:"timestamp"`
	CommitID           string           `json:"commit_id"`
	Segments           []Meta           `json:"segments"`
	TotalKeys          uint64           `json:"total_keys"`
	TotalKeysAlive     uint64           `json:"total_keys_alive"`
	TotalSizeBytes     uint64           `json:"total_size_bytes"`
	Checksum           storage.Checksum `json:"checksum"`
}

// EmptyManifest returns the manifest for an empty store, generation 0.
func EmptyManifest() *Manifest {
	return &Manifest{Segments: []Meta{}}
}

// MarshalManifest serializes m to JSON, computing and embedding its
// checksum over the content with the checksum field cleared.
func MarshalManifest(m *Manifest) ([]byte, error) {
	sortSegments(m.Segments)
	checksum, err := computeManifestChecksum(m)
	if err != nil {
		return nil, fmt.Errorf("compute manifest checksum: %w", err)
	}
	m.Checksum = checksum

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return data, nil
}

// UnmarshalManifest deserializes and checksum-verifies a manifest.
func UnmarshalManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}

	saved := m.Checksum
	computed, err := computeManifestChecksum(&m)
	if err != nil {
		return nil, fmt.Errorf("compute manifest checksum for verification: %w", err)
	}
	if computed != saved {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrManifestCorrupt, saved, computed)
	}
	return &m, nil
}

func computeManifestChecksum(m *Manifest) (storage.Checksum, error) {
	saved := m.Checksum
	m.Checksum = ""
	defer func() { m.Checksum = saved }()

	sortSegments(m.Segments)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal for checksum: %w", err)
	}
	return storage.ComputeChecksum(data), nil
}

func sortSegments(segments []Meta) {
	sort.Slice(segments, func(i, j int) bool {
		return segments[i].ID < segments[j].ID
	})
}
