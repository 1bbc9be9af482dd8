package segment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"fsadict/internal/memfsa"
	"fsadict/internal/storage"
)

// CommitResult describes a successful commit.
type CommitResult struct {
	Generation uint64
	SegmentID  string
	Duration   time.Duration
}

// Committer orchestrates the write-verify-install-publish protocol for
// adding one new segment. Trimmed from the teacher's 7-phase commit — an
// FSA segment has exactly two files (fsa.bin, deletions.bin), so there is
// no separate positions/stored-fields phase.
//
// The caller must serialize commits itself; Committer does not lock.
type Committer struct {
	dir    *Dir
	logger *slog.Logger
}

// NewCommitter returns a Committer writing into dir.
func NewCommitter(dir *Dir, logger *slog.Logger) *Committer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Committer{dir: dir, logger: logger}
}

// Commit writes reader and deletions as a new segment appended to
// currentManifest (nil for the store's first commit) and atomically
// publishes the resulting generation.
func (c *Committer) Commit(ctx context.Context, currentManifest *Manifest, reader *memfsa.Reader, deletions *DeletionIndex) (*CommitResult, error) {
	start := time.Now()
	if currentManifest == nil {
		currentManifest = EmptyManifest()
	}
	newGeneration := currentManifest.Generation + 1
	segmentID := uuid.NewString()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("commit cancelled before write: %w", err)
	}

	c.logger.Info("commit: write", "segment", segmentID, "generation", newGeneration)
	if err := c.writeSegment(segmentID, reader, deletions); err != nil {
		c.rollback(segmentID)
		return nil, fmt.Errorf("commit write: %w", err)
	}

	if err := ctx.Err(); err != nil {
		c.rollback(segmentID)
		return nil, fmt.Errorf("commit cancelled before verify: %w", err)
	}
	meta, err := c.verifySegment(segmentID, newGeneration, reader, deletions)
	if err != nil {
		c.rollback(segmentID)
		return nil, fmt.Errorf("commit verify: %w", err)
	}

	c.logger.Info("commit: install", "segment", segmentID)
	if err := c.installSegment(segmentID); err != nil {
		c.rollback(segmentID)
		return nil, fmt.Errorf("commit install: %w", err)
	}

	newManifest := c.buildManifest(currentManifest, newGeneration, meta)
	c.logger.Info("commit: manifest", "generation", newGeneration)
	if err := WriteManifest(c.dir, newManifest); err != nil {
		return nil, fmt.Errorf("commit manifest: %w", err)
	}

	c.logger.Info("commit: activation", "generation", newGeneration)
	if err := WriteCurrentGeneration(c.dir, newGeneration); err != nil {
		return nil, fmt.Errorf("commit activation: %w", err)
	}

	if _, err := storage.RemoveDirContents(c.dir.TmpDir()); err != nil {
		c.logger.Warn("commit cleanup: non-fatal error", "error", err)
	}

	return &CommitResult{
		Generation: newGeneration,
		SegmentID:  segmentID,
		Duration:   time.Since(start),
	}, nil
}

func (c *Committer) writeSegment(segmentID string, reader *memfsa.Reader, deletions *DeletionIndex) error {
	tmpDir := c.dir.TmpSegmentDir(segmentID)
	if err := storage.EnsureDir(tmpDir); err != nil {
		return fmt.Errorf("create tmp segment dir: %w", err)
	}

	fsaPath := c.dir.TmpSegmentFile(segmentID, FSAFileName)
	if err := reader.Save(fsaPath, tmpDir); err != nil {
		return fmt.Errorf("write %s: %w", FSAFileName, err)
	}

	if deletions == nil {
		deletions = NewDeletionIndex()
	}
	delPath := c.dir.TmpSegmentFile(segmentID, DeletionsFileName)
	if err := deletions.Save(segmentID, delPath, tmpDir); err != nil {
		return fmt.Errorf("write %s: %w", DeletionsFileName, err)
	}

	if err := storage.FsyncDir(tmpDir); err != nil {
		return fmt.Errorf("fsync tmp segment dir: %w", err)
	}
	return nil
}

// verifySegment re-reads each file just written and recomputes its
// checksum, catching any write that silently truncated or corrupted data
// before it is installed as immutable.
func (c *Committer) verifySegment(segmentID string, generation uint64, reader *memfsa.Reader, deletions *DeletionIndex) (Meta, error) {
	tmpDir := c.dir.TmpSegmentDir(segmentID)
	files := make(map[string]FileMeta, 2)
	var total uint64
	for _, name := range []string{FSAFileName, DeletionsFileName} {
		path := filepath.Join(tmpDir, name)
		if _, err := readChecksummed(path); err != nil {
			return Meta{}, fmt.Errorf("verify %s: %w", name, err)
		}
		info, err := os.Stat(path)
		if err != nil {
			return Meta{}, fmt.Errorf("stat %s: %w", name, err)
		}
		sum, err := storage.ComputeFileChecksum(path)
		if err != nil {
			return Meta{}, fmt.Errorf("checksum %s: %w", name, err)
		}
		files[name] = FileMeta{Size: info.Size(), Checksum: sum}
		total += uint64(info.Size())
	}

	var deletedCount uint32
	if deletions != nil {
		deletedCount = deletions.Count(segmentID)
	}

	return Meta{
		ID:                segmentID,
		GenerationCreated: generation,
		KeyCount:          uint32(reader.KeyCount()),
		DeletedCount:      deletedCount,
		SizeBytes:         total,
		Files:             files,
	}, nil
}

func (c *Committer) installSegment(segmentID string) error {
	src := c.dir.TmpSegmentDir(segmentID)
	dst := c.dir.SegmentDir(segmentID)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("rename segment %s -> %s: %w", src, dst, err)
	}
	if err := storage.FsyncDir(c.dir.SegmentsDir()); err != nil {
		return fmt.Errorf("fsync segments dir: %w", err)
	}
	return nil
}

func (c *Committer) rollback(segmentID string) {
	segDir := c.dir.TmpSegmentDir(segmentID)
	if err := os.RemoveAll(segDir); err != nil {
		c.logger.Warn("rollback: failed to remove tmp segment dir", "path", segDir, "error", err)
	}
}

func (c *Committer) buildManifest(prev *Manifest, gen uint64, newSeg Meta) *Manifest {
	segments := make([]Meta, 0, len(prev.Segments)+1)
	segments = append(segments, prev.Segments...)
	segments = append(segments, newSeg)

	var totalKeys, totalAlive, totalSize uint64
	for _, s := range segments {
		totalKeys += uint64(s.KeyCount)
		totalAlive += uint64(s.KeyCount) - uint64(s.DeletedCount)
		totalSize += s.SizeBytes
	}

	return &Manifest{
		Generation:         gen,
		PreviousGeneration: prev.Generation,
		Timestamp:          time.Now().UTC(),
		CommitID:           uuid.NewString(),
		Segments:           segments,
		TotalKeys:          totalKeys,
		TotalKeysAlive:     totalAlive,
		TotalSizeBytes:     totalSize,
	}
}
