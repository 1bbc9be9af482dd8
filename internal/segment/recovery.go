package segment

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"fsadict/internal/storage"
)

// ErrRecoveryImpossible is returned when no manifest generation has a fully
// intact segment set.
var ErrRecoveryImpossible = errors.New("recovery impossible: no valid manifest with intact segments found")

// RecoveryOptions configures Recover.
type RecoveryOptions struct {
	// VerifySegmentChecksums re-checksums every segment file, not just its
	// presence. More thorough, more expensive on a large store.
	VerifySegmentChecksums bool
	// ManifestRetention is how many manifest generations to keep besides
	// the current one; older ones are pruned.
	ManifestRetention int
	Logger            *slog.Logger
}

// RecoveryResult is the outcome of crash recovery.
type RecoveryResult struct {
	Generation       uint64
	Manifest         *Manifest
	OrphansRemoved   []string
	ManifestsRemoved []uint64
	TmpFilesRemoved  []string
	FellBack         bool
	FellBackFrom     uint64
}

// Recover runs the store's crash-recovery protocol: read the published
// generation, load and validate its manifest (falling back to earlier
// generations if it or its segments are corrupt), clean scratch state, and
// remove orphaned segment directories and stale manifests. Must be called
// during startup, before the store accepts matches or commits. Trimmed
// from the teacher's 9-step recovery — no positions/stored-field files to
// verify per segment.
func Recover(dir *Dir, opts RecoveryOptions) (*RecoveryResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	result := &RecoveryResult{}

	generation, err := ReadCurrentGeneration(dir)
	if err != nil {
		return nil, fmt.Errorf("recovery: read generation: %w", err)
	}
	if generation == 0 {
		removed, _ := storage.RemoveDirContents(dir.TmpDir())
		result.TmpFilesRemoved = removed
		logger.Info("recovery: empty store")
		return result, nil
	}

	manifest, actualGen, err := LoadManifestWithFallback(dir, generation, logger)
	if err != nil {
		return nil, fmt.Errorf("recovery: load manifest: %w", err)
	}
	if actualGen != generation {
		result.FellBack, result.FellBackFrom = true, generation
	}

	corrupt := verifySegments(dir, manifest, opts.VerifySegmentChecksums, logger)
	if len(corrupt) > 0 {
		prevGen := actualGen
		manifest, actualGen, err = fallbackToIntactGeneration(dir, actualGen, opts.VerifySegmentChecksums, logger)
		if err != nil {
			return nil, fmt.Errorf("recovery: fall back from corrupt segments: %w", err)
		}
		result.FellBack, result.FellBackFrom = true, prevGen
		if err := WriteCurrentGeneration(dir, actualGen); err != nil {
			return nil, fmt.Errorf("recovery: republish fallback generation: %w", err)
		}
	}

	removed, err := storage.RemoveDirContents(dir.TmpDir())
	if err != nil {
		logger.Warn("recovery: non-fatal error cleaning tmp", "error", err)
	}
	result.TmpFilesRemoved = removed

	orphans, err := identifyOrphans(dir, manifest)
	if err != nil {
		logger.Warn("recovery: non-fatal error identifying orphans", "error", err)
	}
	if len(orphans) > 0 {
		removeOrphans(dir, orphans, logger)
		result.OrphansRemoved = orphans
	}

	removedManifests, err := pruneOldManifests(dir, actualGen, opts.ManifestRetention, logger)
	if err != nil {
		logger.Warn("recovery: non-fatal error pruning manifests", "error", err)
	}
	result.ManifestsRemoved = removedManifests

	result.Generation = actualGen
	result.Manifest = manifest

	logger.Info("recovery complete",
		"generation", actualGen,
		"segments", len(manifest.Segments),
		"orphans_removed", len(result.OrphansRemoved),
		"manifests_removed", len(result.ManifestsRemoved),
	)
	return result, nil
}

func verifySegments(dir *Dir, manifest *Manifest, verifyChecksums bool, logger *slog.Logger) []string {
	var corrupt []string
	for _, seg := range manifest.Segments {
		segDir := dir.SegmentDir(seg.ID)
		if !storage.DirExists(segDir) {
			logger.Error("segment directory missing", "segment", seg.ID)
			corrupt = append(corrupt, seg.ID)
			continue
		}
		if !verifyChecksums {
			continue
		}
		for name, meta := range seg.Files {
			path := dir.SegmentFile(seg.ID, name)
			if err := storage.VerifyFileChecksum(path, meta.Checksum); err != nil {
				logger.Error("segment file checksum mismatch", "segment", seg.ID, "file", name, "error", err)
				corrupt = append(corrupt, seg.ID)
				break
			}
		}
	}
	return corrupt
}

func fallbackToIntactGeneration(dir *Dir, currentGen uint64, verifyChecksums bool, logger *slog.Logger) (*Manifest, uint64, error) {
	for gen := currentGen - 1; gen >= 1; gen-- {
		m, err := LoadManifest(dir, gen)
		if err != nil {
			logger.Warn("earlier manifest load failed", "generation", gen, "error", err)
			continue
		}
		if len(verifySegments(dir, m, verifyChecksums, logger)) == 0 {
			logger.Info("recovery: fell back to earlier generation", "generation", gen)
			return m, gen, nil
		}
	}
	return nil, 0, ErrRecoveryImpossible
}

func identifyOrphans(dir *Dir, manifest *Manifest) ([]string, error) {
	onDisk, err := storage.ListSubdirs(dir.SegmentsDir())
	if err != nil {
		return nil, err
	}
	referenced := make(map[string]bool, len(manifest.Segments))
	for _, seg := range manifest.Segments {
		referenced[seg.ID] = true
	}
	var orphans []string
	for _, name := range onDisk {
		if !referenced[name] {
			orphans = append(orphans, name)
		}
	}
	return orphans, nil
}

func removeOrphans(dir *Dir, orphans []string, logger *slog.Logger) {
	for _, id := range orphans {
		path := dir.SegmentDir(id)
		if err := os.RemoveAll(path); err != nil {
			logger.Error("failed to remove orphan segment", "segment", id, "error", err)
			continue
		}
		logger.Info("removed orphan segment", "segment", id)
	}
}

func pruneOldManifests(dir *Dir, currentGen uint64, retention int, logger *slog.Logger) ([]uint64, error) {
	files, err := storage.ListFiles(dir.ManifestsDir())
	if err != nil {
		return nil, err
	}
	var generations []uint64
	for _, f := range files {
		if gen, ok := parseManifestGeneration(f); ok {
			generations = append(generations, gen)
		}
	}
	sort.Slice(generations, func(i, j int) bool { return generations[i] > generations[j] })

	keep := 1 + retention
	if keep > len(generations) {
		return nil, nil
	}

	var removed []uint64
	for _, gen := range generations[keep:] {
		if err := os.Remove(dir.ManifestPath(gen)); err != nil {
			logger.Warn("failed to remove old manifest", "generation", gen, "error", err)
			continue
		}
		removed = append(removed, gen)
	}
	return removed, nil
}

func parseManifestGeneration(filename string) (uint64, bool) {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	if !strings.HasPrefix(name, "manifest_gen_") {
		return 0, false
	}
	gen, err := strconv.ParseUint(name[len("manifest_gen_"):], 10, 64)
	if err != nil {
		return 0, false
	}
	return gen, true
}
