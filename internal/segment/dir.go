package segment

import (
	"fmt"
	"path/filepath"
	"strconv"

	"fsadict/internal/storage"
)

// Dir is the on-disk layout for one store: a manifest history, a set of
// immutable segment directories (each holding exactly two files, an FSA
// transition table and a deletion bitmap), and a scratch area for
// in-progress commits. Trimmed from the teacher's IndexDir/RootDir split —
// an FSA segment carries no positions or stored-field files, so one layer
// is enough.
type Dir struct {
	Root string
}

// NewDir wraps root as a Dir without touching the filesystem.
func NewDir(root string) *Dir { return &Dir{Root: root} }

// Init creates every directory Dir expects to exist.
func (d *Dir) Init() error {
	for _, p := range []string{d.SegmentsDir(), d.ManifestsDir(), d.TmpDir()} {
		if err := storage.EnsureDir(p); err != nil {
			return fmt.Errorf("init dir %s: %w", p, err)
		}
	}
	return nil
}

func (d *Dir) SegmentsDir() string  { return filepath.Join(d.Root, "segments") }
func (d *Dir) ManifestsDir() string { return filepath.Join(d.Root, "manifests") }
func (d *Dir) TmpDir() string       { return filepath.Join(d.Root, "tmp") }

func (d *Dir) SegmentDir(id string) string    { return filepath.Join(d.SegmentsDir(), id) }
func (d *Dir) TmpSegmentDir(id string) string { return filepath.Join(d.TmpDir(), id) }

func (d *Dir) SegmentFile(id, name string) string    { return filepath.Join(d.SegmentDir(id), name) }
func (d *Dir) TmpSegmentFile(id, name string) string { return filepath.Join(d.TmpSegmentDir(id), name) }

func (d *Dir) ManifestCurrentPath() string { return filepath.Join(d.Root, "manifest.current") }
func (d *Dir) ManifestNextPath() string    { return filepath.Join(d.TmpDir(), "manifest.next") }

func (d *Dir) ManifestPath(generation uint64) string {
	return filepath.Join(d.ManifestsDir(), "manifest_gen_"+strconv.FormatUint(generation, 10)+".json")
}

func (d *Dir) TmpManifestPath(generation uint64) string {
	return filepath.Join(d.TmpDir(), "manifest_gen_"+strconv.FormatUint(generation, 10)+".json")
}

// FSAFileName and DeletionsFileName are the two files every segment
// directory holds.
const (
	FSAFileName       = "fsa.bin"
	DeletionsFileName = "deletions.bin"
)
