package segment

import (
	"context"
	"log/slog"
	"testing"

	"fsadict/internal/fsa"
	"fsadict/internal/memfsa"
	"fsadict/internal/storage"
)

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func buildReader(t *testing.T, kv map[string]string) *memfsa.Reader {
	t.Helper()
	b := memfsa.NewBuilder()
	for k, v := range kv {
		b.Insert([]byte(k), []byte(v))
	}
	r, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return r
}

func newTestDir(t *testing.T) *Dir {
	t.Helper()
	dir := NewDir(t.TempDir())
	if err := dir.Init(); err != nil {
		t.Fatalf("init dir: %v", err)
	}
	return dir
}

func TestCommitFirstSegment(t *testing.T) {
	dir := newTestDir(t)
	reader := buildReader(t, map[string]string{"cat": "1", "car": "2"})
	c := NewCommitter(dir, testLogger())

	result, err := c.Commit(context.Background(), nil, reader, NewDeletionIndex())
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if result.Generation != 1 {
		t.Errorf("generation = %d, want 1", result.Generation)
	}
	if !storage.DirExists(dir.SegmentDir(result.SegmentID)) {
		t.Errorf("segment dir missing: %s", result.SegmentID)
	}
	for _, name := range []string{FSAFileName, DeletionsFileName} {
		if !storage.FileExists(dir.SegmentFile(result.SegmentID, name)) {
			t.Errorf("segment file missing: %s", name)
		}
	}

	gen, err := ReadCurrentGeneration(dir)
	if err != nil {
		t.Fatalf("read current generation: %v", err)
	}
	if gen != 1 {
		t.Errorf("published generation = %d, want 1", gen)
	}

	m, err := LoadManifest(dir, 1)
	if err != nil {
		t.Fatalf("load manifest: %v", err)
	}
	if len(m.Segments) != 1 || m.Segments[0].KeyCount != 2 {
		t.Errorf("manifest segments = %+v", m.Segments)
	}
}

func TestCommitSecondSegmentAppendsToManifest(t *testing.T) {
	dir := newTestDir(t)
	c := NewCommitter(dir, testLogger())

	first, err := c.Commit(context.Background(), nil, buildReader(t, map[string]string{"a": "1"}), NewDeletionIndex())
	if err != nil {
		t.Fatalf("first commit: %v", err)
	}
	m1, err := LoadManifest(dir, first.Generation)
	if err != nil {
		t.Fatalf("load manifest 1: %v", err)
	}

	second, err := c.Commit(context.Background(), m1, buildReader(t, map[string]string{"b": "2"}), NewDeletionIndex())
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if second.Generation != 2 {
		t.Errorf("generation = %d, want 2", second.Generation)
	}

	m2, err := LoadManifest(dir, 2)
	if err != nil {
		t.Fatalf("load manifest 2: %v", err)
	}
	if len(m2.Segments) != 2 {
		t.Fatalf("expected 2 segments carried forward, got %d", len(m2.Segments))
	}
	if m2.PreviousGeneration != 1 {
		t.Errorf("previous generation = %d, want 1", m2.PreviousGeneration)
	}
}

func TestRecoverEmptyStore(t *testing.T) {
	dir := newTestDir(t)
	result, err := Recover(dir, RecoveryOptions{Logger: testLogger()})
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if result.Generation != 0 {
		t.Errorf("generation = %d, want 0", result.Generation)
	}
}

func TestRecoverAfterCommitReplaysManifest(t *testing.T) {
	dir := newTestDir(t)
	c := NewCommitter(dir, testLogger())
	if _, err := c.Commit(context.Background(), nil, buildReader(t, map[string]string{"x": "1"}), NewDeletionIndex()); err != nil {
		t.Fatalf("commit: %v", err)
	}

	result, err := Recover(dir, RecoveryOptions{VerifySegmentChecksums: true, Logger: testLogger()})
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if result.Generation != 1 {
		t.Errorf("generation = %d, want 1", result.Generation)
	}
	if len(result.Manifest.Segments) != 1 {
		t.Errorf("segments = %d, want 1", len(result.Manifest.Segments))
	}
	if result.FellBack {
		t.Error("should not have fallen back on an intact store")
	}
}

func TestRecoverFallsBackFromCorruptSegment(t *testing.T) {
	dir := newTestDir(t)
	c := NewCommitter(dir, testLogger())
	first, err := c.Commit(context.Background(), nil, buildReader(t, map[string]string{"x": "1"}), NewDeletionIndex())
	if err != nil {
		t.Fatalf("commit 1: %v", err)
	}
	m1, err := LoadManifest(dir, first.Generation)
	if err != nil {
		t.Fatalf("load manifest 1: %v", err)
	}
	second, err := c.Commit(context.Background(), m1, buildReader(t, map[string]string{"y": "2"}), NewDeletionIndex())
	if err != nil {
		t.Fatalf("commit 2: %v", err)
	}

	// Corrupt the second commit's new segment; the first generation is
	// still fully intact and should be recovered instead.
	m2, err := LoadManifest(dir, second.Generation)
	if err != nil {
		t.Fatalf("load manifest 2: %v", err)
	}
	var newestID string
	for _, s := range m2.Segments {
		if s.GenerationCreated == second.Generation {
			newestID = s.ID
		}
	}
	if err := storage.AtomicWriteFile(dir.SegmentFile(newestID, FSAFileName), []byte("garbage"), dir.TmpDir()); err != nil {
		t.Fatalf("corrupt segment: %v", err)
	}

	result, err := Recover(dir, RecoveryOptions{VerifySegmentChecksums: true, Logger: testLogger()})
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !result.FellBack {
		t.Error("expected recovery to fall back a generation")
	}
	if result.Generation != first.Generation {
		t.Errorf("generation = %d, want %d", result.Generation, first.Generation)
	}
}

func TestRecoverRemovesOrphanSegmentDirectory(t *testing.T) {
	dir := newTestDir(t)
	c := NewCommitter(dir, testLogger())
	if _, err := c.Commit(context.Background(), nil, buildReader(t, map[string]string{"x": "1"}), NewDeletionIndex()); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := storage.EnsureDir(dir.SegmentDir("orphan-seg")); err != nil {
		t.Fatalf("create orphan: %v", err)
	}

	result, err := Recover(dir, RecoveryOptions{Logger: testLogger()})
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(result.OrphansRemoved) != 1 || result.OrphansRemoved[0] != "orphan-seg" {
		t.Errorf("orphans removed = %v, want [orphan-seg]", result.OrphansRemoved)
	}
	if storage.DirExists(dir.SegmentDir("orphan-seg")) {
		t.Error("orphan segment directory should have been removed")
	}
}

func TestManagerSnapshotIsolatesConcurrentDeletion(t *testing.T) {
	dir := newTestDir(t)
	c := NewCommitter(dir, testLogger())
	reader := buildReader(t, map[string]string{"a": "1", "b": "2"})
	result, err := c.Commit(context.Background(), nil, reader, NewDeletionIndex())
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	manifest, err := LoadManifest(dir, result.Generation)
	if err != nil {
		t.Fatalf("load manifest: %v", err)
	}

	deletions := NewDeletionIndex()
	mgr := NewManager(dir, deletions, manifest, testLogger())

	snap, err := mgr.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer snap.Release()

	segs := snap.Segments()
	if len(segs) != 1 {
		t.Fatalf("segments = %d, want 1", len(segs))
	}
	ordinal := segs[0].Reader.StateValue(walkTo(t, segs[0].Reader, "a"))

	// Deleting "a" after the snapshot was acquired must not be visible
	// through the snapshot's own deletion predicate.
	deletions.Delete(result.SegmentID, ordinal)

	if snap.Deleted()(result.SegmentID, ordinal) {
		t.Error("snapshot observed a deletion made after it was acquired")
	}
	if !deletions.IsDeleted(result.SegmentID, ordinal) {
		t.Error("live deletion index should reflect the delete")
	}

	fresh, err := mgr.Acquire()
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	defer fresh.Release()
	if !fresh.Deleted()(result.SegmentID, ordinal) {
		t.Error("a snapshot acquired after the delete should observe it")
	}
}

func TestManagerReclaimsUnpinnedDroppedSegment(t *testing.T) {
	dir := newTestDir(t)
	c := NewCommitter(dir, testLogger())
	first, err := c.Commit(context.Background(), nil, buildReader(t, map[string]string{"a": "1"}), NewDeletionIndex())
	if err != nil {
		t.Fatalf("commit 1: %v", err)
	}
	m1, err := LoadManifest(dir, first.Generation)
	if err != nil {
		t.Fatalf("load manifest 1: %v", err)
	}

	mgr := NewManager(dir, NewDeletionIndex(), m1, testLogger())
	snap, err := mgr.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// A compaction-style manifest that drops the original segment while a
	// snapshot still holds it should not report it reclaimable yet.
	compacted := &Manifest{Generation: 2, PreviousGeneration: 1, Segments: []Meta{}}
	reclaimable := mgr.UpdateGeneration(compacted)
	if len(reclaimable) != 0 {
		t.Errorf("segment should not be reclaimable while pinned, got %v", reclaimable)
	}

	if err := snap.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := mgr.Reclaimable(); len(got) != 1 || got[0] != first.SegmentID {
		t.Errorf("reclaimable after release = %v, want [%s]", got, first.SegmentID)
	}
}

func walkTo(t *testing.T, r fsa.Reader, key string) fsa.State {
	t.Helper()
	state := r.Start()
	for _, b := range []byte(key) {
		state = r.TryWalk(state, b)
		if state == fsa.NoState {
			t.Fatalf("no transition for %q at byte %q", key, b)
		}
	}
	return state
}
