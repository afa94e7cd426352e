package archive

import (
	"os"
	"path/filepath"
	"testing"

	"voxelmind.ai/internal/persistence/snapshot"
)

func writeDummy(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("dummy"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestArchiveDaySnapshot_CopiesBoundarySnapshot(t *testing.T) {
	worldDir := filepath.Join(t.TempDir(), "worlds", "w1")
	src := snapshot.PathFor(filepath.Join(worldDir, "snapshots"), 6)
	writeDummy(t, src)

	snap := snapshot.SnapshotV1{
		Header:   snapshot.Header{Version: snapshot.Version, WorldID: "w1", Tick: 6},
		Seed:     42,
		DayTicks: 3,
	}
	day, archivedPath, ok, err := ArchiveDaySnapshot(worldDir, src, snap)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !ok || day != 2 {
		t.Fatalf("archived=%v day=%d", ok, day)
	}
	got, err := os.ReadFile(archivedPath)
	if err != nil {
		t.Fatalf("read archived: %v", err)
	}
	if string(got) != "dummy" {
		t.Fatalf("archived content=%q", got)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(archivedPath), "meta.json")); err != nil {
		t.Fatalf("expected meta.json: %v", err)
	}
}

func TestArchiveDaySnapshot_SkipsMidDay(t *testing.T) {
	worldDir := t.TempDir()
	for _, tick := range []uint64{0, 4} {
		snap := snapshot.SnapshotV1{Header: snapshot.Header{Tick: tick}, DayTicks: 3}
		if _, _, ok, err := ArchiveDaySnapshot(worldDir, "unused", snap); ok || err != nil {
			t.Fatalf("tick %d: archived=%v err=%v", tick, ok, err)
		}
	}
	if _, err := os.Stat(filepath.Join(worldDir, "archives")); !os.IsNotExist(err) {
		t.Fatalf("archives dir created for a mid-day snapshot")
	}
}

func TestPruneSnapshotsKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	for _, tick := range []uint64{100, 20, 300, 4000} {
		writeDummy(t, snapshot.PathFor(dir, tick))
	}
	writeDummy(t, filepath.Join(dir, "notes.txt"))

	removed, err := PruneSnapshots(dir, 2)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("removed=%v", removed)
	}
	for _, tick := range []uint64{20, 100} {
		if _, err := os.Stat(snapshot.PathFor(dir, tick)); !os.IsNotExist(err) {
			t.Fatalf("tick %d should be pruned", tick)
		}
	}
	for _, tick := range []uint64{300, 4000} {
		if _, err := os.Stat(snapshot.PathFor(dir, tick)); err != nil {
			t.Fatalf("tick %d should remain: %v", tick, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Fatalf("unrelated file removed")
	}

	if removed, _ := PruneSnapshots(dir, 0); removed != nil {
		t.Fatalf("keep=0 removed %v", removed)
	}
}
