package indexdb

import (
	"context"
	"path/filepath"
	"testing"

	"voxelmind.ai/internal/persistence/snapshot"
	"voxelmind.ai/internal/sim/brain/memory"
	"voxelmind.ai/internal/sim/level"
	"voxelmind.ai/internal/sim/nav"
	"voxelmind.ai/internal/sim/tuning"
)

func openTemp(t *testing.T) (*SQLiteIndex, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index", "nav.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx, path
}

func TestSQLiteIndex_IncidentsAreQueryable(t *testing.T) {
	idx, path := openTemp(t)
	var sink nav.Sink = idx
	sink.PathIncident(nav.Incident{Tick: 100, EntityID: "a", Kind: nav.IncidentStuck, Pos: level.Vec3{X: 1.5}, Target: level.BlockPos{X: 9}, Nodes: 12})
	sink.PathIncident(nav.Incident{Tick: 250, EntityID: "a", Kind: nav.IncidentTimeout, Target: level.BlockPos{Z: 4}, Nodes: 3})
	sink.PathIncident(nav.Incident{Tick: 300, EntityID: "b", Kind: nav.IncidentStuck})
	sink.PathDebug(nav.DebugSnapshot{Tick: 1})
	if err := idx.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	db, err := OpenReader(path)
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	all, err := ListIncidents(ctx, db, IncidentFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].EntityID != "b" || all[2].Tick != 100 {
		t.Fatalf("unexpected incidents: %+v", all)
	}
	if all[2].Pos.X != 1.5 || all[2].Target.X != 9 || all[2].Nodes != 12 {
		t.Fatalf("fields lost: %+v", all[2])
	}

	stuckA, err := ListIncidents(ctx, db, IncidentFilter{EntityID: "a", Kind: nav.IncidentStuck})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(stuckA) != 1 || stuckA[0].Tick != 100 {
		t.Fatalf("filtered=%+v", stuckA)
	}
	recent, err := ListIncidents(ctx, db, IncidentFilter{SinceTick: 200, Limit: 1})
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	if len(recent) != 1 || recent[0].Tick != 300 {
		t.Fatalf("recent=%+v", recent)
	}

	counts, err := CountIncidents(ctx, db, 0)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if len(counts) != 3 {
		t.Fatalf("counts=%+v", counts)
	}
}

func TestSQLiteIndex_SnapshotsAndTuning(t *testing.T) {
	idx, path := openTemp(t)
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{Tick: 600},
		Seed:   5,
		Mobs: []snapshot.MobV1{
			{ID: "a", Memories: []memory.Entry{{Key: "k"}, {Key: "j"}}},
			{ID: "b"},
		},
	}
	idx.RecordSnapshot("/data/600.snap.zst", snap)
	snap.Header.Tick = 1200
	idx.RecordSnapshot("/data/1200.snap.zst", snap)

	tu, err := tuning.Parse([]byte("tick_rate_hz: 5\n"))
	if err != nil {
		t.Fatalf("tuning: %v", err)
	}
	d1, err := idx.RecordTuning(tu)
	if err != nil {
		t.Fatalf("record tuning: %v", err)
	}
	d2, _ := idx.RecordTuning(tu)
	if d1 == "" || d1 != d2 {
		t.Fatalf("digest not stable: %q %q", d1, d2)
	}
	if err := idx.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	db, err := OpenReader(path)
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	defer db.Close()

	latest, ok, err := LatestSnapshot(context.Background(), db)
	if err != nil || !ok {
		t.Fatalf("latest: ok=%v err=%v", ok, err)
	}
	if latest.Tick != 1200 || latest.Mobs != 2 || latest.Memories != 2 || latest.Seed != 5 {
		t.Fatalf("latest=%+v", latest)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM tunings`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("tunings rows=%d err=%v", n, err)
	}
}

func TestSQLiteIndex_QueueDrops(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.PathIncident(nav.Incident{Tick: 1})
	s.PathIncident(nav.Incident{Tick: 2})
	s.RecordSnapshot("/tmp/x", snapshot.SnapshotV1{})
	if s.Dropped() != 2 {
		t.Fatalf("Dropped=%d want=2", s.Dropped())
	}
}

func TestSQLiteIndex_ClosedIsInert(t *testing.T) {
	idx, _ := openTemp(t)
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	idx.PathIncident(nav.Incident{Tick: 1})
	if err := idx.Flush(context.Background()); err != nil {
		t.Fatalf("flush after close: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestOpenReaderMissing(t *testing.T) {
	if _, err := OpenReader(filepath.Join(t.TempDir(), "none.sqlite")); err == nil {
		t.Fatalf("expected error")
	}
}
