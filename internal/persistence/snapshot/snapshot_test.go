package snapshot

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"voxelmind.ai/internal/sim/brain/memory"
)

func sampleSnapshot() SnapshotV1 {
	return SnapshotV1{
		Header:   Header{WorldID: "w1", Tick: 4200},
		Seed:     7,
		TickRate: 20,
		DayTicks: 24000,
		Height:   16,
		Mobs: []MobV1{
			{
				ID:        "a",
				Archetype: "settler",
				Pos:       [3]float64{1.5, 0, -2.5},
				Health:    17,
				Seed:      11,
				Memories: []memory.Entry{
					{Key: "last_slept", Value: json.RawMessage(`1234`), TTL: memory.NoExpiry},
					{Key: "home", Value: json.RawMessage(`{"X":1,"Y":0,"Z":2}`), TTL: 80},
				},
			},
			{ID: "b", Archetype: "raider", Health: 20},
		},
	}
}

func TestWriteReadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snaps", PathFor("", 4200))
	in := sampleSnapshot()
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}

	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	in.Header.Version = Version
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h != (Header{Version: Version, WorldID: "w1", Tick: 4200}) {
		t.Fatalf("header=%+v", h)
	}
}

func TestReadRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.snap.zst")
	snap := sampleSnapshot()
	snap.Header.Version = 9
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadSnapshot(path); !errors.Is(err, ErrVersion) {
		t.Fatalf("err=%v", err)
	}
}

func TestReadGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk")
	if err := os.WriteFile(path, []byte("not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPathForSortsByTick(t *testing.T) {
	a, b := PathFor("d", 999), PathFor("d", 10000)
	if !(a < b) {
		t.Fatalf("%s should sort before %s", a, b)
	}
}
