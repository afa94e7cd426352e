package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelmind.ai/internal/sim/nav"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()
	var out []string
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan %s: %v", path, err)
	}
	return out
}

func TestJSONLZstdWriterRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "x")
	now := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.NowFn = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if err := w.Write(map[string]int{"i": i}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	now = now.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"i": 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "x-*.jsonl.zst"))
	sort.Strings(files)
	if len(files) != 2 {
		t.Fatalf("files=%v", files)
	}
	if filepath.Base(files[0]) != "x-2026-03-01-10.jsonl.zst" {
		t.Fatalf("first file=%s", files[0])
	}
	if got := readLines(t, files[0]); len(got) != 3 || got[2] != `{"i":2}` {
		t.Fatalf("first hour lines=%v", got)
	}
	if got := readLines(t, files[1]); len(got) != 1 {
		t.Fatalf("second hour lines=%v", got)
	}
}

func TestPathLoggerThinsDebugStream(t *testing.T) {
	dir := t.TempDir()
	l := NewPathLogger(dir, 10)
	var sink nav.Sink = l
	for tick := uint64(1); tick <= 30; tick++ {
		sink.PathDebug(nav.DebugSnapshot{Tick: tick, EntityID: "a"})
	}
	sink.PathIncident(nav.Incident{Tick: 31, EntityID: "a", Kind: nav.IncidentStuck})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if l.Failures() != 0 {
		t.Fatalf("failures=%d", l.Failures())
	}

	debugFiles, _ := filepath.Glob(filepath.Join(dir, "paths", "paths-*.jsonl.zst"))
	var ticks []uint64
	for _, f := range debugFiles {
		for _, line := range readLines(t, f) {
			var s nav.DebugSnapshot
			if err := json.Unmarshal([]byte(line), &s); err != nil {
				t.Fatalf("decode: %v", err)
			}
			ticks = append(ticks, s.Tick)
		}
	}
	if len(ticks) != 3 || ticks[0] != 10 || ticks[2] != 30 {
		t.Fatalf("debug ticks=%v", ticks)
	}

	incFiles, _ := filepath.Glob(filepath.Join(dir, "incidents", "incidents-*.jsonl.zst"))
	if len(incFiles) != 1 || len(readLines(t, incFiles[0])) != 1 {
		t.Fatalf("incident files=%v", incFiles)
	}
}
