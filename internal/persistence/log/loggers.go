package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelmind.ai/internal/sim/nav"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst under baseDir.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	// NowFn overrides the clock used for rotation.
	NowFn func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) now() time.Time {
	if w.NowFn != nil {
		return w.NowFn()
	}
	return time.Now()
}

func (w *JSONLZstdWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour || w.w == nil {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Flush pushes buffered lines into the compressor.
func (w *JSONLZstdWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// PathLogger records navigation debug snapshots and incidents as two JSONL
// streams. It is a nav.Sink; write failures are counted, not returned.
type PathLogger struct {
	debug     *JSONLZstdWriter
	incidents *JSONLZstdWriter
	every     uint64
	failures  atomic.Uint64
}

// NewPathLogger writes under dir/paths and dir/incidents. every thins the
// debug stream to ticks divisible by it; zero or one keeps every tick.
func NewPathLogger(dir string, every uint64) *PathLogger {
	return &PathLogger{
		debug:     NewJSONLZstdWriter(filepath.Join(dir, "paths"), "paths"),
		incidents: NewJSONLZstdWriter(filepath.Join(dir, "incidents"), "incidents"),
		every:     every,
	}
}

func (l *PathLogger) PathDebug(s nav.DebugSnapshot) {
	if l.every > 1 && s.Tick%l.every != 0 {
		return
	}
	if err := l.debug.Write(s); err != nil {
		l.failures.Add(1)
	}
}

func (l *PathLogger) PathIncident(i nav.Incident) {
	if err := l.incidents.Write(i); err != nil {
		l.failures.Add(1)
	}
}

func (l *PathLogger) Failures() uint64 { return l.failures.Load() }

func (l *PathLogger) Flush() error {
	if err := l.debug.Flush(); err != nil {
		return err
	}
	return l.incidents.Flush()
}

func (l *PathLogger) Close() error {
	err1 := l.debug.Close()
	err2 := l.incidents.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
