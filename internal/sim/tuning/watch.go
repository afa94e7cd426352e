package tuning

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReloadDebounce coalesces the burst of events an editor save produces. The
// window opens on the first event and is not extended by later ones, so a
// file that keeps changing still reloads once per window.
const ReloadDebounce = 200 * time.Millisecond

// Watch reloads path whenever it changes and hands every valid result to
// onChange. Invalid edits are logged and skipped; the last good tuning stays
// in effect. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, log *zap.Logger, onChange func(Tuning)) error {
	if log == nil {
		log = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tuning watch: %w", err)
	}
	defer fw.Close()

	// Watch the directory: editors often replace the file instead of writing it.
	path = filepath.Clean(path)
	if err := fw.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("tuning watch %s: %w", path, err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pending == nil {
				pending = time.After(ReloadDebounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn("tuning watcher error", zap.Error(err))

		case <-pending:
			pending = nil
			t, err := Load(path)
			if err != nil {
				log.Warn("tuning reload rejected", zap.String("path", path), zap.Error(err))
				continue
			}
			log.Info("tuning reloaded", zap.String("path", path))
			onChange(t)
		}
	}
}
