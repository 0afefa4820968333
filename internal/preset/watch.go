package preset

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"mcpmux/pkg/logging"
)

// watcher wraps an fsnotify.Watcher with a debounce timer so that a burst
// of writes to the preset file (common with editors that write-then-
// rename) collapses into a single Reload call.
type watcher struct {
	fs      *fsnotify.Watcher
	timer   *time.Timer
	debounce time.Duration
}

const defaultDebounce = 500 * time.Millisecond

// Watch starts watching the preset file's directory for changes and calls
// s.Reload whenever the file settles after an edit. It blocks until ctx is
// cancelled.
func (s *Store) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	dir := filepath.Dir(s.path)
	if err := fsw.Add(dir); err != nil {
		return err
	}

	w := &watcher{fs: fsw, debounce: debounce}
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				if err := s.Reload(); err != nil {
					logging.Error("preset", err, "failed to reload preset file")
				}
			})

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logging.Error("preset", err, "preset file watcher error")
		}
	}
}
