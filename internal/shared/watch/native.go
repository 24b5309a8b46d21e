package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

var _ Watcher = (*nativeWatcher)(nil)

// nativeWatcher watches the parent directory so that editors replacing the
// file through rename keep being observed.
type nativeWatcher struct {
	opts     Options
	detector *contentDetector

	mu      sync.Mutex
	fs      *fsnotify.Watcher
	state   lifecycle
	handler Handler
}

func newNative(opts Options) *nativeWatcher {
	return &nativeWatcher{
		opts:     opts,
		detector: newContentDetector(opts.Path, opts.InitialDigest),
		state:    newLifecycle(),
	}
}

func (w *nativeWatcher) Path() string { return w.opts.Path }

func (w *nativeWatcher) Start(handler Handler) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state.stopped {
		return ErrStopped
	}
	if w.state.started {
		return ErrAlreadyStarted
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	dir := filepath.Dir(w.opts.Path)
	if err := fsWatcher.Add(dir); err != nil {
		_ = fsWatcher.Close()
		return fmt.Errorf("watch: add %q: %w", dir, err)
	}

	w.detector.seed()
	w.fs = fsWatcher
	w.handler = handler
	w.state.started = true

	go w.loop()

	w.opts.Logger.Debug("native watch started", "path", w.opts.Path, "debounce", w.opts.Debounce)
	return nil
}

func (w *nativeWatcher) Stop() error {
	w.mu.Lock()
	if w.state.stopped {
		w.mu.Unlock()
		return nil
	}
	w.state.stopped = true
	started := w.state.started
	close(w.state.stopCh)
	w.mu.Unlock()

	if !started {
		return nil
	}

	<-w.state.stoppedCh
	return w.fs.Close()
}

func (w *nativeWatcher) loop() {
	defer close(w.state.stoppedCh)

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-w.state.stopCh:
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(w.opts.Debounce)
			debounceCh = debounceTimer.C

		case <-debounceCh:
			debounceCh = nil
			w.emit()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.opts.Logger.Error("native watch error", "path", w.opts.Path, "error", err)
		}
	}
}

// relevant keeps write and create events on the watched file. Chmod-only
// events never qualify; renames and removals are picked up when the file
// is created again.
func (w *nativeWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.opts.Path {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create) != 0
}

func (w *nativeWatcher) emit() {
	event, changed, err := w.detector.check()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			w.opts.Logger.Warn("native watch read failed", "path", w.opts.Path, "error", err)
		}
		return
	}
	if !changed {
		return
	}

	select {
	case <-w.state.stopCh:
		return
	default:
	}

	w.handler(event)
}
