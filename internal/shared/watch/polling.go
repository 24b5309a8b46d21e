package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var _ Watcher = (*pollingWatcher)(nil)

type pollingWatcher struct {
	opts     Options
	detector *contentDetector

	mu      sync.Mutex
	state   lifecycle
	handler Handler
}

func newPolling(opts Options) *pollingWatcher {
	return &pollingWatcher{
		opts:     opts,
		detector: newContentDetector(opts.Path, opts.InitialDigest),
		state:    newLifecycle(),
	}
}

func (w *pollingWatcher) Path() string { return w.opts.Path }

func (w *pollingWatcher) Start(handler Handler) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state.stopped {
		return ErrStopped
	}
	if w.state.started {
		return ErrAlreadyStarted
	}

	dir := filepath.Dir(w.opts.Path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("watch: stat %q: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch: %q is not a directory", dir)
	}

	w.detector.seed()
	w.handler = handler
	w.state.started = true

	go w.loop()

	w.opts.Logger.Debug("polling watch started", "path", w.opts.Path, "interval", w.opts.PollInterval)
	return nil
}

func (w *pollingWatcher) Stop() error {
	w.mu.Lock()
	if w.state.stopped {
		w.mu.Unlock()
		return nil
	}
	w.state.stopped = true
	started := w.state.started
	close(w.state.stopCh)
	w.mu.Unlock()

	if started {
		<-w.state.stoppedCh
	}
	return nil
}

func (w *pollingWatcher) loop() {
	defer close(w.state.stoppedCh)

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.state.stopCh:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *pollingWatcher) poll() {
	event, changed, err := w.detector.check()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			w.opts.Logger.Warn("polling watch read failed", "path", w.opts.Path, "error", err)
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
