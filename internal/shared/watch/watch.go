// Package watch detects content changes of a single file, either through
// OS-native notifications (fsnotify) or by polling. Only byte-level content
// changes are reported: touches, permission changes and renames that leave
// the content untouched are suppressed.
package watch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Strategy defines which change detection backend to use.
type Strategy string

const (
	StrategyNative  Strategy = "native"
	StrategyPolling Strategy = "polling"
)

const (
	DefaultDebounce     = 50 * time.Millisecond
	DefaultPollInterval = time.Second
)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("watch: already started")

// ErrStopped is returned when Start is called after Stop.
var ErrStopped = errors.New("watch: stopped")

// Options configures a Watcher.
type Options struct {
	// Path is the watched file.
	Path string

	// Strategy selects the backend. Empty means StrategyNative.
	Strategy Strategy

	// PollInterval is the polling period (polling) or the upper bound of the
	// debounce delay (native). Zero uses DefaultPollInterval.
	PollInterval time.Duration

	// Debounce coalesces bursts of native events. Zero uses DefaultDebounce.
	Debounce time.Duration

	// InitialDigest is the digest of the content the caller already holds.
	// Zero makes the watcher seed itself from the file at Start.
	InitialDigest uint64

	Logger *slog.Logger
}

// Event reports a content change.
type Event struct {
	Path   string
	Digest uint64
	Size   int
	At     time.Time

	// Raw is the content Digest was computed over. Consumers decode Raw
	// rather than reading the file again.
	Raw []byte
}

// Handler receives qualifying events. Calls are serialized per Watcher.
type Handler func(Event)

// Watcher is the interface consumers depend on for change detection.
// Implementations must be safe for concurrent use.
type Watcher interface {
	// Start establishes the watch and begins delivering events to handler
	// from a background goroutine.
	Start(handler Handler) error

	// Stop ends the watch. It is idempotent and, once it returns, handler
	// is no longer invoked.
	Stop() error

	// Path returns the absolute path being watched.
	Path() string
}

// New creates a Watcher based on the provided options.
// Returns an error if the strategy is unknown or the path cannot be resolved.
func New(opts Options) (Watcher, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("watch: path is required")
	}

	absPath, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve %q: %w", opts.Path, err)
	}
	opts.Path = absPath

	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Debounce > opts.PollInterval {
		opts.Debounce = opts.PollInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	switch opts.Strategy {
	case "", StrategyNative:
		return newNative(opts), nil
	case StrategyPolling:
		return newPolling(opts), nil
	default:
		return nil, fmt.Errorf("watch: unknown strategy %q", opts.Strategy)
	}
}

// ParseStrategy maps a name to a Strategy; empty selects StrategyNative.
func ParseStrategy(value string) (Strategy, error) {
	switch Strategy(value) {
	case "", StrategyNative:
		return StrategyNative, nil
	case StrategyPolling:
		return StrategyPolling, nil
	default:
		return "", fmt.Errorf("watch: unknown strategy %q", value)
	}
}

// Digest returns the content digest used to detect changes.
func Digest(raw []byte) uint64 {
	return xxhash.Sum64(raw)
}

// contentDetector remembers the last seen digest of a file. It is owned by
// a single watch loop and needs no locking.
type contentDetector struct {
	path   string
	last   uint64
	seeded bool
}

func newContentDetector(path string, initial uint64) *contentDetector {
	d := &contentDetector{path: path}
	if initial != 0 {
		d.last = initial
		d.seeded = true
	}
	return d
}

// seed records the current content without reporting it.
func (d *contentDetector) seed() {
	if d.seeded {
		return
	}
	raw, err := os.ReadFile(d.path)
	if err != nil {
		return
	}
	d.last = Digest(raw)
	d.seeded = true
}

// check reads the file and reports whether its content differs from the
// last seen content.
func (d *contentDetector) check() (Event, bool, error) {
	raw, err := os.ReadFile(d.path)
	if err != nil {
		return Event{}, false, err
	}

	sum := Digest(raw)
	if d.seeded && sum == d.last {
		return Event{}, false, nil
	}
	d.last = sum
	d.seeded = true

	return Event{
		Path:   d.path,
		Digest: sum,
		Size:   len(raw),
		At:     time.Now().UTC(),
		Raw:    raw,
	}, true, nil
}

// lifecycle holds the start/stop bookkeeping shared by both backends.
type lifecycle struct {
	started   bool
	stopped   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func newLifecycle() lifecycle {
	return lifecycle{
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}
