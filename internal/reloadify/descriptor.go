package reloadify

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/joshuarp/hotconfig/internal/shared/codec"
	"github.com/joshuarp/hotconfig/internal/shared/watch"
)

// ConfigID identifies one registration.
type ConfigID string

func (id ConfigID) String() string { return string(id) }

// Descriptor describes a file-backed configuration. It is immutable once
// passed to Add.
type Descriptor struct {
	ID     ConfigID
	Path   string
	Format codec.Format

	// PollInterval is the polling period for the polling backend and the
	// upper bound of the debounce delay for the native one.
	PollInterval time.Duration

	// Backend selects change detection. Empty means watch.StrategyNative.
	Backend watch.Strategy
}

func (d Descriptor) normalize() (Descriptor, error) {
	if d.ID == "" {
		return d, fmt.Errorf("%w: id is required", ErrInvalidDescriptor)
	}
	if d.Path == "" {
		return d, fmt.Errorf("%w: path is required for %q", ErrInvalidDescriptor, d.ID)
	}
	if !d.Format.Valid() {
		return d, fmt.Errorf("%w: unsupported format %q for %q", ErrInvalidDescriptor, d.Format, d.ID)
	}
	if d.PollInterval < 0 {
		return d, fmt.Errorf("%w: negative poll interval for %q", ErrInvalidDescriptor, d.ID)
	}

	backend, err := watch.ParseStrategy(string(d.Backend))
	if err != nil {
		return d, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}
	d.Backend = backend

	absPath, err := filepath.Abs(d.Path)
	if err != nil {
		return d, fmt.Errorf("%w: resolve %q: %w", ErrInvalidDescriptor, d.Path, err)
	}
	d.Path = absPath

	return d, nil
}

// sameSource reports whether two normalized descriptors watch the same file
// the same way.
func (d Descriptor) sameSource(other Descriptor) bool {
	return d.Path == other.Path &&
		d.Format == other.Format &&
		d.Backend == other.Backend &&
		d.PollInterval == other.PollInterval
}
