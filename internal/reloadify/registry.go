// Package reloadify keeps typed configuration values loaded from files and
// reloads them when the file content changes.
//
// Values are registered with Add, read back with Get, and followed through
// the Subscription returned by Add. Each registration owns one background
// watcher; a failed reload never replaces the last good value.
package reloadify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/joshuarp/hotconfig/internal/shared/codec"
	"github.com/joshuarp/hotconfig/internal/shared/uid"
	"github.com/joshuarp/hotconfig/internal/shared/watch"
)

// WatcherFactory creates the change watcher of a registration.
type WatcherFactory func(opts watch.Options) (watch.Watcher, error)

// Registry maps configuration ids to their current values. A single
// reader/writer lock guards the whole map. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	cells  map[ConfigID]*cell
	closed bool

	logger     *slog.Logger
	decoder    codec.Decoder
	newWatcher WatcherFactory
	ids        uid.Generator
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for registrations and reloads.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDecoder replaces the built-in codecs.
func WithDecoder(decoder codec.Decoder) Option {
	return func(r *Registry) {
		if decoder != nil {
			r.decoder = decoder
		}
	}
}

// WithWatcherFactory replaces the change detection backend.
func WithWatcherFactory(factory WatcherFactory) Option {
	return func(r *Registry) {
		if factory != nil {
			r.newWatcher = factory
		}
	}
}

// WithIDGenerator sets the generator for subscription ids.
func WithIDGenerator(ids uid.Generator) Option {
	return func(r *Registry) {
		if ids != nil {
			r.ids = ids
		}
	}
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		cells:      make(map[ConfigID]*cell),
		logger:     slog.New(slog.DiscardHandler),
		decoder:    codec.New(),
		newWatcher: watch.New,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.ids == nil {
		r.ids, _ = uid.New(uid.Options{Strategy: uid.StrategyUUIDv7, Prefix: "sub"})
	}

	return r
}

// Add loads desc.Path, decodes it into T, starts watching the file and
// returns a Subscription whose first item is the decoded value.
//
// Registering an id that already exists never replaces the entry. With the
// same descriptor and T the returned Subscription follows the existing
// entry; otherwise ErrTypeMismatch or ErrAlreadyRegistered is returned.
func Add[T any](r *Registry, desc Descriptor) (*Subscription[T], error) {
	desc, err := desc.normalize()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if existing, ok := r.cells[desc.ID]; ok {
		sub, err := attach[T](r, existing, desc)
		r.mu.Unlock()
		return sub, err
	}
	r.mu.Unlock()

	c := newTypedCell[T](r, desc)

	raw, err := os.ReadFile(desc.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrLoad, desc.Path, err)
	}

	value, err := c.decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q as %T: %w", ErrDecode, desc.Path, *new(T), err)
	}
	c.value = value
	c.raw = raw
	c.updatedAt = time.Now().UTC()

	sub := newSubscription[T](r.nextSubscriptionID(), desc.ID)
	if err := sub.deliver(c.snapshot()); err != nil {
		return nil, err
	}
	c.subs = []subscriber{sub}

	watcher, err := r.newWatcher(watch.Options{
		Path:          desc.Path,
		Strategy:      desc.Backend,
		PollInterval:  desc.PollInterval,
		InitialDigest: watch.Digest(raw),
		Logger:        r.logger.With("config_id", desc.ID.String()),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrWatch, desc.Path, err)
	}
	c.watcher = watcher

	// Events raised before the cell is inserted wait on ready so that a
	// change racing with registration is not dropped.
	ready := make(chan struct{})
	handler := func(event watch.Event) {
		<-ready
		r.reload(c, event)
	}
	if err := watcher.Start(handler); err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrWatch, desc.Path, err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		close(ready)
		_ = watcher.Stop()
		return nil, ErrClosed
	}
	if existing, ok := r.cells[desc.ID]; ok {
		// lost a concurrent Add for the same id
		attached, err := attach[T](r, existing, desc)
		r.mu.Unlock()
		close(ready)
		_ = watcher.Stop()
		return attached, err
	}
	r.cells[desc.ID] = c
	r.mu.Unlock()
	close(ready)

	r.logger.Info("config registered",
		"config_id", desc.ID.String(),
		"path", desc.Path,
		"format", desc.Format.String(),
		"backend", string(desc.Backend),
		"type", c.typ.String(),
	)

	return sub, nil
}

// attach must be called with r.mu held for writing.
func attach[T any](r *Registry, existing *cell, desc Descriptor) (*Subscription[T], error) {
	if want := reflect.TypeFor[T](); existing.typ != want {
		return nil, fmt.Errorf("%w: %q registered as %s, requested %s", ErrTypeMismatch, desc.ID, existing.typ, want)
	}
	if !existing.desc.sameSource(desc) {
		return nil, fmt.Errorf("%w: %q", ErrAlreadyRegistered, desc.ID)
	}

	sub := newSubscription[T](r.nextSubscriptionID(), desc.ID)
	if err := sub.deliver(existing.snapshot()); err != nil {
		return nil, err
	}
	existing.subs = append(existing.subs, sub)

	r.logger.Debug("subscription attached", "config_id", desc.ID.String(), "subscription_id", sub.ID())
	return sub, nil
}

// Get returns a copy of the current value of id as T.
func Get[T any](r *Registry, id ConfigID) (T, error) {
	var zero T

	r.mu.RLock()
	c, ok := r.cells[id]
	if !ok {
		r.mu.RUnlock()
		return zero, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	if want := reflect.TypeFor[T](); c.typ != want {
		r.mu.RUnlock()
		return zero, fmt.Errorf("%w: %q registered as %s, requested %s", ErrTypeMismatch, id, c.typ, want)
	}

	// update swaps value and raw rather than mutating them, so copying after
	// the unlock still sees one consistent pair.
	current, raw := c.value, c.raw
	r.mu.RUnlock()

	value, ok := c.clone(current, raw).(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrTypeMismatch, id)
	}
	return value, nil
}

// Remove stops watching id and closes its subscriptions.
func (r *Registry) Remove(id ConfigID) error {
	r.mu.Lock()
	c, ok := r.cells[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	delete(r.cells, id)
	subs := c.subs
	c.subs = nil
	r.mu.Unlock()

	err := teardown(c, subs)
	r.logger.Info("config removed", "config_id", id.String())
	return err
}

// Close removes every entry. Add fails with ErrClosed afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	cells := r.cells
	r.cells = make(map[ConfigID]*cell)

	subs := make(map[*cell][]subscriber, len(cells))
	for _, c := range cells {
		subs[c] = c.subs
		c.subs = nil
	}
	r.mu.Unlock()

	var errs []error
	for _, c := range cells {
		if err := teardown(c, subs[c]); err != nil {
			errs = append(errs, err)
		}
	}

	r.logger.Info("registry closed", "configs", len(cells))
	return errors.Join(errs...)
}

// teardown runs without r.mu: Stop waits for an in-flight reload, which
// itself needs the lock.
func teardown(c *cell, subs []subscriber) error {
	var err error
	if c.watcher != nil {
		if stopErr := c.watcher.Stop(); stopErr != nil {
			err = fmt.Errorf("reloadify: stop watcher for %q: %w", c.desc.ID, stopErr)
		}
	}
	for _, sub := range subs {
		sub.closeProducer()
	}
	return err
}

// Entries lists the registered configurations ordered by id.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.cells))
	for _, c := range r.cells {
		entries = append(entries, c.info())
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}

// Len returns the number of registered configurations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cells)
}

func (r *Registry) nextSubscriptionID() string {
	id, err := r.ids.Generate(context.Background())
	if err != nil {
		r.logger.Warn("subscription id generation failed", "error", err)
		return ""
	}
	return id
}
