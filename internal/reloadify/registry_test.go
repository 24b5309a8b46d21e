package reloadify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/joshuarp/hotconfig/internal/shared/codec"
	"github.com/joshuarp/hotconfig/internal/shared/watch"
)

type appConfig struct {
	A int `json:"a" yaml:"a"`
}

type labelsConfig struct {
	Labels map[string]string `json:"labels"`
	Hosts  []string          `json:"hosts"`
}

type fakeWatcher struct {
	path     string
	startErr error

	mu      sync.Mutex
	handler watch.Handler
	stopped bool
}

func (f *fakeWatcher) Start(handler watch.Handler) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
	return nil
}

func (f *fakeWatcher) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeWatcher) Path() string { return f.path }

func (f *fakeWatcher) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// fire delivers one event synchronously, like a watcher loop would.
func (f *fakeWatcher) fire() {
	f.mu.Lock()
	handler, stopped := f.handler, f.stopped
	f.mu.Unlock()
	if handler == nil || stopped {
		return
	}
	handler(watch.Event{Path: f.path, At: time.Now()})
}

type RegistrySuite struct {
	suite.Suite

	dir      string
	registry *Registry

	mu         sync.Mutex
	watchers   []*fakeWatcher
	factoryErr error
	startErr   error
}

func (s *RegistrySuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.watchers = nil
	s.factoryErr = nil
	s.startErr = nil
	s.registry = New(WithWatcherFactory(s.newWatcher))
}

func (s *RegistrySuite) TearDownTest() {
	require.NoError(s.T(), s.registry.Close())
}

func (s *RegistrySuite) newWatcher(opts watch.Options) (watch.Watcher, error) {
	if s.factoryErr != nil {
		return nil, s.factoryErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w := &fakeWatcher{path: opts.Path, startErr: s.startErr}
	s.watchers = append(s.watchers, w)
	return w, nil
}

func (s *RegistrySuite) watcher(i int) *fakeWatcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watchers[i]
}

func (s *RegistrySuite) writeFile(name, content string) string {
	path := filepath.Join(s.dir, name)
	require.NoError(s.T(), os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (s *RegistrySuite) descriptor(id, path string) Descriptor {
	return Descriptor{ID: ConfigID(id), Path: path, Format: codec.FormatJSON, PollInterval: time.Second}
}

func (s *RegistrySuite) TestAdd_InitialValue() {
	path := s.writeFile("cfg.json", `{"a":1}`)

	sub, err := Add[appConfig](s.registry, s.descriptor("cfg", path))
	require.NoError(s.T(), err)
	assert.NotEmpty(s.T(), sub.ID())
	assert.Equal(s.T(), ConfigID("cfg"), sub.ConfigID())

	got, err := Get[appConfig](s.registry, "cfg")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), appConfig{A: 1}, got)

	first, ok := sub.TryNext()
	require.True(s.T(), ok)
	assert.Equal(s.T(), appConfig{A: 1}, first)
	assert.Equal(s.T(), 0, sub.Pending())
}

func (s *RegistrySuite) TestReload_GoodThenMalformed() {
	path := s.writeFile("cfg.json", `{"a":1}`)

	sub, err := Add[appConfig](s.registry, s.descriptor("cfg", path))
	require.NoError(s.T(), err)
	_, _ = sub.TryNext()

	s.writeFile("cfg.json", `{"a":2}`)
	s.watcher(0).fire()

	got, err := Get[appConfig](s.registry, "cfg")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), appConfig{A: 2}, got)

	next, ok := sub.TryNext()
	require.True(s.T(), ok)
	assert.Equal(s.T(), appConfig{A: 2}, next)

	s.writeFile("cfg.json", `{"a":`)
	s.watcher(0).fire()

	got, err = Get[appConfig](s.registry, "cfg")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), appConfig{A: 2}, got)
	assert.Equal(s.T(), 0, sub.Pending())

	s.writeFile("cfg.json", `{"a":3}`)
	s.watcher(0).fire()
	next, ok = sub.TryNext()
	require.True(s.T(), ok)
	assert.Equal(s.T(), appConfig{A: 3}, next)
}

func (s *RegistrySuite) TestReload_MissingFileKeepsValue() {
	path := s.writeFile("cfg.json", `{"a":1}`)

	_, err := Add[appConfig](s.registry, s.descriptor("cfg", path))
	require.NoError(s.T(), err)

	require.NoError(s.T(), os.Remove(path))
	s.watcher(0).fire()

	got, err := Get[appConfig](s.registry, "cfg")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), appConfig{A: 1}, got)
	assert.Equal(s.T(), uint64(0), s.registry.Entries()[0].Reloads)
}

func (s *RegistrySuite) TestAdd_Errors_TableDriven() {
	tests := []struct {
		name  string
		setup func() Descriptor
		is    error
	}{
		{
			name:  "missing file",
			setup: func() Descriptor { return s.descriptor("cfg", filepath.Join(s.dir, "missing.json")) },
			is:    ErrLoad,
		},
		{
			name:  "malformed content",
			setup: func() Descriptor { return s.descriptor("cfg", s.writeFile("bad.json", `{"a":`)) },
			is:    ErrDecode,
		},
		{
			name:  "content of wrong shape",
			setup: func() Descriptor { return s.descriptor("cfg", s.writeFile("shape.json", `{"a":"one"}`)) },
			is:    ErrDecode,
		},
		{
			name: "watcher cannot be created",
			setup: func() Descriptor {
				s.factoryErr = errors.New("too many open files")
				return s.descriptor("cfg", s.writeFile("cfg.json", `{"a":1}`))
			},
			is: ErrWatch,
		},
		{
			name: "watcher cannot start",
			setup: func() Descriptor {
				s.startErr = errors.New("no such directory")
				return s.descriptor("cfg", s.writeFile("cfg.json", `{"a":1}`))
			},
			is: ErrWatch,
		},
		{
			name:  "empty id",
			setup: func() Descriptor { return s.descriptor("", s.writeFile("cfg.json", `{"a":1}`)) },
			is:    ErrInvalidDescriptor,
		},
		{
			name: "unknown format",
			setup: func() Descriptor {
				desc := s.descriptor("cfg", s.writeFile("cfg.json", `{"a":1}`))
				desc.Format = "hcl"
				return desc
			},
			is: ErrInvalidDescriptor,
		},
		{
			name: "unknown backend",
			setup: func() Descriptor {
				desc := s.descriptor("cfg", s.writeFile("cfg.json", `{"a":1}`))
				desc.Backend = "kqueue"
				return desc
			},
			is: ErrInvalidDescriptor,
		},
	}

	for _, tc := range tests {
		s.Run(tc.name, func() {
			s.factoryErr = nil
			s.startErr = nil

			sub, err := Add[appConfig](s.registry, tc.setup())
			require.Error(s.T(), err)
			assert.ErrorIs(s.T(), err, tc.is)
			assert.Nil(s.T(), sub)
			assert.Equal(s.T(), 0, s.registry.Len())

			_, err = Get[appConfig](s.registry, "cfg")
			assert.ErrorIs(s.T(), err, ErrNotFound)
		})
	}
}

func (s *RegistrySuite) TestGet_NotFound() {
	_, err := Get[appConfig](s.registry, "never-registered")
	require.Error(s.T(), err)
	assert.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *RegistrySuite) TestGet_TypeMismatch() {
	path := s.writeFile("cfg.json", `{"a":1}`)
	_, err := Add[appConfig](s.registry, s.descriptor("cfg", path))
	require.NoError(s.T(), err)

	_, err = Get[labelsConfig](s.registry, "cfg")
	assert.ErrorIs(s.T(), err, ErrTypeMismatch)

	_, err = Get[*appConfig](s.registry, "cfg")
	assert.ErrorIs(s.T(), err, ErrTypeMismatch)

	_, err = Get[map[string]any](s.registry, "cfg")
	assert.ErrorIs(s.T(), err, ErrTypeMismatch)
}

func (s *RegistrySuite) TestAdd_DuplicateSameDescriptorFollowsExistingEntry() {
	path := s.writeFile("cfg.json", `{"a":1}`)
	desc := s.descriptor("cfg", path)

	first, err := Add[appConfig](s.registry, desc)
	require.NoError(s.T(), err)

	s.writeFile("cfg.json", `{"a":2}`)
	s.watcher(0).fire()

	// the file on disk is ignored: the second Add follows the existing entry
	s.writeFile("cfg.json", `{"a":99}`)
	second, err := Add[appConfig](s.registry, desc)
	require.NoError(s.T(), err)
	assert.NotEqual(s.T(), first.ID(), second.ID())

	got, ok := second.TryNext()
	require.True(s.T(), ok)
	assert.Equal(s.T(), appConfig{A: 2}, got)

	s.mu.Lock()
	assert.Len(s.T(), s.watchers, 1)
	s.mu.Unlock()

	s.writeFile("cfg.json", `{"a":3}`)
	s.watcher(0).fire()

	got, ok = second.TryNext()
	require.True(s.T(), ok)
	assert.Equal(s.T(), appConfig{A: 3}, got)

	assert.Equal(s.T(), 3, first.Pending())
	assert.Equal(s.T(), 2, s.registry.Entries()[0].Listeners)
}

func (s *RegistrySuite) TestAdd_DuplicateConflicts() {
	path := s.writeFile("cfg.json", `{"a":1}`)
	_, err := Add[appConfig](s.registry, s.descriptor("cfg", path))
	require.NoError(s.T(), err)

	_, err = Add[labelsConfig](s.registry, s.descriptor("cfg", path))
	assert.ErrorIs(s.T(), err, ErrTypeMismatch)

	other := s.writeFile("other.json", `{"a":5}`)
	_, err = Add[appConfig](s.registry, s.descriptor("cfg", other))
	assert.ErrorIs(s.T(), err, ErrAlreadyRegistered)

	got, err := Get[appConfig](s.registry, "cfg")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), appConfig{A: 1}, got)
}

func (s *RegistrySuite) TestValuesAreNotShared() {
	path := s.writeFile("labels.json", `{"labels":{"env":"prod"},"hosts":["a","b"]}`)

	sub, err := Add[labelsConfig](s.registry, s.descriptor("labels", path))
	require.NoError(s.T(), err)

	delivered, ok := sub.TryNext()
	require.True(s.T(), ok)
	delivered.Labels["env"] = "dev"
	delivered.Hosts[0] = "z"

	got, err := Get[labelsConfig](s.registry, "labels")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "prod", got.Labels["env"])
	assert.Equal(s.T(), []string{"a", "b"}, got.Hosts)

	got.Labels["env"] = "staging"
	again, err := Get[labelsConfig](s.registry, "labels")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "prod", again.Labels["env"])
}

type countingConfig struct {
	A int `json:"a"`
}

var cloneCalls struct {
	sync.Mutex
	n int
}

func (c countingConfig) Clone() countingConfig {
	cloneCalls.Lock()
	cloneCalls.n++
	cloneCalls.Unlock()
	return c
}

func (s *RegistrySuite) TestCloner_IsPreferred() {
	cloneCalls.Lock()
	cloneCalls.n = 0
	cloneCalls.Unlock()

	path := s.writeFile("cfg.json", `{"a":7}`)
	_, err := Add[countingConfig](s.registry, s.descriptor("cfg", path))
	require.NoError(s.T(), err)

	got, err := Get[countingConfig](s.registry, "cfg")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 7, got.A)

	cloneCalls.Lock()
	defer cloneCalls.Unlock()
	assert.Equal(s.T(), 2, cloneCalls.n)
}

type pointerClonerConfig struct {
	A int `json:"a"`
}

var pointerClone struct {
	sync.Mutex
	calls         int
	registry      *Registry
	writerBlocked bool
}

func (c *pointerClonerConfig) Clone() pointerClonerConfig {
	pointerClone.Lock()
	defer pointerClone.Unlock()
	pointerClone.calls++
	if r := pointerClone.registry; r != nil {
		if r.mu.TryLock() {
			r.mu.Unlock()
		} else {
			pointerClone.writerBlocked = true
		}
	}
	return *c
}

func (s *RegistrySuite) TestCloner_PointerReceiverRunsOutsideLock() {
	pointerClone.Lock()
	pointerClone.calls = 0
	pointerClone.registry = nil
	pointerClone.writerBlocked = false
	pointerClone.Unlock()

	path := s.writeFile("cfg.json", `{"a":9}`)
	_, err := Add[pointerClonerConfig](s.registry, s.descriptor("cfg", path))
	require.NoError(s.T(), err)

	pointerClone.Lock()
	pointerClone.registry = s.registry
	pointerClone.Unlock()
	s.T().Cleanup(func() {
		pointerClone.Lock()
		pointerClone.registry = nil
		pointerClone.Unlock()
	})

	got, err := Get[pointerClonerConfig](s.registry, "cfg")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 9, got.A)

	pointerClone.Lock()
	defer pointerClone.Unlock()
	assert.Equal(s.T(), 2, pointerClone.calls)
	assert.False(s.T(), pointerClone.writerBlocked, "Get held the registry lock while copying")
}

func (s *RegistrySuite) TestRemove() {
	path := s.writeFile("cfg.json", `{"a":1}`)
	sub, err := Add[appConfig](s.registry, s.descriptor("cfg", path))
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.registry.Remove("cfg"))
	assert.True(s.T(), s.watcher(0).isStopped())

	_, err = Get[appConfig](s.registry, "cfg")
	assert.ErrorIs(s.T(), err, ErrNotFound)
	assert.ErrorIs(s.T(), s.registry.Remove("cfg"), ErrNotFound)

	// queued values drain before the closure is reported
	got, err := sub.Next(context.Background())
	require.NoError(s.T(), err)
	assert.Equal(s.T(), appConfig{A: 1}, got)

	_, err = sub.Next(context.Background())
	assert.ErrorIs(s.T(), err, ErrSubscriptionClosed)
}

func (s *RegistrySuite) TestRemove_ThenAddAgain() {
	path := s.writeFile("cfg.json", `{"a":1}`)
	_, err := Add[appConfig](s.registry, s.descriptor("cfg", path))
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.registry.Remove("cfg"))

	sub, err := Add[labelsConfig](s.registry, s.descriptor("cfg", s.writeFile("labels.json", `{"hosts":["x"]}`)))
	require.NoError(s.T(), err)
	_, _ = sub.TryNext()

	// the old watcher must not touch the new entry
	s.watchers[0].mu.Lock()
	stale := s.watchers[0].handler
	s.watchers[0].mu.Unlock()
	stale(watch.Event{Path: path})

	got, err := Get[labelsConfig](s.registry, "cfg")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), []string{"x"}, got.Hosts)
	assert.Equal(s.T(), 0, sub.Pending())
}

func (s *RegistrySuite) TestClose() {
	for _, id := range []string{"a", "b"} {
		_, err := Add[appConfig](s.registry, s.descriptor(id, s.writeFile(id+".json", `{"a":1}`)))
		require.NoError(s.T(), err)
	}

	require.NoError(s.T(), s.registry.Close())
	require.NoError(s.T(), s.registry.Close())

	assert.True(s.T(), s.watcher(0).isStopped())
	assert.True(s.T(), s.watcher(1).isStopped())
	assert.Equal(s.T(), 0, s.registry.Len())

	_, err := Add[appConfig](s.registry, s.descriptor("c", s.writeFile("c.json", `{"a":1}`)))
	assert.ErrorIs(s.T(), err, ErrClosed)
}

func (s *RegistrySuite) TestSubscriptionClose_Detaches() {
	path := s.writeFile("cfg.json", `{"a":1}`)
	sub, err := Add[appConfig](s.registry, s.descriptor("cfg", path))
	require.NoError(s.T(), err)

	sub.Close()
	_, ok := sub.TryNext()
	assert.False(s.T(), ok)

	s.writeFile("cfg.json", `{"a":2}`)
	s.watcher(0).fire()

	got, err := Get[appConfig](s.registry, "cfg")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), appConfig{A: 2}, got)
	assert.Equal(s.T(), 0, s.registry.Entries()[0].Listeners)
}

func (s *RegistrySuite) TestEntries() {
	_, err := Add[appConfig](s.registry, s.descriptor("zeta", s.writeFile("z.json", `{"a":1}`)))
	require.NoError(s.T(), err)

	yamlPath := s.writeFile("a.yaml", "a: 4\n")
	_, err = Add[appConfig](s.registry, Descriptor{
		ID:      "alpha",
		Path:    yamlPath,
		Format:  codec.FormatYAML,
		Backend: watch.StrategyPolling,
	})
	require.NoError(s.T(), err)

	entries := s.registry.Entries()
	require.Len(s.T(), entries, 2)
	assert.Equal(s.T(), ConfigID("alpha"), entries[0].ID)
	assert.Equal(s.T(), yamlPath, entries[0].Path)
	assert.Equal(s.T(), codec.FormatYAML, entries[0].Format)
	assert.Equal(s.T(), watch.StrategyPolling, entries[0].Backend)
	assert.Equal(s.T(), "reloadify.appConfig", entries[0].Type)
	assert.Equal(s.T(), ConfigID("zeta"), entries[1].ID)
	assert.Equal(s.T(), watch.StrategyNative, entries[1].Backend)
	assert.False(s.T(), entries[1].UpdatedAt.IsZero())
}

func (s *RegistrySuite) TestConcurrentAddSameID() {
	path := s.writeFile("cfg.json", `{"a":1}`)
	desc := s.descriptor("cfg", path)

	var wg sync.WaitGroup
	subs := make([]*Subscription[appConfig], 8)
	for i := range subs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub, err := Add[appConfig](s.registry, desc)
			assert.NoError(s.T(), err)
			subs[i] = sub
		}(i)
	}
	wg.Wait()

	assert.Equal(s.T(), 1, s.registry.Len())

	s.mu.Lock()
	running := 0
	for _, w := range s.watchers {
		if !w.isStopped() {
			running++
		}
	}
	s.mu.Unlock()
	assert.Equal(s.T(), 1, running)

	for _, sub := range subs {
		got, ok := sub.TryNext()
		require.True(s.T(), ok)
		assert.Equal(s.T(), appConfig{A: 1}, got)
	}
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

// End-to-end runs against the real change detection backends.
func TestRegistry_ReloadsFromDisk(t *testing.T) {
	for _, backend := range []watch.Strategy{watch.StrategyPolling, watch.StrategyNative} {
		t.Run(string(backend), func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "cfg.json")
			require.NoError(t, os.WriteFile(path, []byte(`{"a":1}`), 0o600))

			registry := New()
			t.Cleanup(func() { _ = registry.Close() })

			sub, err := Add[appConfig](registry, Descriptor{
				ID:           "cfg",
				Path:         path,
				Format:       codec.FormatJSON,
				PollInterval: 25 * time.Millisecond,
				Backend:      backend,
			})
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()

			first, err := sub.Next(ctx)
			require.NoError(t, err)
			assert.Equal(t, appConfig{A: 1}, first)

			later := time.Now().Add(time.Minute)
			require.NoError(t, os.Chtimes(path, later, later))

			replace(t, path, `{"a":2}`)
			next, err := sub.Next(ctx)
			require.NoError(t, err)
			assert.Equal(t, appConfig{A: 2}, next)

			got, err := Get[appConfig](registry, "cfg")
			require.NoError(t, err)
			assert.Equal(t, appConfig{A: 2}, got)

			replace(t, path, `{"a":`)
			time.Sleep(200 * time.Millisecond)

			got, err = Get[appConfig](registry, "cfg")
			require.NoError(t, err)
			assert.Equal(t, appConfig{A: 2}, got)
			assert.Equal(t, 0, sub.Pending())
		})
	}
}

// rewritingWatcher finishes an in-progress write from inside the handler,
// after the watcher has already hashed the partial content.
type rewritingWatcher struct {
	watch.Watcher

	partial []byte
	final   []byte
	once    sync.Once
}

func (w *rewritingWatcher) Start(handler watch.Handler) error {
	return w.Watcher.Start(func(event watch.Event) {
		if string(event.Raw) == string(w.partial) {
			w.once.Do(func() {
				_ = os.WriteFile(w.Watcher.Path(), w.final, 0o600)
			})
		}
		handler(event)
	})
}

func TestRegistry_WriteCompletingDuringReloadIsDeliveredOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a":1}`), 0o600))

	partial := []byte(`{"a":`)
	registry := New(WithWatcherFactory(func(opts watch.Options) (watch.Watcher, error) {
		w, err := watch.New(opts)
		if err != nil {
			return nil, err
		}
		return &rewritingWatcher{Watcher: w, partial: partial, final: []byte(`{"a":2}`)}, nil
	}))
	t.Cleanup(func() { _ = registry.Close() })

	sub, err := Add[appConfig](registry, Descriptor{
		ID:           "cfg",
		Path:         path,
		Format:       codec.FormatJSON,
		PollInterval: 25 * time.Millisecond,
		Backend:      watch.StrategyPolling,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	first, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, appConfig{A: 1}, first)

	require.NoError(t, os.WriteFile(path, partial, 0o600))

	next, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, appConfig{A: 2}, next)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, sub.Pending())

	entries := registry.Entries()
	require.Len(t, entries, 1)
	assert.EqualValues(t, 1, entries[0].Reloads)
}

func replace(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o600))
	require.NoError(t, os.Rename(tmp, path))
}
