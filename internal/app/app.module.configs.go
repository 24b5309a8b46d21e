package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"go.uber.org/fx"

	"github.com/joshuarp/hotconfig/internal/handlers"
	"github.com/joshuarp/hotconfig/internal/reloadify"
	"github.com/joshuarp/hotconfig/internal/shared/codec"
	"github.com/joshuarp/hotconfig/internal/shared/config"
	"github.com/joshuarp/hotconfig/internal/shared/notify"
	"github.com/joshuarp/hotconfig/internal/shared/watch"
)

// Document is the value type the daemon registers every file as.
type Document = map[string]any

func ConfigsModule() fx.Option {
	return fx.Module("configs",
		fx.Provide(
			provideNotifier,
			fx.Annotate(
				newRegistryReader,
				fx.As(new(handlers.ConfigReader)),
			),
			handlers.NewConfigValuesHandler,
		),
		fx.Invoke(registerConfigRoutes, registerWatches),
	)
}

type registryReader struct {
	registry *reloadify.Registry
}

func newRegistryReader(registry *reloadify.Registry) *registryReader {
	return &registryReader{registry: registry}
}

func (r *registryReader) Entries() []reloadify.Entry {
	return r.registry.Entries()
}

func (r *registryReader) Value(id reloadify.ConfigID) (any, error) {
	return reloadify.Get[Document](r.registry, id)
}

type watchEntry struct {
	ID           string        `mapstructure:"id"`
	Path         string        `mapstructure:"path"`
	Format       string        `mapstructure:"format"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Backend      string        `mapstructure:"backend"`
}

// loadDescriptors reads configs[]. Relative paths are resolved against the
// directory of the daemon's own config file.
func loadDescriptors(cfg config.ConfigProvider) ([]reloadify.Descriptor, error) {
	if !cfg.IsSet("configs") {
		return nil, nil
	}

	var entries []watchEntry
	if err := cfg.UnmarshalKey("configs", &entries); err != nil {
		return nil, fmt.Errorf("app: invalid configs section: %w", err)
	}

	baseDir := ""
	if cfg.File() != "" {
		baseDir = filepath.Dir(cfg.File())
	}

	seen := make(map[string]struct{}, len(entries))
	descriptors := make([]reloadify.Descriptor, 0, len(entries))
	for i, entry := range entries {
		if entry.ID == "" {
			return nil, fmt.Errorf("app: configs[%d]: id is required", i)
		}
		if _, dup := seen[entry.ID]; dup {
			return nil, fmt.Errorf("app: configs[%d]: duplicate id %q", i, entry.ID)
		}
		seen[entry.ID] = struct{}{}

		if entry.Path == "" {
			return nil, fmt.Errorf("app: configs[%d]: path is required for %q", i, entry.ID)
		}
		path := entry.Path
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}

		var (
			format codec.Format
			err    error
		)
		if entry.Format != "" {
			format, err = codec.ParseFormat(entry.Format)
		} else {
			format, err = codec.FormatFromPath(path)
		}
		if err != nil {
			return nil, fmt.Errorf("app: configs[%d]: %w", i, err)
		}
		if format == codec.FormatXML {
			return nil, fmt.Errorf("app: configs[%d]: xml cannot be served as a generic document", i)
		}

		backend, err := watch.ParseStrategy(entry.Backend)
		if err != nil {
			return nil, fmt.Errorf("app: configs[%d]: %w", i, err)
		}

		descriptors = append(descriptors, reloadify.Descriptor{
			ID:           reloadify.ConfigID(entry.ID),
			Path:         path,
			Format:       format,
			PollInterval: entry.PollInterval,
			Backend:      backend,
		})
	}

	return descriptors, nil
}

type watchesIn struct {
	fx.In

	Lifecycle fx.Lifecycle
	Registry  *reloadify.Registry
	Config    config.ConfigProvider
	Notifier  notify.Notifier
	Logger    *slog.Logger
}

func registerWatches(in watchesIn) error {
	descriptors, err := loadDescriptors(in.Config)
	if err != nil {
		return err
	}

	group := newForwarderGroup(in.Notifier, in.Logger)

	in.Lifecycle.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			for _, desc := range descriptors {
				sub, err := reloadify.Add[Document](in.Registry, desc)
				if err != nil {
					return fmt.Errorf("app: failed to register %q: %w", desc.ID, err)
				}
				group.follow(sub)
			}

			in.Logger.Info("watching configurations", "count", len(descriptors))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return group.stop(ctx)
		},
	})

	return nil
}
