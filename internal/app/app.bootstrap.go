package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/fx"

	"github.com/joshuarp/hotconfig/internal/reloadify"
	"github.com/joshuarp/hotconfig/internal/shared/config"
	sharedlog "github.com/joshuarp/hotconfig/internal/shared/log"
	"github.com/joshuarp/hotconfig/internal/shared/uid"
)

type configPathIn struct {
	fx.In
	Path string `name:"config_path"`
}

func New(configPath string, modules ...fx.Option) *fx.App {
	opts := append(baseOptions(configPath, modules...), fx.Invoke(registerLifecycle))
	return fx.New(opts...)
}

// baseOptions is the graph without the HTTP listener.
func baseOptions(configPath string, modules ...fx.Option) []fx.Option {
	opts := []fx.Option{
		fx.Supply(
			fx.Annotate(
				strings.TrimSpace(configPath),
				fx.ResultTags(`name:"config_path"`),
			),
		),
		CoreModule(),
	}
	return append(opts, modules...)
}

func CoreModule() fx.Option {
	return fx.Module("core",
		fx.Provide(
			provideConfig,
			sharedlog.NewJSONLogger,
			provideIDGenerator,
			provideRegistry,
			provideRedisClient,
			provideFiberApp,
			provideRouterGroups,
		),
	)
}

func configLoadOrder(path string) []config.Options {
	if path != "" {
		if strings.HasPrefix(filepath.Base(path), ".env") {
			return []config.Options{{EnvPath: path}}
		}
		return []config.Options{{YAMLPath: path}}
	}

	return []config.Options{
		{YAMLPath: "config.yaml", EnvPath: ".env"},
		{YAMLPath: "config.yaml.example", EnvPath: ".env.example"},
	}
}

func provideConfig(in configPathIn) (config.ConfigProvider, error) {
	var lastErr error
	for _, opts := range configLoadOrder(in.Path) {
		provider, err := config.Init(opts)
		if err == nil {
			return provider, nil
		}
		lastErr = err
	}

	return nil, lastErr
}

func provideIDGenerator(cfg config.ConfigProvider) (uid.Generator, error) {
	strategy := uid.Strategy(strings.TrimSpace(strings.ToLower(cfg.GetString("uid.strategy"))))
	if strategy == "" {
		strategy = uid.StrategyUUIDv7
	}

	gen, err := uid.New(uid.Options{
		Strategy: strategy,
		NodeID:   cfg.GetInt64("uid.node_id"),
	})
	if err != nil {
		return nil, fmt.Errorf("app: failed to init id generator: %w", err)
	}
	return gen, nil
}

func provideRegistry(lifecycle fx.Lifecycle, logger *slog.Logger, ids uid.Generator) *reloadify.Registry {
	registry := reloadify.New(
		reloadify.WithLogger(logger.With("component", "registry")),
		reloadify.WithIDGenerator(ids),
	)

	lifecycle.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return registry.Close()
		},
	})

	return registry
}

func provideFiberApp(cfg config.ConfigProvider) *fiber.App {
	readTimeout := cfg.GetDuration("server.read_timeout")
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}

	writeTimeout := cfg.GetDuration("server.write_timeout")
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	return fiber.New(fiber.Config{
		AppName:      "hotconfig",
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})
}
