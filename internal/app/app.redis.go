package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/joshuarp/hotconfig/internal/shared/config"
	"github.com/joshuarp/hotconfig/internal/shared/notify"
)

func notifyStrategy(cfg config.ConfigProvider) notify.Strategy {
	switch strings.TrimSpace(strings.ToLower(cfg.GetString("notify.strategy"))) {
	case "redis":
		return notify.StrategyRedis
	default:
		return notify.StrategyLog
	}
}

// provideRedisClient returns nil unless notifications go to redis. The client
// is closed after every component that publishes through it has stopped.
func provideRedisClient(lifecycle fx.Lifecycle, cfg config.ConfigProvider) *redis.Client {
	if notifyStrategy(cfg) != notify.StrategyRedis {
		return nil
	}

	host := strings.TrimSpace(cfg.GetString("redis.host"))
	if host == "" {
		host = "localhost"
	}

	port := cfg.GetInt("redis.port")
	if port == 0 {
		port = 6379
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: cfg.GetString("redis.password"),
		DB:       cfg.GetInt("redis.db"),
	})

	lifecycle.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return client.Close()
		},
	})

	return client
}

func provideNotifier(cfg config.ConfigProvider, redisClient *redis.Client, logger *slog.Logger) (notify.Notifier, error) {
	notifier, err := notify.New(notify.Options{
		Strategy: notifyStrategy(cfg),
		Logger:   logger.With("component", "notify"),
		Redis:    redisClient,
		Channel:  cfg.GetString("notify.redis.channel"),
	})
	if err != nil {
		return nil, fmt.Errorf("app: failed to init notifier: %w", err)
	}
	return notifier, nil
}
