// Package notify publishes configuration change notifications to external
// sinks. Implementations are safe for concurrent use.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Strategy defines which sink receives notifications.
type Strategy string

const (
	// StrategyLog writes one structured log record per notification.
	StrategyLog Strategy = "log"

	// StrategyRedis publishes JSON notifications on a Redis pub/sub channel.
	StrategyRedis Strategy = "redis"
)

const DefaultRedisChannel = "hotconfig:changes"

// Notification describes one delivered configuration value.
type Notification struct {
	ConfigID       string    `json:"config_id"`
	SubscriptionID string    `json:"subscription_id"`
	Sequence       uint64    `json:"sequence"`
	Value          any       `json:"value"`
	At             time.Time `json:"at"`
}

// Options configures the notifier.
type Options struct {
	// Strategy selects the sink. Empty means StrategyLog.
	Strategy Strategy

	// Logger is required by StrategyLog and used for diagnostics otherwise.
	Logger *slog.Logger

	// Redis is required by StrategyRedis. The notifier does not close it.
	Redis *redis.Client

	// Channel is the Redis channel. Empty uses DefaultRedisChannel.
	Channel string
}

// Notifier is the interface consumers depend on for publishing changes.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// New creates a Notifier based on the provided options.
func New(opts Options) (Notifier, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	switch opts.Strategy {
	case "", StrategyLog:
		return &logNotifier{logger: opts.Logger}, nil
	case StrategyRedis:
		if opts.Redis == nil {
			return nil, fmt.Errorf("notify: redis client is required for %q strategy", StrategyRedis)
		}
		channel := opts.Channel
		if channel == "" {
			channel = DefaultRedisChannel
		}
		return &redisNotifier{client: opts.Redis, channel: channel}, nil
	default:
		return nil, fmt.Errorf("notify: unknown strategy %q", opts.Strategy)
	}
}

var _ Notifier = (*logNotifier)(nil)

type logNotifier struct {
	logger *slog.Logger
}

func (n *logNotifier) Notify(ctx context.Context, note Notification) error {
	n.logger.InfoContext(ctx, "config value delivered",
		"config_id", note.ConfigID,
		"subscription_id", note.SubscriptionID,
		"sequence", note.Sequence,
	)
	return nil
}
