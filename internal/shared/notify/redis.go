package notify

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

var _ Notifier = (*redisNotifier)(nil)

type redisNotifier struct {
	client  *redis.Client
	channel string
}

func (n *redisNotifier) Notify(ctx context.Context, note Notification) error {
	payload, err := sonic.Marshal(note)
	if err != nil {
		return fmt.Errorf("notify: encode notification for %q: %w", note.ConfigID, err)
	}

	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("notify: publish to %q: %w", n.channel, err)
	}
	return nil
}
