package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/joshuarp/hotconfig/internal/reloadify"
	"github.com/joshuarp/hotconfig/internal/shared/notify"
)

// forwarderGroup drains one subscription per registration into the notifier.
type forwarderGroup struct {
	notifier notify.Notifier
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newForwarderGroup(notifier notify.Notifier, logger *slog.Logger) *forwarderGroup {
	ctx, cancel := context.WithCancel(context.Background())
	return &forwarderGroup{
		notifier: notifier,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (g *forwarderGroup) follow(sub *reloadify.Subscription[Document]) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.forward(sub)
	}()
}

func (g *forwarderGroup) forward(sub *reloadify.Subscription[Document]) {
	var sequence uint64
	for {
		value, err := sub.Next(g.ctx)
		if err != nil {
			if !errors.Is(err, reloadify.ErrSubscriptionClosed) && !errors.Is(err, context.Canceled) {
				g.logger.Error("config forwarder stopped", "config_id", sub.ConfigID().String(), "error", err)
			}
			return
		}

		sequence++
		err = g.notifier.Notify(g.ctx, notify.Notification{
			ConfigID:       sub.ConfigID().String(),
			SubscriptionID: sub.ID(),
			Sequence:       sequence,
			Value:          value,
			At:             time.Now().UTC(),
		})
		if err != nil {
			g.logger.Warn("config notification failed",
				"config_id", sub.ConfigID().String(),
				"sequence", sequence,
				"error", err,
			)
		}
	}
}

func (g *forwarderGroup) stop(ctx context.Context) error {
	g.cancel()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
