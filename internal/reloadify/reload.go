package reloadify

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joshuarp/hotconfig/internal/shared/watch"
)

// reload runs on the watcher goroutine of c. Failures only drop this attempt;
// the previous value stays authoritative until the next qualifying event.
func (r *Registry) reload(c *cell, event watch.Event) {
	id := c.desc.ID.String()

	raw := event.Raw
	if raw == nil {
		var err error
		raw, err = os.ReadFile(c.desc.Path)
		if err != nil {
			r.logger.Warn("config reload dropped", "config_id", id, "error", fmt.Errorf("%w: %w", ErrLoad, err))
			return
		}
	}

	value, err := c.decode(raw)
	if err != nil {
		r.logger.Warn("config reload dropped", "config_id", id, "error", fmt.Errorf("%w: %w", ErrDecode, err))
		return
	}

	subs, ok := r.update(c, value, raw)
	if !ok {
		r.logger.Debug("config reload skipped, entry removed", "config_id", id)
		return
	}

	r.publish(c, subs, value, raw)

	r.logger.Info("config reloaded",
		"config_id", id,
		"digest", event.Digest,
		"size", len(raw),
		"subscribers", len(subs),
	)
}

// update replaces the value of c if c is still the registered cell for its
// id and returns the subscribers to deliver to.
func (r *Registry) update(c *cell, value any, raw []byte) ([]subscriber, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.cells[c.desc.ID]; !ok || current != c {
		return nil, false
	}

	c.value = value
	c.raw = raw
	c.reloads++
	c.updatedAt = time.Now().UTC()

	subs := make([]subscriber, len(c.subs))
	copy(subs, c.subs)
	return subs, true
}

// publish hands every subscriber its own copy and detaches the ones whose
// consumer has gone away.
func (r *Registry) publish(c *cell, subs []subscriber, value any, raw []byte) {
	var gone []subscriber
	for _, sub := range subs {
		err := sub.deliver(c.clone(value, raw))
		if errors.Is(err, ErrDelivery) {
			gone = append(gone, sub)
			continue
		}
		if err != nil {
			r.logger.Error("config delivery failed", "config_id", c.desc.ID.String(), "error", err)
		}
	}

	if len(gone) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	kept := c.subs[:0]
	for _, sub := range c.subs {
		if !containsSubscriber(gone, sub) {
			kept = append(kept, sub)
		}
	}
	c.subs = kept
}

func containsSubscriber(list []subscriber, target subscriber) bool {
	for _, sub := range list {
		if sub == target {
			return true
		}
	}
	return false
}
