package reloadify

import (
	"context"
	"fmt"
	"sync"
)

// subscriber is the type-erased producer side of a Subscription.
type subscriber interface {
	deliver(value any) error
	closeProducer()
}

var _ subscriber = (*Subscription[struct{}])(nil)

// Subscription is an unbounded, ordered queue of decoded values for one
// registration. The first item is the value current when the subscription
// was created; every successful reload appends one more.
//
// Next may be called from several goroutines; each value is handed to
// exactly one of them.
type Subscription[T any] struct {
	id       string
	configID ConfigID

	mu     sync.Mutex
	queue  []T
	closed bool
	signal chan struct{}
}

func newSubscription[T any](id string, configID ConfigID) *Subscription[T] {
	return &Subscription[T]{
		id:       id,
		configID: configID,
		signal:   make(chan struct{}, 1),
	}
}

// ID returns the unique id of this subscription.
func (s *Subscription[T]) ID() string { return s.id }

// ConfigID returns the registration this subscription follows.
func (s *Subscription[T]) ConfigID() ConfigID { return s.configID }

// Next blocks until a value is available, the subscription is closed and
// drained (ErrSubscriptionClosed), or ctx is done.
func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		value, ok, closed := s.pop()
		if ok {
			return value, nil
		}
		if closed {
			return zero, ErrSubscriptionClosed
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-s.signal:
		}
	}
}

// TryNext returns the next queued value without blocking.
func (s *Subscription[T]) TryNext() (T, bool) {
	value, ok, _ := s.pop()
	return value, ok
}

// Pending returns the number of queued values.
func (s *Subscription[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close detaches the consumer. Queued values are discarded and later
// reloads are no longer delivered to this subscription.
func (s *Subscription[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.queue = nil
		return
	}
	s.closed = true
	s.queue = nil
	close(s.signal)
}

func (s *Subscription[T]) pop() (value T, ok bool, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return value, false, s.closed
	}

	var zero T
	value = s.queue[0]
	s.queue[0] = zero
	s.queue = s.queue[1:]

	// wake the next waiting consumer
	if len(s.queue) > 0 && !s.closed {
		s.notify()
	}
	return value, true, s.closed
}

func (s *Subscription[T]) deliver(value any) error {
	typed, ok := value.(T)
	if !ok {
		return fmt.Errorf("%w: subscription %s expects %T, got %T", ErrTypeMismatch, s.id, *new(T), value)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDelivery
	}
	s.queue = append(s.queue, typed)
	s.notify()
	return nil
}

// closeProducer ends the stream; values already queued can still be read.
func (s *Subscription[T]) closeProducer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.signal)
}

// notify must be called with s.mu held and s.closed false.
func (s *Subscription[T]) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}
