package events

import (
	"context"
	"sync"
	"time"

	"admission-portal/internal/common/logger"
	"admission-portal/internal/common/metrics"
)

const defaultDeliveryTimeout = 10 * time.Second

// Publisher is what the admission services depend on. Publish never fails
// the caller: the state change it describes is already committed.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Subscriber receives every published event and ignores the ones it does not handle.
type Subscriber interface {
	Name() string
	Handle(ctx context.Context, e Event) error
}

// Dispatcher delivers events to subscribers one after another. Each delivery
// runs on a context detached from the caller's cancellation and bounded by
// its own timeout.
type Dispatcher struct {
	subscribers []Subscriber
	logger      logger.Logger
	timeout     time.Duration
}

type DispatcherOption func(*Dispatcher)

func WithDeliveryTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

func NewDispatcher(log logger.Logger, subscribers []Subscriber, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		subscribers: subscribers,
		logger:      log.WithFields(map[string]interface{}{"component": "event-dispatcher"}),
		timeout:     defaultDeliveryTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Publish(ctx context.Context, e Event) {
	base := context.WithoutCancel(ctx)
	for _, sub := range d.subscribers {
		d.deliver(base, sub, e)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, sub Subscriber, e Event) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			metrics.EventDeliveryFailures.WithLabelValues(sub.Name(), e.Name()).Inc()
			d.logger.Error("Event subscriber panicked", map[string]interface{}{
				"subscriber": sub.Name(),
				"event":      e.Name(),
				"panic":      r,
			})
		}
	}()

	if err := sub.Handle(ctx, e); err != nil {
		metrics.EventDeliveryFailures.WithLabelValues(sub.Name(), e.Name()).Inc()
		d.logger.Warn("Event delivery failed", map[string]interface{}{
			"subscriber": sub.Name(),
			"event":      e.Name(),
			"key":        e.Key(),
			"error":      err.Error(),
		})
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// Recorder keeps published events in memory. Used by tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
