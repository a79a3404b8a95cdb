// Package notify delivers restriction announcements to accounts. Delivery is
// asynchronous and best-effort: a failed delivery never undoes the action
// that caused it.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/gatekeeper/internal/model"
)

// Sink persists or forwards a single notification.
type Sink interface {
	Deliver(ctx context.Context, n model.Notification) error
}

// Emitter accepts notifications without waiting for delivery.
type Emitter interface {
	Emit(n model.Notification)
}

// ErrClosed is returned by Close when called twice.
var ErrClosed = errors.New("notify: dispatcher closed")

// DefaultDeliverTimeout bounds a single Deliver call.
const DefaultDeliverTimeout = 5 * time.Second

// Dispatcher queues notifications and hands them to a Sink from one worker.
type Dispatcher struct {
	sink    Sink
	log     *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan model.Notification
	done   chan struct{}
}

var _ Emitter = (*Dispatcher)(nil)

// NewDispatcher starts the worker. buffer is the queue capacity; a full queue
// drops new notifications.
func NewDispatcher(sink Sink, log *zap.Logger, buffer int) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 1
	}
	d := &Dispatcher{
		sink:    sink,
		log:     log,
		timeout: DefaultDeliverTimeout,
		queue:   make(chan model.Notification, buffer),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Emit enqueues n and returns immediately.
func (d *Dispatcher) Emit(n model.Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.log.Warn("notification dropped: dispatcher closed", zap.String("recipient", n.RecipientID.String()))
		return
	}
	select {
	case d.queue <- n:
	default:
		d.log.Warn("notification dropped: queue full",
			zap.String("recipient", n.RecipientID.String()),
			zap.String("title", n.Title),
		)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n model.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.sink.Deliver(ctx, n); err != nil {
		d.log.Error("notification delivery failed",
			zap.String("recipient", n.RecipientID.String()),
			zap.String("title", n.Title),
			zap.Error(err),
		)
	}
}

// Close stops accepting notifications and waits for the queue to drain or
// ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogSink writes notifications to a zap logger.
type LogSink struct{ log *zap.Logger }

// NewLogSink constructs a LogSink.
func NewLogSink(log *zap.Logger) *LogSink { return &LogSink{log: log} }

// Deliver logs n at info level.
func (s *LogSink) Deliver(_ context.Context, n model.Notification) error {
	s.log.Info("notification",
		zap.String("recipient", n.RecipientID.String()),
		zap.String("category", n.Category),
		zap.String("title", n.Title),
		zap.String("body", n.Body),
	)
	return nil
}

// Fanout delivers to every sink and joins their errors.
type Fanout []Sink

// Deliver calls each sink in order.
func (f Fanout) Deliver(ctx context.Context, n model.Notification) error {
	var all []error
	for _, s := range f {
		if err := s.Deliver(ctx, n); err != nil {
			all = append(all, err)
		}
	}
	return errors.Join(all...)
}
