package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"guardduty-billing/internal/observability/metrics"
)

// Notification outcomes.
const (
	OutcomeSent    = "sent"
	OutcomeDropped = "dropped"
	OutcomeFailed  = "failed"
)

// Message is one queued notification.
type Message struct {
	Recipient string
	Topic     string
	Content   string
}

// Dispatcher delivers messages on worker goroutines. Delivery is at most
// once: a full queue drops the message and failed sends are not retried.
type Dispatcher struct {
	channel Channel
	queue   chan Message
	workers int
	timeout time.Duration
	log     *zap.Logger

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	started sync.Once
}

// DispatcherOption configures the dispatcher.
type DispatcherOption func(*Dispatcher)

// WithQueueSize bounds the number of pending messages.
func WithQueueSize(size int) DispatcherOption {
	return func(d *Dispatcher) {
		if size > 0 {
			d.queue = make(chan Message, size)
		}
	}
}

// WithWorkers sets the number of delivery goroutines.
func WithWorkers(workers int) DispatcherOption {
	return func(d *Dispatcher) {
		if workers > 0 {
			d.workers = workers
		}
	}
}

// WithSendTimeout bounds each send.
func WithSendTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(log *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// NewDispatcher constructs a dispatcher. Call Start before Enqueue.
func NewDispatcher(channel Channel, opts ...DispatcherOption) (*Dispatcher, error) {
	if channel == nil {
		return nil, errors.New("notify dispatcher: nil channel")
	}
	d := &Dispatcher{
		channel: channel,
		queue:   make(chan Message, 256),
		workers: 2,
		timeout: 5 * time.Second,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.Named("notify")
	return d, nil
}

// Start launches the workers.
func (d *Dispatcher) Start() {
	d.started.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.run()
		}
	})
}

// Enqueue hands msg to the workers without blocking. It reports whether the
// message was accepted.
func (d *Dispatcher) Enqueue(msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.IncNotification(OutcomeDropped)
		return false
	}
	select {
	case d.queue <- msg:
		return true
	default:
		metrics.IncNotification(OutcomeDropped)
		d.log.Warn("notification queue full, dropping",
			zap.String("topic", msg.Topic),
			zap.String("recipient", msg.Recipient),
		)
		return false
	}
}

// Close stops accepting messages and waits for queued ones to drain or for
// ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.channel.Send(ctx, msg.Recipient, msg.Content); err != nil {
		metrics.IncNotification(OutcomeFailed)
		d.log.Warn("notification failed",
			zap.String("topic", msg.Topic),
			zap.String("recipient", msg.Recipient),
			zap.Error(err),
		)
		return
	}
	metrics.IncNotification(OutcomeSent)
}
