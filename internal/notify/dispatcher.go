// Package notify delivers confirmation email and publishes waitlist events.
//
// The Dispatcher owns a bounded queue and a fixed worker pool. Callers never
// wait on delivery: SendConfirmation and Publish only enqueue. A full queue
// drops the job and reports it; nothing here can fail a signup.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/waitlist-engine/internal/domain"
	"github.com/ignite/waitlist-engine/internal/pkg/logger"
)

// ErrQueueFull is reported when a job is dropped.
var ErrQueueFull = errors.New("notify: queue full")

// UpstreamError is a failed hand-off to the mail provider or an event sink.
// It is logged and counted, never returned to the signup path.
type UpstreamError struct {
	Channel    string
	Recipient  string
	Event      string
	DeliveryID string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Event != "" {
		return fmt.Sprintf("notify %s: %s %s: %v", e.Channel, e.Event, e.DeliveryID, e.Err)
	}
	return fmt.Sprintf("notify %s: %v", e.Channel, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Mailer sends one confirmation email.
type Mailer interface {
	SendConfirmation(ctx context.Context, msg domain.ConfirmationEmail) error
}

// EventSink receives published events.
type EventSink interface {
	Name() string
	Publish(ctx context.Context, evt domain.Event) error
}

// Metrics receives delivery outcomes per channel ("email", "webhook", "sqs").
type Metrics interface {
	Delivery(channel, outcome string)
	QueueDepth(n int)
}

// DeliveryHook runs after an email was handed to the provider.
type DeliveryHook func(ctx context.Context, email string)

// Config sizes the dispatcher.
type Config struct {
	Workers      int
	QueueSize    int
	EmailTimeout time.Duration
	EventTimeout time.Duration // per sink, including retries
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1000
	}
	if c.EmailTimeout <= 0 {
		c.EmailTimeout = 15 * time.Second
	}
	if c.EventTimeout <= 0 {
		c.EventTimeout = 45 * time.Second
	}
	return c
}

type job struct {
	email *domain.ConfirmationEmail
	event *domain.Event
	sink  EventSink
}

func (j job) channel() string {
	if j.email != nil {
		return "email"
	}
	return j.sink.Name()
}

// Dispatcher fans work out to a Mailer and any number of EventSinks.
type Dispatcher struct {
	cfg     Config
	mailer  Mailer
	sinks   []EventSink
	metrics Metrics
	onSent  DeliveryHook

	mu     sync.RWMutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher. mailer may be nil, in which case no
// confirmation email is ever accepted.
func NewDispatcher(cfg Config, mailer Mailer, sinks []EventSink, metrics Metrics) *Dispatcher {
	cfg = cfg.withDefaults()
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Dispatcher{
		cfg:     cfg,
		mailer:  mailer,
		sinks:   sinks,
		metrics: metrics,
		queue:   make(chan job, cfg.QueueSize),
	}
}

// OnEmailDelivered registers the hook called after successful delivery.
// Must be called before Start.
func (d *Dispatcher) OnEmailDelivered(hook DeliveryHook) { d.onSent = hook }

// Start launches the workers.
func (d *Dispatcher) Start() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	logger.Info("notify dispatcher started", "workers", d.cfg.Workers, "queue", d.cfg.QueueSize, "sinks", len(d.sinks))
}

// Stop stops accepting work and waits for queued jobs until ctx expires.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
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

// Pending returns the number of queued jobs.
func (d *Dispatcher) Pending() int { return len(d.queue) }

// Capacity returns the queue size.
func (d *Dispatcher) Capacity() int { return cap(d.queue) }

// SendConfirmation queues msg and reports whether it was accepted.
func (d *Dispatcher) SendConfirmation(_ context.Context, msg domain.ConfirmationEmail) bool {
	if d.mailer == nil {
		return false
	}
	return d.enqueue(job{email: &msg})
}

// Publish queues evt once per sink. A missing DeliveryID is filled in.
func (d *Dispatcher) Publish(_ context.Context, evt domain.Event) {
	if evt.DeliveryID == "" {
		evt.DeliveryID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	for _, sink := range d.sinks {
		e := evt
		d.enqueue(job{event: &e, sink: sink})
	}
}

func (d *Dispatcher) enqueue(j job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.metrics.Delivery(j.channel(), "dropped")
		return false
	}
	select {
	case d.queue <- j:
		d.metrics.QueueDepth(len(d.queue))
		return true
	default:
		d.metrics.Delivery(j.channel(), "dropped")
		logger.Warn("notify queue full, dropping job", "channel", j.channel(), "error", ErrQueueFull)
		return false
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		d.metrics.QueueDepth(len(d.queue))
		var up *UpstreamError
		if err := d.run(j); errors.As(err, &up) {
			if up.Event == "" {
				logger.Warn("confirmation email failed", "email", up.Recipient, "error", up.Err)
			} else {
				logger.Warn("event delivery failed", "sink", up.Channel, "event", up.Event, "deliveryId", up.DeliveryID, "error", up.Err)
			}
		}
	}
}

// run delivers one job. Failures come back as *UpstreamError after the
// outcome metric is recorded.
func (d *Dispatcher) run(j job) error {
	if j.email != nil {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.EmailTimeout)
		defer cancel()
		if err := d.mailer.SendConfirmation(ctx, *j.email); err != nil {
			d.metrics.Delivery("email", "failed")
			return &UpstreamError{Channel: "email", Recipient: j.email.Email, Err: err}
		}
		d.metrics.Delivery("email", "sent")
		if d.onSent != nil {
			d.onSent(ctx, j.email.Email)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.EventTimeout)
	defer cancel()
	if err := j.sink.Publish(ctx, *j.event); err != nil {
		d.metrics.Delivery(j.sink.Name(), "failed")
		return &UpstreamError{Channel: j.sink.Name(), Event: string(j.event.Type), DeliveryID: j.event.DeliveryID, Err: err}
	}
	d.metrics.Delivery(j.sink.Name(), "sent")
	return nil
}

type nopMetrics struct{}

func (nopMetrics) Delivery(string, string) {}
func (nopMetrics) QueueDepth(int)          {}
