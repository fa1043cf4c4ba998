package delivery

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

type job struct {
	subscriptionID string
	deliveryID     string
}

// Dispatcher runs outbound deliveries on a bounded worker pool so fan-out
// never blocks the inbound request and in-flight sends are drained on
// shutdown instead of silently lost.
type Dispatcher struct {
	svc     *Service
	jobs    chan job
	wg      sync.WaitGroup
	log     *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

func NewDispatcher(svc *Service, workers, queueSize int, timeout time.Duration, log *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	d := &Dispatcher{
		svc:     svc,
		jobs:    make(chan job, queueSize),
		log:     log,
		timeout: timeout,
	}

	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}

	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		// The delivery HTTP timeout bounds the send itself; the extra
		// headroom covers the store round-trips around it.
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout+10*time.Second)
		d.svc.Deliver(ctx, j.subscriptionID, j.deliveryID)
		cancel()
	}
}

// FanOut creates one delivery per matching subscription and hands the
// sends to the worker pool. Each subscription is handled independently:
// a failure to create or enqueue one delivery never affects the others.
func (d *Dispatcher) FanOut(ctx context.Context, eventType string, payload json.RawMessage) {
	subs, err := d.svc.MatchSubscriptions(ctx, eventType)
	if err != nil {
		d.log.Error("failed to match subscriptions", "event_type", eventType, "error", err)
		return
	}

	for _, sub := range subs {
		deliveryID, err := d.svc.CreateDelivery(ctx, sub.ID, eventType, payload)
		if err != nil {
			d.log.Error("failed to create delivery", "webhook_id", sub.ID, "event_type", eventType, "error", err)
			continue
		}
		d.enqueue(ctx, sub.ID, deliveryID)
	}
}

// enqueue never blocks. When the queue is saturated the record is marked
// failed so the retry poller picks it up later.
func (d *Dispatcher) enqueue(ctx context.Context, subscriptionID, deliveryID string) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.Warn("dispatcher closed, leaving delivery for retry poller", "delivery_id", deliveryID)
		d.svc.recordError(ctx, deliveryID, "dispatcher shut down before send")
		return
	}

	select {
	case d.jobs <- job{subscriptionID: subscriptionID, deliveryID: deliveryID}:
		d.mu.Unlock()
	default:
		d.mu.Unlock()
		d.log.Warn("delivery queue full, deferring to retry poller", "delivery_id", deliveryID)
		d.svc.recordError(ctx, deliveryID, "delivery queue full")
	}
}

// Close stops accepting work and waits for queued deliveries to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	d.wg.Wait()
}
