package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"livehooks/internal/domain/webhook"
)

var (
	retriesClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_delivery_retries_claimed_total",
		Help: "The total number of failed deliveries claimed for automatic retry",
	})
	retriesSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_delivery_retries_succeeded_total",
		Help: "The total number of automatic retries that delivered",
	})
)

// Deliverer re-attempts one delivery; implemented by delivery.Service.
type Deliverer interface {
	Deliver(ctx context.Context, subscriptionID, deliveryID string) bool
}

type RetryStore interface {
	ClaimRetryable(ctx context.Context, max int, minAge time.Duration, limit int) ([]*webhook.Delivery, error)
}

// RetryPoller periodically claims failed deliveries that still have
// retry budget and re-attempts them. The claim increments the retry
// counter atomically, so the poller and the manual retry endpoint share
// one budget.
type RetryPoller struct {
	store      RetryStore
	deliverer  Deliverer
	maxRetries int
	retryDelay time.Duration
	batchSize  int
	log        *slog.Logger
}

func NewRetryPoller(store RetryStore, deliverer Deliverer, maxRetries int, retryDelay time.Duration, log *slog.Logger) *RetryPoller {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = 5 * time.Second
	}

	return &RetryPoller{
		store:      store,
		deliverer:  deliverer,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		batchSize:  10,
		log:        log,
	}
}

func (p *RetryPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.retryDelay)
	defer ticker.Stop()

	p.log.Info("retry poller started", "max_retries", p.maxRetries, "retry_delay", p.retryDelay.String())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil {
				p.log.Error("failed to process retry batch", "error", err)
			}
		}
	}
}

func (p *RetryPoller) processBatch(ctx context.Context) error {
	claimed, err := p.store.ClaimRetryable(ctx, p.maxRetries, p.retryDelay, p.batchSize)
	if err != nil {
		return err
	}

	for _, d := range claimed {
		retriesClaimed.Inc()
		p.log.Info("retrying delivery", "delivery_id", d.ID, "webhook_id", d.SubscriptionID, "retry_count", d.RetryCount)

		if p.deliverer.Deliver(ctx, d.SubscriptionID, d.ID) {
			retriesSucceeded.Inc()
		}
	}

	return nil
}
