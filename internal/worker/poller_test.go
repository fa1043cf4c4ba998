package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"livehooks/internal/domain/webhook"
)

type fakeRetryStore struct {
	mu      sync.Mutex
	batches [][]*webhook.Delivery
	err     error

	gotMax    int
	gotMinAge time.Duration
	gotLimit  int
	calls     int
}

func (f *fakeRetryStore) ClaimRetryable(_ context.Context, max int, minAge time.Duration, limit int) ([]*webhook.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotMax = max
	f.gotMinAge = minAge
	f.gotLimit = limit
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []string
	fail      map[string]bool
}

func (f *fakeDeliverer) Deliver(_ context.Context, _, deliveryID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, deliveryID)
	return !f.fail[deliveryID]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessBatchDeliversClaimed(t *testing.T) {
	store := &fakeRetryStore{batches: [][]*webhook.Delivery{{
		{ID: "d-1", SubscriptionID: "wh-1", RetryCount: 1},
		{ID: "d-2", SubscriptionID: "wh-2", RetryCount: 2},
	}}}
	deliverer := &fakeDeliverer{fail: map[string]bool{"d-2": true}}
	p := NewRetryPoller(store, deliverer, 3, 5*time.Second, testLogger())

	if err := p.processBatch(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(deliverer.delivered) != 2 {
		t.Fatalf("delivered = %v, want both claimed records attempted", deliverer.delivered)
	}
	if deliverer.delivered[0] != "d-1" || deliverer.delivered[1] != "d-2" {
		t.Errorf("delivered order = %v", deliverer.delivered)
	}

	if store.gotMax != 3 {
		t.Errorf("claim max = %d, want 3", store.gotMax)
	}
	if store.gotMinAge != 5*time.Second {
		t.Errorf("claim min age = %v, want 5s", store.gotMinAge)
	}
	if store.gotLimit != 10 {
		t.Errorf("claim limit = %d, want 10", store.gotLimit)
	}
}

func TestProcessBatchEmptyClaim(t *testing.T) {
	store := &fakeRetryStore{}
	deliverer := &fakeDeliverer{}
	p := NewRetryPoller(store, deliverer, 3, time.Second, testLogger())

	if err := p.processBatch(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deliverer.delivered) != 0 {
		t.Errorf("delivered = %v, want none", deliverer.delivered)
	}
}

func TestProcessBatchStoreError(t *testing.T) {
	store := &fakeRetryStore{err: errors.New("db down")}
	p := NewRetryPoller(store, &fakeDeliverer{}, 3, time.Second, testLogger())

	if err := p.processBatch(context.Background()); err == nil {
		t.Fatal("expected claim error to surface")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	store := &fakeRetryStore{}
	p := NewRetryPoller(store, &fakeDeliverer{}, 3, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancel")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.calls == 0 {
		t.Error("poller never ticked")
	}
}

func TestPollerDefaults(t *testing.T) {
	p := NewRetryPoller(&fakeRetryStore{}, &fakeDeliverer{}, 0, 0, testLogger())
	if p.maxRetries != 3 {
		t.Errorf("maxRetries = %d, want 3", p.maxRetries)
	}
	if p.retryDelay != 5*time.Second {
		t.Errorf("retryDelay = %v, want 5s", p.retryDelay)
	}
}
