package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"livehooks/internal/domain/event"
)

type fakeEventStore struct {
	mu   sync.Mutex
	seen map[string]*event.InboundEvent
	err  error
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{seen: make(map[string]*event.InboundEvent)}
}

func (f *fakeEventStore) Admit(_ context.Context, e *event.InboundEvent) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[e.ID]; ok {
		return false, nil
	}
	f.seen[e.ID] = e
	return true, nil
}

type fakeFanout struct {
	mu    sync.Mutex
	kinds []string
	done  chan struct{}
}

func newFakeFanout() *fakeFanout {
	return &fakeFanout{done: make(chan struct{}, 10)}
}

func (f *fakeFanout) FanOut(_ context.Context, eventType string, _ json.RawMessage) {
	f.mu.Lock()
	f.kinds = append(f.kinds, eventType)
	f.mu.Unlock()
	f.done <- struct{}{}
}

func (f *fakeFanout) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.kinds)
}

func newTestProcessor(secret string) (*Processor, *fakeEventStore, *fakeBroadcaster, *fakeFanout, *fakeEntities) {
	store := newFakeEventStore()
	hub := &fakeBroadcaster{}
	entities := &fakeEntities{}
	fanout := newFakeFanout()
	router := NewRouter(entities, hub, nil, testLogger())
	p := NewProcessor(store, router, fanout, secret, testLogger())
	return p, store, hub, fanout, entities
}

func TestProcessWebhookEndToEnd(t *testing.T) {
	p, store, hub, fanout, entities := newTestProcessor("s")

	body := []byte(`{"event":"egress_ended","egressInfo":{"egressId":"EG_1"},"id":"evt-1"}`)
	sig := "sha256=" + sign(body, "s")

	result, err := p.ProcessWebhook(context.Background(), body, sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != StatusSuccess || result.EventID != "evt-1" || result.EventType != "egress_ended" {
		t.Errorf("result = %+v", result)
	}
	if _, ok := store.seen["evt-1"]; !ok {
		t.Error("event not admitted")
	}
	if len(entities.egressEnded) != 1 || entities.egressEnded[0] != "EG_1" {
		t.Errorf("egress updates = %v, want [EG_1]", entities.egressEnded)
	}
	if hub.count() != 1 || hub.kinds[0] != "egress_ended" {
		t.Errorf("broadcasts = %v", hub.kinds)
	}

	select {
	case <-fanout.done:
	case <-time.After(time.Second):
		t.Fatal("expected fan-out to run")
	}
}

func TestProcessWebhookIdempotent(t *testing.T) {
	p, _, hub, fanout, _ := newTestProcessor("")

	body := []byte(`{"event":"room_started","id":"evt-dup"}`)

	first, err := p.ProcessWebhook(context.Background(), body, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Status != StatusSuccess {
		t.Fatalf("first status = %q", first.Status)
	}
	<-fanout.done

	second, err := p.ProcessWebhook(context.Background(), body, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Status != StatusSuccess || second.Message != "Already processed" {
		t.Errorf("second result = %+v", second)
	}
	if second.EventID != "evt-dup" {
		t.Errorf("second event id = %q", second.EventID)
	}

	// The replay must not re-broadcast or re-trigger fan-out.
	select {
	case <-fanout.done:
		t.Fatal("duplicate admission must not fan out again")
	case <-time.After(100 * time.Millisecond):
	}
	if hub.count() != 1 {
		t.Errorf("broadcasts = %d, want 1", hub.count())
	}
	if fanout.count() != 1 {
		t.Errorf("fan-outs = %d, want 1", fanout.count())
	}
}

func TestProcessWebhookInvalidSignature(t *testing.T) {
	p, store, _, _, _ := newTestProcessor("s")

	body := []byte(`{"event":"room_started","id":"evt-bad"}`)
	_, err := p.ProcessWebhook(context.Background(), body, "sha256=deadbeef")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
	if len(store.seen) != 0 {
		t.Error("rejected events must never be persisted")
	}
}

func TestProcessWebhookInvalidJSON(t *testing.T) {
	p, _, _, _, _ := newTestProcessor("")

	_, err := p.ProcessWebhook(context.Background(), []byte(`{broken`), "")
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("err = %v, want ErrInvalidPayload", err)
	}
}

func TestProcessWebhookPartialSuccess(t *testing.T) {
	p, _, _, fanout, entities := newTestProcessor("")
	entities.err = errors.New("db down")

	body := []byte(`{"event":"ingress_ended","ingress_id":"IN_1","id":"evt-p"}`)
	result, err := p.ProcessWebhook(context.Background(), body, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusPartialSuccess {
		t.Errorf("status = %q, want partial_success", result.Status)
	}
	// The event stays admitted and fan-out still runs.
	<-fanout.done
}

func TestProcessWebhookUnknownKindStored(t *testing.T) {
	p, store, _, fanout, _ := newTestProcessor("")

	body := []byte(`{"event":"something_new","id":"evt-u"}`)
	result, err := p.ProcessWebhook(context.Background(), body, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusSuccess {
		t.Errorf("status = %q", result.Status)
	}
	e, ok := store.seen["evt-u"]
	if !ok {
		t.Fatal("unknown-kind event not stored")
	}
	if !e.Processed {
		t.Error("unknown-kind event must still be marked processed")
	}
	<-fanout.done
}

func TestProcessWebhookStoreError(t *testing.T) {
	p, store, _, _, _ := newTestProcessor("")
	store.err = errors.New("pool closed")

	_, err := p.ProcessWebhook(context.Background(), []byte(`{"event":"room_started","id":"x"}`), "")
	if err == nil || errors.Is(err, ErrInvalidPayload) || errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err = %v, want store error", err)
	}
}
