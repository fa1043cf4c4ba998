package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"livehooks/internal/domain/event"
)

type fakeEntities struct {
	egressActive  []string
	egressEnded   []string
	ingressActive []string
	ingressEnded  []string
	err           error
}

func (f *fakeEntities) SetEgressActive(_ context.Context, id string) error {
	f.egressActive = append(f.egressActive, id)
	return f.err
}

func (f *fakeEntities) SetEgressEnded(_ context.Context, id string) error {
	f.egressEnded = append(f.egressEnded, id)
	return f.err
}

func (f *fakeEntities) SetIngressActive(_ context.Context, id string) error {
	f.ingressActive = append(f.ingressActive, id)
	return f.err
}

func (f *fakeEntities) SetIngressEnded(_ context.Context, id string) error {
	f.ingressEnded = append(f.ingressEnded, id)
	return f.err
}

type fakeBroadcaster struct {
	mu    sync.Mutex
	kinds []string
}

func (f *fakeBroadcaster) Broadcast(kind string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
}

func (f *fakeBroadcaster) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.kinds)
}

type fakeFeed struct {
	sent chan []byte
	err  error
}

func (f *fakeFeed) SendMessage(_ context.Context, _, value []byte) error {
	f.sent <- value
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRouteEgressEnded(t *testing.T) {
	entities := &fakeEntities{}
	hub := &fakeBroadcaster{}
	r := NewRouter(entities, hub, nil, testLogger())

	e := &event.InboundEvent{ID: "evt-1", Kind: event.KindEgressEnded, EgressID: "EG_1"}
	if !r.Route(context.Background(), e) {
		t.Fatal("expected route to succeed")
	}

	if len(entities.egressEnded) != 1 || entities.egressEnded[0] != "EG_1" {
		t.Errorf("egress ended updates = %v, want [EG_1]", entities.egressEnded)
	}
	if hub.count() != 1 || hub.kinds[0] != "egress_ended" {
		t.Errorf("broadcast kinds = %v, want [egress_ended]", hub.kinds)
	}
}

func TestRouteRoomEventBroadcastsWithoutEntityUpdates(t *testing.T) {
	entities := &fakeEntities{}
	hub := &fakeBroadcaster{}
	r := NewRouter(entities, hub, nil, testLogger())

	e := &event.InboundEvent{ID: "evt-2", Kind: event.KindRoomStarted, RoomSID: "RM_1"}
	if !r.Route(context.Background(), e) {
		t.Fatal("expected route to succeed")
	}

	if len(entities.egressActive)+len(entities.egressEnded)+len(entities.ingressActive)+len(entities.ingressEnded) != 0 {
		t.Error("room events must not touch derived entities")
	}
	if hub.count() != 1 {
		t.Errorf("broadcasts = %d, want 1", hub.count())
	}
}

func TestRouteUnknownKindTolerated(t *testing.T) {
	entities := &fakeEntities{}
	hub := &fakeBroadcaster{}
	r := NewRouter(entities, hub, nil, testLogger())

	e := &event.InboundEvent{ID: "evt-3", Kind: event.Kind("something_new")}
	if !r.Route(context.Background(), e) {
		t.Fatal("unknown kinds must report ok")
	}
	if hub.count() != 0 {
		t.Error("unknown kinds must not broadcast")
	}
}

func TestRouteHandlerFailure(t *testing.T) {
	entities := &fakeEntities{err: errors.New("db down")}
	hub := &fakeBroadcaster{}
	r := NewRouter(entities, hub, nil, testLogger())

	e := &event.InboundEvent{ID: "evt-4", Kind: event.KindIngressStarted, IngressID: "IN_1"}
	if r.Route(context.Background(), e) {
		t.Fatal("expected route to report failure")
	}
	if hub.count() != 0 {
		t.Error("failed handler must not broadcast")
	}
}

func TestRoutePublishesToFeed(t *testing.T) {
	feed := &fakeFeed{sent: make(chan []byte, 1)}
	r := NewRouter(&fakeEntities{}, &fakeBroadcaster{}, feed, testLogger())

	e := &event.InboundEvent{ID: "evt-5", Kind: event.KindRoomFinished, Payload: []byte(`{"event":"room_finished"}`)}
	if !r.Route(context.Background(), e) {
		t.Fatal("expected route to succeed")
	}

	select {
	case value := <-feed.sent:
		if string(value) != `{"event":"room_finished"}` {
			t.Errorf("feed payload = %s", value)
		}
	case <-time.After(time.Second):
		t.Fatal("expected feed publish")
	}
}

func TestRouteFeedFailureDoesNotFailRouting(t *testing.T) {
	feed := &fakeFeed{sent: make(chan []byte, 1), err: errors.New("broker down")}
	r := NewRouter(&fakeEntities{}, &fakeBroadcaster{}, feed, testLogger())

	e := &event.InboundEvent{ID: "evt-6", Kind: event.KindRoomStarted}
	if !r.Route(context.Background(), e) {
		t.Fatal("feed failure must not fail routing")
	}
	<-feed.sent
}
