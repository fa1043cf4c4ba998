package webhook

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"livehooks/internal/domain/event"
)

var (
	eventsRouted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_events_routed_total",
		Help: "The total number of events routed to a handler",
	})
	eventsUnhandled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_events_unhandled_total",
		Help: "The total number of events with an unrecognized kind",
	})
	handlerFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_handler_failures_total",
		Help: "The total number of per-event handler failures",
	})
)

// EntityStore updates derived entity status as lifecycle events arrive.
type EntityStore interface {
	SetEgressActive(ctx context.Context, egressID string) error
	SetEgressEnded(ctx context.Context, egressID string) error
	SetIngressActive(ctx context.Context, ingressID string) error
	SetIngressEnded(ctx context.Context, ingressID string) error
}

// Broadcaster fans routed events out to live observers.
type Broadcaster interface {
	Broadcast(kind string, message any)
}

// StreamPublisher republishes routed events to the analytics feed.
type StreamPublisher interface {
	SendMessage(ctx context.Context, key, value []byte) error
}

// Router dispatches an admitted event to the handler for its kind. The
// generic envelope is already persisted by the event store; handlers only
// update derived state and feed the live/analytics channels.
type Router struct {
	entities EntityStore
	hub      Broadcaster
	feed     StreamPublisher // nil when the Kafka feed is disabled
	log      *slog.Logger
}

func NewRouter(entities EntityStore, hub Broadcaster, feed StreamPublisher, log *slog.Logger) *Router {
	return &Router{
		entities: entities,
		hub:      hub,
		feed:     feed,
		log:      log,
	}
}

// Route returns false only when a kind-specific side effect failed; the
// event itself stays admitted either way. Unrecognized kinds are
// tolerated: logged, counted, and reported as handled so nothing retries
// them.
func (r *Router) Route(ctx context.Context, e *event.InboundEvent) bool {
	var err error

	switch e.Kind {
	case event.KindRoomStarted, event.KindRoomFinished,
		event.KindParticipantJoined, event.KindParticipantLeft,
		event.KindTrackPublished, event.KindTrackUnpublished:
		// The stored envelope is the whole effect for these kinds.

	case event.KindEgressStarted:
		if e.EgressID != "" {
			err = r.entities.SetEgressActive(ctx, e.EgressID)
		}
	case event.KindEgressEnded:
		if e.EgressID != "" {
			err = r.entities.SetEgressEnded(ctx, e.EgressID)
		}
	case event.KindIngressStarted:
		if e.IngressID != "" {
			err = r.entities.SetIngressActive(ctx, e.IngressID)
		}
	case event.KindIngressEnded:
		if e.IngressID != "" {
			err = r.entities.SetIngressEnded(ctx, e.IngressID)
		}

	default:
		r.log.Warn("unknown event type", "event_type", e.Kind, "event_id", e.ID)
		eventsUnhandled.Inc()
		return true
	}

	if err != nil {
		r.log.Error("event handler failed", "event_type", e.Kind, "event_id", e.ID, "error", err)
		handlerFailures.Inc()
		return false
	}

	eventsRouted.Inc()
	r.publish(e)
	return true
}

// publish feeds the live hub synchronously and the Kafka feed detached;
// neither can fail routing.
func (r *Router) publish(e *event.InboundEvent) {
	message := map[string]any{
		"type":  e.Kind.String(),
		"event": e,
	}
	r.hub.Broadcast(e.Kind.String(), message)

	if r.feed == nil {
		return
	}
	key := e.RoomSID
	if key == "" {
		key = e.ID
	}
	value := e.Payload
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.feed.SendMessage(ctx, []byte(key), value); err != nil {
			r.log.Warn("failed to publish event to feed", "event_id", e.ID, "error", err)
		}
	}()
}
