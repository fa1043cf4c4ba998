package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"livehooks/internal/domain/event"
)

var (
	eventsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_events_received_total",
		Help: "The total number of admitted inbound events",
	})
	eventsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_events_duplicate_total",
		Help: "The total number of inbound events dropped as already processed",
	})
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidPayload   = errors.New("invalid payload")
)

// EventStore is the idempotency boundary: Admit reports whether the event
// id was seen for the first time.
type EventStore interface {
	Admit(ctx context.Context, e *event.InboundEvent) (bool, error)
}

// FanOuter schedules outbound deliveries for a routed event.
type FanOuter interface {
	FanOut(ctx context.Context, eventType string, payload json.RawMessage)
}

const (
	StatusSuccess        = "success"
	StatusPartialSuccess = "partial_success"
)

type Result struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Message   string `json:"message,omitempty"`
}

// Processor is the ingestion façade: verify, parse, admit, route, then
// detach outbound fan-out. Everything before fan-out runs synchronously
// relative to the inbound request.
type Processor struct {
	store  EventStore
	router *Router
	fanout FanOuter
	secret string
	log    *slog.Logger
}

func NewProcessor(store EventStore, router *Router, fanout FanOuter, secret string, log *slog.Logger) *Processor {
	return &Processor{
		store:  store,
		router: router,
		fanout: fanout,
		secret: secret,
		log:    log,
	}
}

// ProcessWebhook drives one inbound callback through the pipeline.
// ErrInvalidSignature and ErrInvalidPayload are client errors; anything
// else is a store failure. A duplicate id is not an error: it
// short-circuits to a success result without re-routing, re-broadcasting
// or re-delivering.
func (p *Processor) ProcessWebhook(ctx context.Context, body []byte, signature string) (*Result, error) {
	if p.secret != "" && !VerifySignature(body, signature, p.secret) {
		p.log.Error("invalid webhook signature")
		return nil, ErrInvalidSignature
	}

	e, err := Parse(body)
	if err != nil {
		p.log.Error("failed to parse webhook payload", "error", err)
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, err)
	}
	e.Processed = true

	isNew, err := p.store.Admit(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("admit event: %w", err)
	}
	if !isNew {
		eventsDuplicate.Inc()
		p.log.Info("event already processed, skipping", "event_id", e.ID)
		return &Result{
			Status:    StatusSuccess,
			EventID:   e.ID,
			EventType: e.Kind.String(),
			Message:   "Already processed",
		}, nil
	}
	eventsReceived.Inc()

	ok := p.router.Route(ctx, e)

	// Fan-out is detached: the response to the event source must not
	// wait for outbound deliveries.
	go func() {
		fanCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		p.fanout.FanOut(fanCtx, e.Kind.String(), e.Payload)
	}()

	if !ok {
		return &Result{
			Status:    StatusPartialSuccess,
			EventID:   e.ID,
			EventType: e.Kind.String(),
			Message:   "Event stored but processing failed",
		}, nil
	}

	return &Result{
		Status:    StatusSuccess,
		EventID:   e.ID,
		EventType: e.Kind.String(),
	}, nil
}
