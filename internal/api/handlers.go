package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"livehooks/internal/delivery"
	"livehooks/internal/domain/event"
	domain "livehooks/internal/domain/webhook"
	"livehooks/internal/infrastructure/postgres"
	"livehooks/internal/stream"
	"livehooks/internal/webhook"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Ingestor drives one inbound callback through the pipeline.
type Ingestor interface {
	ProcessWebhook(ctx context.Context, body []byte, signature string) (*webhook.Result, error)
}

type EventLister interface {
	List(ctx context.Context, kind string, limit, offset int) ([]*event.InboundEvent, error)
}

type EventGetter interface {
	Execute(ctx context.Context, eventID string) (*event.InboundEvent, error)
}

type DeliveryReader interface {
	Get(ctx context.Context, id string) (*domain.Delivery, error)
	List(ctx context.Context, subscriptionID string, limit, offset int) ([]*domain.Delivery, error)
}

type SubscriptionGetter interface {
	Get(ctx context.Context, id string) (*domain.Subscription, error)
}

// DeliveryAdmin exposes the operator-triggered delivery actions.
type DeliveryAdmin interface {
	TestDelivery(ctx context.Context, subscriptionID string) (*delivery.TestResult, error)
	RetryDelivery(ctx context.Context, deliveryID string) bool
}

type Handlers struct {
	ingestor    Ingestor
	events      EventLister
	getEventUC  EventGetter
	deliveries  DeliveryReader
	subs        SubscriptionGetter
	deliveryAdm DeliveryAdmin
	hub         *stream.Hub
	upgrader    websocket.Upgrader
	log         *slog.Logger
}

func NewHandlers(
	ingestor Ingestor,
	events EventLister,
	getEventUC EventGetter,
	deliveries DeliveryReader,
	subs SubscriptionGetter,
	deliveryAdm DeliveryAdmin,
	hub *stream.Hub,
	log *slog.Logger,
) *Handlers {
	return &Handlers{
		ingestor:    ingestor,
		events:      events,
		getEventUC:  getEventUC,
		deliveries:  deliveries,
		subs:        subs,
		deliveryAdm: deliveryAdm,
		hub:         hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboard origin checks are handled by the auth layer
			// in front of this service.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// ReceiveWebhook accepts LiveKit callbacks. The signature arrives in
// X-Webhook-Signature, with Livekit-Webhook-Signature as the vendor
// fallback.
func (h *Handlers) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	if h.ingestor == nil {
		writeError(w, http.StatusServiceUnavailable, "Webhook processor not initialized")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	signature := r.Header.Get("X-Webhook-Signature")
	if signature == "" {
		signature = r.Header.Get("Livekit-Webhook-Signature")
	}

	result, err := h.ingestor.ProcessWebhook(r.Context(), body, signature)
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrInvalidSignature):
			writeError(w, http.StatusBadRequest, "Invalid signature")
		case errors.Is(err, webhook.ErrInvalidPayload):
			writeError(w, http.StatusBadRequest, "Invalid JSON")
		default:
			h.log.Error("webhook processing error", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal processing error")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, http.StatusServiceUnavailable, "Webhook processor not initialized")
		return
	}

	limit, offset, ok := paginationParams(w, r)
	if !ok {
		return
	}
	kind := r.URL.Query().Get("event_type")

	events, err := h.events.List(r.Context(), kind, limit, offset)
	if err != nil {
		h.log.Error("failed to list events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": emptyIfNilEvents(events),
		"count":  len(events),
		"limit":  limit,
		"offset": offset,
	})
}

func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	e, err := h.getEventUC.Execute(r.Context(), id)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Event not found")
			return
		}
		h.log.Error("failed to get event", "event_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}

	writeJSON(w, http.StatusOK, e)
}

func (h *Handlers) ListDeliveryLogs(w http.ResponseWriter, r *http.Request) {
	if h.deliveries == nil {
		writeError(w, http.StatusServiceUnavailable, "Webhook processor not initialized")
		return
	}

	wid := chi.URLParam(r, "wid")
	limit, offset, ok := paginationParams(w, r)
	if !ok {
		return
	}

	logs, err := h.deliveries.List(r.Context(), wid, limit, offset)
	if err != nil {
		h.log.Error("failed to list delivery logs", "webhook_id", wid, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list delivery logs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"webhook_id": wid,
		"logs":       emptyIfNilDeliveries(logs),
		"count":      len(logs),
		"limit":      limit,
		"offset":     offset,
	})
}

func (h *Handlers) TestWebhook(w http.ResponseWriter, r *http.Request) {
	if h.deliveryAdm == nil {
		writeError(w, http.StatusServiceUnavailable, "Webhook processor not initialized")
		return
	}

	wid := chi.URLParam(r, "wid")

	if _, err := h.subs.Get(r.Context(), wid); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Webhook not found")
			return
		}
		h.log.Error("failed to load webhook", "webhook_id", wid, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load webhook")
		return
	}

	result, err := h.deliveryAdm.TestDelivery(r.Context(), wid)
	if err != nil {
		h.log.Error("test delivery failed", "webhook_id", wid, "error", err)
		writeError(w, http.StatusInternalServerError, "test delivery failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) RetryDelivery(w http.ResponseWriter, r *http.Request) {
	if h.deliveryAdm == nil {
		writeError(w, http.StatusServiceUnavailable, "Webhook processor not initialized")
		return
	}

	wid := chi.URLParam(r, "wid")
	deliveryID := chi.URLParam(r, "delivery_id")

	if _, err := h.subs.Get(r.Context(), wid); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Webhook not found")
			return
		}
		h.log.Error("failed to load webhook", "webhook_id", wid, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load webhook")
		return
	}

	d, err := h.deliveries.Get(r.Context(), deliveryID)
	if err != nil || d.SubscriptionID != wid {
		if err != nil && !errors.Is(err, postgres.ErrNotFound) {
			h.log.Error("failed to load delivery", "delivery_id", deliveryID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load delivery")
			return
		}
		writeError(w, http.StatusNotFound, "Delivery record not found")
		return
	}

	success := h.deliveryAdm.RetryDelivery(r.Context(), deliveryID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     success,
		"delivery_id": deliveryID,
		"webhook_id":  wid,
	})
}

// EventsWebSocket upgrades the connection and hands it to the hub's
// session loop.
func (h *Handlers) EventsWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	h.hub.Serve(conn, "dashboard")
}

func (h *Handlers) WebSocketStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active_connections": h.hub.Count(),
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
	})
}

func paginationParams(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit = defaultLimit
	offset = 0

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return 0, 0, false
		}
		limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be >= 0")
			return 0, 0, false
		}
		offset = n
	}

	return limit, offset, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func emptyIfNilEvents(events []*event.InboundEvent) []*event.InboundEvent {
	if events == nil {
		return []*event.InboundEvent{}
	}
	return events
}

func emptyIfNilDeliveries(logs []*domain.Delivery) []*domain.Delivery {
	if logs == nil {
		return []*domain.Delivery{}
	}
	return logs
}
