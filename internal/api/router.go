package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		// Inbound receiver for the media platform
		r.Post("/webhooks/livekit", h.ReceiveWebhook)

		// Admin reads and triggers; the auth layer in front of this
		// service gates these.
		r.Get("/webhooks/events", h.ListEvents)
		r.Get("/webhooks/events/{id}", h.GetEvent)
		r.Get("/settings/webhooks/{wid}/logs", h.ListDeliveryLogs)
		r.Post("/settings/webhooks/{wid}/test", h.TestWebhook)
		r.Post("/settings/webhooks/{wid}/retry/{delivery_id}", h.RetryDelivery)

		// Live observer channel
		r.Get("/ws/events", h.EventsWebSocket)
		r.Get("/ws/stats", h.WebSocketStats)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
