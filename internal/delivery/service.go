package delivery

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"livehooks/internal/domain/webhook"
)

var (
	deliveriesAttempted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_deliveries_attempted_total",
		Help: "The total number of outbound delivery attempts",
	})
	deliveriesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_deliveries_failed_total",
		Help: "The total number of failed outbound delivery attempts",
	})
	deliveriesRetried = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_deliveries_retried_total",
		Help: "The total number of delivery retries",
	})
)

const (
	maxResponseBody = 1000
	maxErrorMessage = 500
	userAgent       = "LiveKit-Webhook/1.0"
)

type Config struct {
	Timeout    time.Duration
	MaxRetries int
}

// Service delivers event payloads to subscription endpoints and records
// every attempt. It never panics past its boundary: all delivery methods
// degrade to a recorded outcome and a boolean.
type Service struct {
	subs       webhook.SubscriptionStore
	deliveries webhook.DeliveryStore
	client     *http.Client
	maxRetries int
	log        *slog.Logger
}

func NewService(subs webhook.SubscriptionStore, deliveries webhook.DeliveryStore, cfg Config, log *slog.Logger) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &Service{
		subs:       subs,
		deliveries: deliveries,
		client:     &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		log:        log,
	}
}

// MatchSubscriptions returns the subscriptions whose interest set is
// empty or contains kind.
func (s *Service) MatchSubscriptions(ctx context.Context, kind string) ([]*webhook.Subscription, error) {
	return s.subs.ListForKind(ctx, kind)
}

// CreateDelivery inserts a pending delivery record and returns its id.
func (s *Service) CreateDelivery(ctx context.Context, subscriptionID, eventType string, payload json.RawMessage) (string, error) {
	d := &webhook.Delivery{
		ID:             uuid.NewString(),
		SubscriptionID: subscriptionID,
		EventType:      eventType,
		Payload:        payload,
		Status:         webhook.DeliveryStatusPending,
		RetryCount:     0,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.deliveries.Create(ctx, d); err != nil {
		return "", fmt.Errorf("create delivery: %w", err)
	}

	return d.ID, nil
}

// Deliver signs and POSTs one delivery's payload to its subscription
// endpoint. Any HTTP status below 400 counts as delivered. The outcome
// lands on the delivery record; the return value only tells the caller
// whether this attempt succeeded.
func (s *Service) Deliver(ctx context.Context, subscriptionID, deliveryID string) bool {
	sub, err := s.subs.Get(ctx, subscriptionID)
	if err != nil {
		s.log.Error("subscription not found for delivery", "webhook_id", subscriptionID, "delivery_id", deliveryID, "error", err)
		return false
	}

	d, err := s.deliveries.Get(ctx, deliveryID)
	if err != nil {
		s.log.Error("delivery record not found", "delivery_id", deliveryID, "error", err)
		return false
	}

	deliveriesAttempted.Inc()

	signature := signPayload(d.Payload, sub.Secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(d.Payload))
	if err != nil {
		s.recordError(ctx, deliveryID, err.Error())
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signaturePrefix+signature)
	req.Header.Set("X-Webhook-ID", sub.ID)
	req.Header.Set("X-Delivery-ID", d.ID)
	req.Header.Set("X-Event-Type", d.EventType)
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		s.recordError(ctx, deliveryID, err.Error())
		s.log.Error("webhook delivery failed", "webhook_id", sub.ID, "delivery_id", deliveryID, "error", err)
		return false
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	status := webhook.DeliveryStatusDelivered
	if resp.StatusCode >= 400 {
		status = webhook.DeliveryStatusFailed
	}
	if err := s.deliveries.RecordResult(ctx, deliveryID, status, resp.StatusCode, string(body)); err != nil {
		s.log.Error("failed to record delivery result", "delivery_id", deliveryID, "error", err)
	}

	if status == webhook.DeliveryStatusDelivered {
		s.log.Info("webhook delivered", "webhook_id", sub.ID, "delivery_id", deliveryID, "response_code", resp.StatusCode)
		return true
	}

	deliveriesFailed.Inc()
	s.log.Warn("webhook delivery rejected", "webhook_id", sub.ID, "delivery_id", deliveryID, "response_code", resp.StatusCode)
	return false
}

// RetryDelivery re-attempts a delivery if its retry budget allows.
// Returns false when the record is unknown or the budget is spent; the
// counter is only incremented when a retry actually runs.
func (s *Service) RetryDelivery(ctx context.Context, deliveryID string) bool {
	claimed, err := s.deliveries.ClaimRetry(ctx, deliveryID, s.maxRetries)
	if err != nil {
		s.log.Error("failed to claim retry", "delivery_id", deliveryID, "error", err)
		return false
	}
	if !claimed {
		s.log.Warn("delivery exceeded max retries or not found", "delivery_id", deliveryID)
		return false
	}

	d, err := s.deliveries.Get(ctx, deliveryID)
	if err != nil {
		s.log.Error("delivery record vanished after claim", "delivery_id", deliveryID, "error", err)
		return false
	}

	deliveriesRetried.Inc()
	return s.Deliver(ctx, d.SubscriptionID, deliveryID)
}

type TestResult struct {
	Success      bool       `json:"success"`
	DeliveryID   string     `json:"delivery_id"`
	Status       string     `json:"status"`
	ResponseCode int        `json:"response_code,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
}

// TestDelivery sends a synthetic test_event through the real delivery
// path so operators can check endpoint connectivity.
func (s *Service) TestDelivery(ctx context.Context, subscriptionID string) (*TestResult, error) {
	payload, err := json.Marshal(map[string]any{
		"event":     "test_event",
		"id":        "test-" + randomHex(8),
		"createdAt": time.Now().UTC().Format(time.RFC3339),
		"webhookId": subscriptionID,
		"message":   "This is a test webhook event",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal test payload: %w", err)
	}

	deliveryID, err := s.CreateDelivery(ctx, subscriptionID, "test_event", payload)
	if err != nil {
		return nil, err
	}

	success := s.Deliver(ctx, subscriptionID, deliveryID)

	d, err := s.deliveries.Get(ctx, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("load test delivery: %w", err)
	}

	return &TestResult{
		Success:      success,
		DeliveryID:   deliveryID,
		Status:       d.Status,
		ResponseCode: d.ResponseCode,
		ErrorMessage: d.ErrorMessage,
		DeliveredAt:  d.DeliveredAt,
	}, nil
}

func (s *Service) recordError(ctx context.Context, deliveryID, msg string) {
	deliveriesFailed.Inc()
	if len(msg) > maxErrorMessage {
		msg = msg[:maxErrorMessage]
	}
	if err := s.deliveries.RecordError(ctx, deliveryID, msg); err != nil {
		s.log.Error("failed to record delivery error", "delivery_id", deliveryID, "error", err)
	}
}

const signaturePrefix = "sha256="

func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return uuid.NewString()
	}
	return hex.EncodeToString(b)
}
