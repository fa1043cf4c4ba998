package webhook

import (
	"context"
	"encoding/json"
	"time"
)

// Subscription is an operator-configured outbound endpoint. It is created
// and mutated by the settings layer; this service only reads it to decide
// delivery targets and to sign payloads.
type Subscription struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	URL       string    `json:"url"`
	Secret    string    `json:"secret"`
	// Events is the interest set. Empty means "all kinds".
	Events    []string  `json:"events"`
	CreatedAt time.Time `json:"created_at"`
}

// WantsKind reports whether the subscription should receive events of the
// given kind. An empty interest set matches everything, unknown kinds
// included.
func (s *Subscription) WantsKind(kind string) bool {
	if len(s.Events) == 0 {
		return true
	}
	for _, e := range s.Events {
		if e == kind {
			return true
		}
	}
	return false
}

const (
	DeliveryStatusPending   = "pending"
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusFailed    = "failed"
)

// Delivery is one outbound delivery record. It is created when a
// subscription matches an event and mutated in place on every attempt
// (initial send, manual retry, poller retry). Once delivered it is
// terminal.
type Delivery struct {
	ID             string          `json:"id"`
	SubscriptionID string          `json:"webhook_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	Status         string          `json:"status"`
	ResponseCode   int             `json:"response_code,omitempty"`
	ResponseBody   string          `json:"response_body,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	RetryCount     int             `json:"retry_count"`
	CreatedAt      time.Time       `json:"created_at"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
}

type SubscriptionStore interface {
	Get(ctx context.Context, id string) (*Subscription, error)
	// ListForKind returns subscriptions whose interest set is empty or
	// contains kind.
	ListForKind(ctx context.Context, kind string) ([]*Subscription, error)
}

type DeliveryStore interface {
	Create(ctx context.Context, d *Delivery) error
	Get(ctx context.Context, id string) (*Delivery, error)
	List(ctx context.Context, subscriptionID string, limit, offset int) ([]*Delivery, error)
	RecordResult(ctx context.Context, id string, status string, responseCode int, responseBody string) error
	RecordError(ctx context.Context, id string, errorMessage string) error
	// ClaimRetry atomically increments the retry counter if it is still
	// under max, returning false when the budget is spent or the record
	// is unknown.
	ClaimRetry(ctx context.Context, id string, max int) (bool, error)
	// ClaimRetryable claims up to limit failed deliveries under budget
	// whose last attempt is older than minAge, for the automatic retry
	// poller.
	ClaimRetryable(ctx context.Context, max int, minAge time.Duration, limit int) ([]*Delivery, error)
}
