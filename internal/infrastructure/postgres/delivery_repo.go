package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"livehooks/internal/domain/webhook"
)

type DeliveryRepository struct {
	pool *pgxpool.Pool
}

func NewDeliveryRepository(pool *pgxpool.Pool) *DeliveryRepository {
	return &DeliveryRepository{pool: pool}
}

func (r *DeliveryRepository) Create(ctx context.Context, d *webhook.Delivery) error {
	const sql = `
		INSERT INTO webhook_deliveries
			(id, webhook_id, event_type, payload, status, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, sql,
		d.ID, d.SubscriptionID, d.EventType, []byte(d.Payload), d.Status, d.RetryCount, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}

	return nil
}

func (r *DeliveryRepository) Get(ctx context.Context, id string) (*webhook.Delivery, error) {
	const sql = `
		SELECT id, webhook_id, event_type, payload, status,
			COALESCE(response_code, 0), COALESCE(response_body, ''),
			COALESCE(error_message, ''), retry_count, created_at, delivered_at
		FROM webhook_deliveries
		WHERE id = $1
	`

	d := &webhook.Delivery{}
	err := r.pool.QueryRow(ctx, sql, id).Scan(
		&d.ID, &d.SubscriptionID, &d.EventType, &d.Payload, &d.Status,
		&d.ResponseCode, &d.ResponseBody, &d.ErrorMessage,
		&d.RetryCount, &d.CreatedAt, &d.DeliveredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get delivery: %w", err)
	}

	return d, nil
}

// List returns delivery attempts newest first, optionally scoped to one
// subscription.
func (r *DeliveryRepository) List(ctx context.Context, subscriptionID string, limit, offset int) ([]*webhook.Delivery, error) {
	const sql = `
		SELECT id, webhook_id, event_type, payload, status,
			COALESCE(response_code, 0), COALESCE(response_body, ''),
			COALESCE(error_message, ''), retry_count, created_at, delivered_at
		FROM webhook_deliveries
		WHERE ($1 = '' OR webhook_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, sql, subscriptionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*webhook.Delivery
	for rows.Next() {
		d := &webhook.Delivery{}
		if err := rows.Scan(
			&d.ID, &d.SubscriptionID, &d.EventType, &d.Payload, &d.Status,
			&d.ResponseCode, &d.ResponseBody, &d.ErrorMessage,
			&d.RetryCount, &d.CreatedAt, &d.DeliveredAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}

	return deliveries, rows.Err()
}

// RecordResult stores the outcome of an HTTP attempt that reached the
// endpoint. The response body is already truncated by the caller.
func (r *DeliveryRepository) RecordResult(ctx context.Context, id string, status string, responseCode int, responseBody string) error {
	const sql = `
		UPDATE webhook_deliveries
		SET status = $1, response_code = $2, response_body = $3, delivered_at = NOW()
		WHERE id = $4
	`

	_, err := r.pool.Exec(ctx, sql, status, responseCode, responseBody, id)
	if err != nil {
		return fmt.Errorf("record delivery result: %w", err)
	}

	return nil
}

// RecordError marks the delivery failed after a transport-level error
// (timeout, refused connection) that produced no HTTP response.
func (r *DeliveryRepository) RecordError(ctx context.Context, id string, errorMessage string) error {
	const sql = `
		UPDATE webhook_deliveries
		SET status = 'failed', error_message = $1, delivered_at = NOW()
		WHERE id = $2
	`

	_, err := r.pool.Exec(ctx, sql, errorMessage, id)
	if err != nil {
		return fmt.Errorf("record delivery error: %w", err)
	}

	return nil
}

// ClaimRetry spends one unit of the retry budget. The guards live in the
// WHERE clause so two concurrent retries of the same record cannot both
// increment past max, and a delivered record stays terminal.
func (r *DeliveryRepository) ClaimRetry(ctx context.Context, id string, max int) (bool, error) {
	const sql = `
		UPDATE webhook_deliveries
		SET retry_count = retry_count + 1, status = 'pending'
		WHERE id = $1 AND retry_count < $2 AND status <> 'delivered'
	`

	tag, err := r.pool.Exec(ctx, sql, id, max)
	if err != nil {
		return false, fmt.Errorf("claim retry: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ClaimRetryable picks failed deliveries still under budget whose last
// attempt is older than minAge, flips them back to pending and bumps
// their counter in the same statement. SKIP LOCKED keeps concurrent
// poller instances off each other's batches.
func (r *DeliveryRepository) ClaimRetryable(ctx context.Context, max int, minAge time.Duration, limit int) ([]*webhook.Delivery, error) {
	const sql = `
		WITH claimed AS (
			SELECT id
			FROM webhook_deliveries
			WHERE status = 'failed'
			  AND retry_count < $1
			  AND delivered_at < NOW() - make_interval(secs => $2)
			ORDER BY created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE webhook_deliveries
		SET status = 'pending', retry_count = retry_count + 1
		WHERE id IN (SELECT id FROM claimed)
		RETURNING id, webhook_id, event_type, payload, status,
			COALESCE(response_code, 0), COALESCE(response_body, ''),
			COALESCE(error_message, ''), retry_count, created_at, delivered_at
	`

	rows, err := r.pool.Query(ctx, sql, max, minAge.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("claim retryable deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*webhook.Delivery
	for rows.Next() {
		d := &webhook.Delivery{}
		if err := rows.Scan(
			&d.ID, &d.SubscriptionID, &d.EventType, &d.Payload, &d.Status,
			&d.ResponseCode, &d.ResponseBody, &d.ErrorMessage,
			&d.RetryCount, &d.CreatedAt, &d.DeliveredAt); err != nil {
			return nil, fmt.Errorf("scan claimed delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}

	return deliveries, rows.Err()
}
