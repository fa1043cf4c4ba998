package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"livehooks/internal/domain/webhook"
)

// SubscriptionRepository reads webhook subscriptions. Rows are owned by
// the settings layer; nothing here writes them.
type SubscriptionRepository struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepository(pool *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

func (r *SubscriptionRepository) Get(ctx context.Context, id string) (*webhook.Subscription, error) {
	const sql = `
		SELECT id, COALESCE(project_id::text, ''), url, COALESCE(secret, ''), events, created_at
		FROM webhooks
		WHERE id = $1
	`

	s := &webhook.Subscription{}
	err := r.pool.QueryRow(ctx, sql, id).Scan(
		&s.ID, &s.ProjectID, &s.URL, &s.Secret, &s.Events, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}

	return s, nil
}

// ListForKind returns subscriptions interested in the kind. An empty
// events array is a wildcard, so unknown kinds still match those.
func (r *SubscriptionRepository) ListForKind(ctx context.Context, kind string) ([]*webhook.Subscription, error) {
	const sql = `
		SELECT id, COALESCE(project_id::text, ''), url, COALESCE(secret, ''), events, created_at
		FROM webhooks
		WHERE events @> to_jsonb(ARRAY[$1::text]) OR events = '[]'::jsonb
	`

	rows, err := r.pool.Query(ctx, sql, kind)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions for kind: %w", err)
	}
	defer rows.Close()

	var subs []*webhook.Subscription
	for rows.Next() {
		s := &webhook.Subscription{}
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.URL, &s.Secret, &s.Events, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, s)
	}

	return subs, rows.Err()
}
