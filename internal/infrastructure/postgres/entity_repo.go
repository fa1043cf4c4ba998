package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EntityRepository updates derived egress/ingress status rows as
// lifecycle events arrive. The rows themselves are created by the
// control-plane layer when an egress or ingress is provisioned.
type EntityRepository struct {
	pool *pgxpool.Pool
}

func NewEntityRepository(pool *pgxpool.Pool) *EntityRepository {
	return &EntityRepository{pool: pool}
}

func (r *EntityRepository) SetEgressActive(ctx context.Context, egressID string) error {
	const sql = `UPDATE egresses SET status = 'active' WHERE egress_id = $1`

	if _, err := r.pool.Exec(ctx, sql, egressID); err != nil {
		return fmt.Errorf("set egress active: %w", err)
	}
	return nil
}

func (r *EntityRepository) SetEgressEnded(ctx context.Context, egressID string) error {
	const sql = `UPDATE egresses SET status = 'ended', ended_at = NOW() WHERE egress_id = $1`

	if _, err := r.pool.Exec(ctx, sql, egressID); err != nil {
		return fmt.Errorf("set egress ended: %w", err)
	}
	return nil
}

func (r *EntityRepository) SetIngressActive(ctx context.Context, ingressID string) error {
	const sql = `UPDATE ingresses SET status = 'active' WHERE ingress_id = $1`

	if _, err := r.pool.Exec(ctx, sql, ingressID); err != nil {
		return fmt.Errorf("set ingress active: %w", err)
	}
	return nil
}

func (r *EntityRepository) SetIngressEnded(ctx context.Context, ingressID string) error {
	const sql = `UPDATE ingresses SET status = 'ended' WHERE ingress_id = $1`

	if _, err := r.pool.Exec(ctx, sql, ingressID); err != nil {
		return fmt.Errorf("set ingress ended: %w", err)
	}
	return nil
}
