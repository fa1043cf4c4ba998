package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"livehooks/internal/domain/event"
)

var ErrNotFound = errors.New("not found")

type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// Admit inserts the event if its id has not been seen before and reports
// whether the row is new. The ON CONFLICT clause is the idempotency
// boundary: two concurrent admissions of the same id race on a single
// atomic insert, never on a read-then-write check.
func (r *EventRepository) Admit(ctx context.Context, e *event.InboundEvent) (bool, error) {
	const sql = `
		INSERT INTO webhook_events
			(id, event_type, room_sid, room_name, participant_sid, participant_identity,
			 track_sid, egress_id, ingress_id, payload, received_at, processed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, sql,
		e.ID, string(e.Kind),
		nullIfEmpty(e.RoomSID), nullIfEmpty(e.RoomName),
		nullIfEmpty(e.ParticipantSID), nullIfEmpty(e.ParticipantIdentity),
		nullIfEmpty(e.TrackSID), nullIfEmpty(e.EgressID), nullIfEmpty(e.IngressID),
		[]byte(e.Payload), e.ReceivedAt, e.Processed)
	if err != nil {
		return false, fmt.Errorf("insert webhook event: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *EventRepository) Get(ctx context.Context, id string) (*event.InboundEvent, error) {
	const sql = `
		SELECT id, event_type,
			COALESCE(room_sid, ''), COALESCE(room_name, ''),
			COALESCE(participant_sid, ''), COALESCE(participant_identity, ''),
			COALESCE(track_sid, ''), COALESCE(egress_id, ''), COALESCE(ingress_id, ''),
			payload, received_at, processed
		FROM webhook_events
		WHERE id = $1
	`

	e := &event.InboundEvent{}
	var kind string
	err := r.pool.QueryRow(ctx, sql, id).Scan(
		&e.ID, &kind,
		&e.RoomSID, &e.RoomName,
		&e.ParticipantSID, &e.ParticipantIdentity,
		&e.TrackSID, &e.EgressID, &e.IngressID,
		&e.Payload, &e.ReceivedAt, &e.Processed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get webhook event: %w", err)
	}
	e.Kind = event.Kind(kind)

	return e, nil
}

// List returns admitted events newest first, optionally filtered by kind.
func (r *EventRepository) List(ctx context.Context, kind string, limit, offset int) ([]*event.InboundEvent, error) {
	const sql = `
		SELECT id, event_type,
			COALESCE(room_sid, ''), COALESCE(room_name, ''),
			COALESCE(participant_sid, ''), COALESCE(participant_identity, ''),
			COALESCE(track_sid, ''), COALESCE(egress_id, ''), COALESCE(ingress_id, ''),
			payload, received_at, processed
		FROM webhook_events
		WHERE ($1 = '' OR event_type = $1)
		ORDER BY received_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, sql, kind, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query webhook events: %w", err)
	}
	defer rows.Close()

	var events []*event.InboundEvent
	for rows.Next() {
		e := &event.InboundEvent{}
		var k string
		if err := rows.Scan(
			&e.ID, &k,
			&e.RoomSID, &e.RoomName,
			&e.ParticipantSID, &e.ParticipantIdentity,
			&e.TrackSID, &e.EgressID, &e.IngressID,
			&e.Payload, &e.ReceivedAt, &e.Processed); err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		e.Kind = event.Kind(k)
		events = append(events, e)
	}

	return events, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
