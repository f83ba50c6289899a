package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shopfront/internal/outbox"
)

const (
	insertEventSQL = `INSERT INTO outbox_events (id, aggregate_id, event_type, payload)
		VALUES ($1, $2, $3, $4)`

	unpublishedEventsSQL = `SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox_events WHERE published_at IS NULL
		ORDER BY created_at LIMIT $1`

	markPublishedSQL = `UPDATE outbox_events SET published_at = now() WHERE id = $1`
)

var (
	_ outbox.Writer     = (*OutboxRepository)(nil)
	_ outbox.Repository = (*OutboxRepository)(nil)
)

// OutboxRepository stores events awaiting publication.
type OutboxRepository struct {
	db dbtx
}

// NewOutboxRepository returns an OutboxRepository that uses the given pool.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{db: pool}
}

// Insert adds an event. Inside a checkout transaction it commits with the
// order.
func (r *OutboxRepository) Insert(ctx context.Context, e outbox.Event) error {
	if _, err := r.db.Exec(ctx, insertEventSQL, e.ID, e.AggregateID, e.Type, e.Payload); err != nil {
		return fmt.Errorf("inserting %s event: %w", e.Type, err)
	}
	return nil
}

// Unpublished returns up to limit pending events, oldest first.
func (r *OutboxRepository) Unpublished(ctx context.Context, limit int) ([]outbox.Event, error) {
	rows, err := r.db.Query(ctx, unpublishedEventsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("listing unpublished events: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (outbox.Event, error) {
		var e outbox.Event
		err := row.Scan(&e.ID, &e.AggregateID, &e.Type, &e.Payload, &e.CreatedAt)
		return e, err
	})
}

// MarkPublished stamps an event as delivered.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, markPublishedSQL, id); err != nil {
		return fmt.Errorf("marking event %s published: %w", id, err)
	}
	return nil
}
