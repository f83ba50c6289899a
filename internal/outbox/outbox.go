// Package outbox relays events written inside business transactions to
// Kafka. Events are inserted in the same transaction as the state change
// and published later by Publisher.
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventOrderPlaced is emitted for every committed checkout.
const EventOrderPlaced = "order.placed"

// Event is a pending or published outbox row.
type Event struct {
	ID          uuid.UUID
	AggregateID string
	Type        string
	Payload     []byte
	CreatedAt   time.Time
}

// NewEvent builds an event with a fresh id.
func NewEvent(eventType, aggregateID string, payload []byte) Event {
	return Event{
		ID:          uuid.New(),
		AggregateID: aggregateID,
		Type:        eventType,
		Payload:     payload,
	}
}

// Writer inserts events inside a transaction.
type Writer interface {
	Insert(ctx context.Context, e Event) error
}

// Repository is the publisher's view of the outbox table.
type Repository interface {
	Unpublished(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
}
