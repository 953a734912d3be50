package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OutboxEvent is one committed session transition awaiting publication.
type OutboxEvent struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

// EventPublisher delivers outbox events to the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}
