package store

import (
	"context"
	"errors"

	"github.com/christianlewis024/debater/go/internal/models"
	"github.com/google/uuid"
)

// ErrVersionConflict is returned by CompareAndSwap when the expected version
// no longer matches the committed record. Callers re-read and retry.
var ErrVersionConflict = errors.New("version conflict")

// ErrNotFound is returned when no session exists for the given id.
var ErrNotFound = errors.New("session not found")

// Store is the durable, versioned home of SessionState. It never interprets
// mutation semantics: it enforces the version precondition, assigns the next
// version on commit, and fans successful writes out to subscribers in commit
// order.
type Store interface {
	// Create persists a fresh session record at version 1.
	Create(ctx context.Context, state models.SessionState) (models.SessionState, error)

	// Get returns the current committed state.
	Get(ctx context.Context, id uuid.UUID) (models.SessionState, error)

	// CompareAndSwap commits next if and only if the stored version equals
	// expectedVersion. On success the returned state carries version
	// expectedVersion+1. On mismatch it returns ErrVersionConflict.
	CompareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion int64, next models.SessionState) (models.SessionState, error)

	// Subscribe returns a channel of committed states for one session, in
	// strictly increasing version order with no gaps. cancel releases the
	// subscription and closes the channel.
	Subscribe(ctx context.Context, id uuid.UUID) (updates <-chan models.SessionState, cancel func(), err error)
}
