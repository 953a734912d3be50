package outbox

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/christianlewis024/debater/go/internal/session/events"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

// Repository persists outbox rows in the session_outbox table. Inserts happen
// on the command path; fetch/mark run inside the relay worker's transaction.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) insert(ctx context.Context, sessionID uuid.UUID, eventType events.EventType, payload []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session_outbox (id, session_id, event_type, payload)
		VALUES ($1, $2, $3, $4)`,
		uuid.New(), sessionID, string(eventType), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s outbox event: %w", eventType, err)
	}
	return nil
}

func (r *Repository) InsertSessionStarted(ctx context.Context, sessionID uuid.UUID, payload []byte) error {
	return r.insert(ctx, sessionID, events.EventTypeSessionStarted, payload)
}

func (r *Repository) InsertTurnSwitched(ctx context.Context, sessionID uuid.UUID, payload []byte) error {
	return r.insert(ctx, sessionID, events.EventTypeTurnSwitched, payload)
}

func (r *Repository) InsertSessionPaused(ctx context.Context, sessionID uuid.UUID, payload []byte) error {
	return r.insert(ctx, sessionID, events.EventTypeSessionPaused, payload)
}

func (r *Repository) InsertSessionResumed(ctx context.Context, sessionID uuid.UUID, payload []byte) error {
	return r.insert(ctx, sessionID, events.EventTypeSessionResumed, payload)
}

func (r *Repository) InsertTimeAdded(ctx context.Context, sessionID uuid.UUID, payload []byte) error {
	return r.insert(ctx, sessionID, events.EventTypeTimeAdded, payload)
}

func (r *Repository) InsertSessionEnded(ctx context.Context, sessionID uuid.UUID, payload []byte) error {
	return r.insert(ctx, sessionID, events.EventTypeSessionEnded, payload)
}

func (r *Repository) InsertTimerTicked(ctx context.Context, sessionID uuid.UUID, payload []byte) error {
	return r.insert(ctx, sessionID, events.EventTypeTimerTicked, payload)
}

func (r *Repository) InsertLeaseClaimed(ctx context.Context, sessionID uuid.UUID, payload []byte) error {
	return r.insert(ctx, sessionID, events.EventTypeLeaseClaimed, payload)
}

// Queries binds fetch/mark statements to one worker transaction.
type Queries struct {
	tx *sql.Tx
}

func NewQueries(tx *sql.Tx) *Queries {
	return &Queries{tx: tx}
}

// FetchUnsent claims up to limit unpublished events, oldest first, skipping
// rows locked by a competing relay instance.
func (q *Queries) FetchUnsent(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	rows, err := q.tx.QueryContext(ctx, `
		SELECT id, session_id, event_type, payload, created_at
		FROM session_outbox
		WHERE sent_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var out []OutboxEvent
	for rows.Next() {
		var ev OutboxEvent
		var payload pqtype.NullRawMessage
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.EventType, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		if payload.Valid {
			ev.Payload = []byte(payload.RawMessage)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// MarkSent stamps the given events as published.
func (q *Queries) MarkSent(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	idStrings := make([]string, len(ids))
	for i, id := range ids {
		idStrings[i] = id.String()
	}
	_, err := q.tx.ExecContext(ctx, `
		UPDATE session_outbox SET sent_at = now()
		WHERE id = ANY($1::uuid[])`, pq.Array(idStrings))
	if err != nil {
		return fmt.Errorf("failed to mark outbox events sent: %w", err)
	}
	return nil
}
