package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/christianlewis024/debater/go/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PostgresStore persists SessionState in the debate_sessions table (see
// schema.sql) with a version-gated UPDATE as the CAS primitive.
//
// Subscribe fans out writes committed through this process; cross-process
// observers get the same feed through the outbox → JetStream pipeline, so a
// single coordinator process owns all writes for the sessions it serves.
type PostgresStore struct {
	pool *pgxpool.Pool

	// Serializes commit + local fanout so subscribers see commit order.
	mu   sync.Mutex
	subs map[uuid.UUID]map[*memorySub]bool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool: pool,
		subs: make(map[uuid.UUID]map[*memorySub]bool),
	}
}

const sessionColumns = `id, version, current_turn, turn_number, max_turns, turn_duration_seconds,
	time_remaining_seconds, started, ended, paused, lease_holder, lease_expires_at, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, state models.SessionState) (models.SessionState, error) {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO debate_sessions (
			id, version, current_turn, turn_number, max_turns, turn_duration_seconds,
			time_remaining_seconds, started, ended, paused, lease_holder, lease_expires_at,
			created_at, updated_at
		) VALUES ($1, 1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING `+sessionColumns,
		state.ID, state.CurrentTurn, state.TurnNumber, state.MaxTurns,
		state.TurnDurationSeconds, state.TimeRemainingSeconds,
		state.Started, state.Ended, state.Paused,
		nullIfEmpty(state.AuthorityLeaseHolder), state.AuthorityLeaseExpiresAt,
	)

	created, err := scanSession(row)
	if err != nil {
		return models.SessionState{}, fmt.Errorf("failed to create session: %w", err)
	}
	return created, nil
}

func (p *PostgresStore) Get(ctx context.Context, id uuid.UUID) (models.SessionState, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM debate_sessions WHERE id = $1`, id)

	state, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.SessionState{}, ErrNotFound
		}
		return models.SessionState{}, fmt.Errorf("failed to get session: %w", err)
	}
	return state, nil
}

func (p *PostgresStore) CompareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion int64, next models.SessionState) (models.SessionState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	row := p.pool.QueryRow(ctx, `
		UPDATE debate_sessions SET
			version = version + 1,
			current_turn = $3,
			turn_number = $4,
			time_remaining_seconds = $5,
			started = $6,
			ended = $7,
			paused = $8,
			lease_holder = $9,
			lease_expires_at = $10,
			updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING `+sessionColumns,
		id, expectedVersion,
		next.CurrentTurn, next.TurnNumber, next.TimeRemainingSeconds,
		next.Started, next.Ended, next.Paused,
		nullIfEmpty(next.AuthorityLeaseHolder), next.AuthorityLeaseExpiresAt,
	)

	committed, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the session is gone or the version moved underneath us.
			if _, getErr := p.Get(ctx, id); errors.Is(getErr, ErrNotFound) {
				return models.SessionState{}, ErrNotFound
			}
			return models.SessionState{}, fmt.Errorf("expected version %d: %w", expectedVersion, ErrVersionConflict)
		}
		return models.SessionState{}, fmt.Errorf("failed to swap session state: %w", err)
	}

	for sub := range p.subs[id] {
		select {
		case sub.ch <- committed:
		default:
			log.Warn().Str("session_id", id.String()).Msg("subscriber buffer full, dropping subscriber")
			p.closeSubLocked(id, sub)
		}
	}

	return committed, nil
}

// ListActive returns the IDs of all sessions that have not ended. The
// authority supervisor uses it to decide which timers need driving.
func (p *PostgresStore) ListActive(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := p.pool.Query(ctx, `SELECT id FROM debate_sessions WHERE ended = FALSE`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *PostgresStore) Subscribe(ctx context.Context, id uuid.UUID) (<-chan models.SessionState, func(), error) {
	if _, err := p.Get(ctx, id); err != nil {
		return nil, nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	sub := &memorySub{ch: make(chan models.SessionState, subscriberBuffer)}
	if p.subs[id] == nil {
		p.subs[id] = make(map[*memorySub]bool)
	}
	p.subs[id][sub] = true

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.closeSubLocked(id, sub)
	}
	return sub.ch, cancel, nil
}

func (p *PostgresStore) closeSubLocked(id uuid.UUID, sub *memorySub) {
	if sub.closed {
		return
	}
	sub.closed = true
	delete(p.subs[id], sub)
	if len(p.subs[id]) == 0 {
		delete(p.subs, id)
	}
	close(sub.ch)
}

func scanSession(row pgx.Row) (models.SessionState, error) {
	var s models.SessionState
	var leaseHolder *string
	var leaseExpires *time.Time

	err := row.Scan(
		&s.ID, &s.Version, &s.CurrentTurn, &s.TurnNumber, &s.MaxTurns,
		&s.TurnDurationSeconds, &s.TimeRemainingSeconds,
		&s.Started, &s.Ended, &s.Paused,
		&leaseHolder, &leaseExpires, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return models.SessionState{}, err
	}

	if leaseHolder != nil {
		s.AuthorityLeaseHolder = *leaseHolder
	}
	s.AuthorityLeaseExpiresAt = leaseExpires
	return s, nil
}

func nullIfEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
