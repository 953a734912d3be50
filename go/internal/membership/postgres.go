package membership

import (
	"context"
	"errors"
	"fmt"

	"github.com/christianlewis024/debater/go/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresMembership persists seat assignments in the session_participants
// table, shared by the coordinator and the gateway.
type PostgresMembership struct {
	pool *pgxpool.Pool
}

func NewPostgresMembership(pool *pgxpool.Pool) *PostgresMembership {
	return &PostgresMembership{pool: pool}
}

// SetRole upserts the identity's seat in the session.
func (m *PostgresMembership) SetRole(ctx context.Context, sessionID uuid.UUID, identity string, role models.ParticipantRole) error {
	_, err := m.pool.Exec(ctx, `
		INSERT INTO session_participants (session_id, identity, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, identity) DO UPDATE SET role = EXCLUDED.role`,
		sessionID, identity, string(role))
	if err != nil {
		return fmt.Errorf("failed to set participant role: %w", err)
	}
	return nil
}

func (m *PostgresMembership) RoleOf(ctx context.Context, sessionID uuid.UUID, identity string) (models.ParticipantRole, error) {
	var role string
	err := m.pool.QueryRow(ctx, `
		SELECT role FROM session_participants
		WHERE session_id = $1 AND identity = $2`,
		sessionID, identity).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		// Unknown identities are observers.
		return models.RoleObserver, nil
	}
	if err != nil {
		return models.RoleObserver, fmt.Errorf("failed to resolve participant role: %w", err)
	}
	return models.ParticipantRole(role), nil
}

func (m *PostgresMembership) BothPrincipalsPresent(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	var count int
	err := m.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT role) FROM session_participants
		WHERE session_id = $1 AND role IN ($2, $3)`,
		sessionID, string(models.RoleSideA), string(models.RoleSideB)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count principals: %w", err)
	}
	return count == 2, nil
}

func (m *PostgresMembership) HasModerator(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	var exists bool
	err := m.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM session_participants
			WHERE session_id = $1 AND role = $2
		)`,
		sessionID, string(models.RolePrivileged)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check moderator seat: %w", err)
	}
	return exists, nil
}
