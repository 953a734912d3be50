package membership

import (
	"context"
	"sync"

	"github.com/christianlewis024/debater/go/internal/models"
	"github.com/google/uuid"
)

// Membership is the external collaborator that owns who occupies which seat
// in a session. The coordinator only consumes a role lookup and presence
// booleans; joining and leaving live outside this module.
type Membership interface {
	// RoleOf resolves the caller identity to its role in the session.
	// Unknown identities are observers.
	RoleOf(ctx context.Context, sessionID uuid.UUID, identity string) (models.ParticipantRole, error)

	// BothPrincipalsPresent reports whether both debating sides have joined.
	BothPrincipalsPresent(ctx context.Context, sessionID uuid.UUID) (bool, error)

	// HasModerator reports whether a privileged participant is configured.
	// Sessions without one are self-moderated: the principals may start.
	HasModerator(ctx context.Context, sessionID uuid.UUID) (bool, error)
}

// RoleWriter is implemented by memberships that accept seat assignments.
type RoleWriter interface {
	SetRole(ctx context.Context, sessionID uuid.UUID, identity string, role models.ParticipantRole) error
}

// MemoryMembership is an in-process Membership for development and tests.
type MemoryMembership struct {
	mu    sync.RWMutex
	seats map[uuid.UUID]map[string]models.ParticipantRole
}

func NewMemoryMembership() *MemoryMembership {
	return &MemoryMembership{
		seats: make(map[uuid.UUID]map[string]models.ParticipantRole),
	}
}

// SetRole assigns identity to a seat in the session.
func (m *MemoryMembership) SetRole(ctx context.Context, sessionID uuid.UUID, identity string, role models.ParticipantRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.seats[sessionID] == nil {
		m.seats[sessionID] = make(map[string]models.ParticipantRole)
	}
	m.seats[sessionID][identity] = role
	return nil
}

func (m *MemoryMembership) RoleOf(ctx context.Context, sessionID uuid.UUID, identity string) (models.ParticipantRole, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if role, ok := m.seats[sessionID][identity]; ok {
		return role, nil
	}
	return models.RoleObserver, nil
}

func (m *MemoryMembership) BothPrincipalsPresent(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var haveA, haveB bool
	for _, role := range m.seats[sessionID] {
		switch role {
		case models.RoleSideA:
			haveA = true
		case models.RoleSideB:
			haveB = true
		}
	}
	return haveA && haveB, nil
}

func (m *MemoryMembership) HasModerator(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, role := range m.seats[sessionID] {
		if role == models.RolePrivileged {
			return true, nil
		}
	}
	return false, nil
}
