package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/christianlewis024/debater/go/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const subscriberBuffer = 256

// MemoryStore is an in-process Store used for single-node deployments and
// tests. Writes are serialized under one mutex, which makes the CAS check
// and the commit a single atomic step.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]models.SessionState
	subs     map[uuid.UUID]map[*memorySub]bool
}

type memorySub struct {
	ch     chan models.SessionState
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[uuid.UUID]models.SessionState),
		subs:     make(map[uuid.UUID]map[*memorySub]bool),
	}
}

func (m *MemoryStore) Create(ctx context.Context, state models.SessionState) (models.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[state.ID]; exists {
		return models.SessionState{}, fmt.Errorf("session %s already exists", state.ID)
	}

	now := time.Now().UTC()
	state.Version = 1
	state.CreatedAt = now
	state.UpdatedAt = now
	m.sessions[state.ID] = state
	return state, nil
}

func (m *MemoryStore) Get(ctx context.Context, id uuid.UUID) (models.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return models.SessionState{}, ErrNotFound
	}
	return state, nil
}

func (m *MemoryStore) CompareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion int64, next models.SessionState) (models.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.sessions[id]
	if !ok {
		return models.SessionState{}, ErrNotFound
	}
	if current.Version != expectedVersion {
		return models.SessionState{}, fmt.Errorf("expected version %d, have %d: %w", expectedVersion, current.Version, ErrVersionConflict)
	}

	next.ID = id
	next.Version = expectedVersion + 1
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = time.Now().UTC()
	m.sessions[id] = next

	// Fan out under the lock so subscribers see commit order.
	for sub := range m.subs[id] {
		select {
		case sub.ch <- next:
		default:
			// Subscriber stopped draining; dropping an update would leave a
			// version gap, so drop the subscriber instead.
			log.Warn().Str("session_id", id.String()).Msg("subscriber buffer full, dropping subscriber")
			m.closeSubLocked(id, sub)
		}
	}

	return next, nil
}

// ListActive returns the IDs of all sessions that have not ended.
func (m *MemoryStore) ListActive(ctx context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []uuid.UUID
	for id, state := range m.sessions {
		if !state.Ended {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, id uuid.UUID) (<-chan models.SessionState, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return nil, nil, ErrNotFound
	}

	sub := &memorySub{ch: make(chan models.SessionState, subscriberBuffer)}
	if m.subs[id] == nil {
		m.subs[id] = make(map[*memorySub]bool)
	}
	m.subs[id][sub] = true

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.closeSubLocked(id, sub)
	}
	return sub.ch, cancel, nil
}

func (m *MemoryStore) closeSubLocked(id uuid.UUID, sub *memorySub) {
	if sub.closed {
		return
	}
	sub.closed = true
	delete(m.subs[id], sub)
	if len(m.subs[id]) == 0 {
		delete(m.subs, id)
	}
	close(sub.ch)
}
