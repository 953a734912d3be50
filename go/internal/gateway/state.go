package gateway

import (
	"sync"
	"time"

	"github.com/christianlewis024/debater/go/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// maxPendingEvents bounds the reorder buffer per session. If a version gap
// persists this long the missing event is presumed lost and the feed jumps
// forward; connected clients resync from the snapshot on reconnect.
const maxPendingEvents = 64

// sessionView is the gateway's local picture of one session: the newest
// committed state, the last version broadcast to clients, and any events that
// arrived ahead of a gap.
type sessionView struct {
	latest        models.SessionState
	latestAt      time.Time // local receipt time, used for display interpolation
	lastBroadcast int64
	pending       map[int64]*SessionEvent
}

// SessionStateManager orders the event feed for clients. The bus does not
// guarantee ordering across redeliveries, but session versions are strictly
// increasing with no gaps, so out-of-order events are buffered until the
// missing predecessor arrives and clients always observe versions in order.
type SessionStateManager struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*sessionView
}

func NewSessionStateManager() *SessionStateManager {
	return &SessionStateManager{
		sessions: make(map[uuid.UUID]*sessionView),
	}
}

// Ingest records an event's committed state and returns the events now ready
// to broadcast, in version order. Duplicates return nil. An event arriving
// ahead of a gap is held back until the gap fills.
func (m *SessionStateManager) Ingest(sessionID uuid.UUID, event *SessionEvent, state models.SessionState) []*SessionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	view, ok := m.sessions[sessionID]
	if !ok {
		// First event seen for this session becomes the baseline.
		view = &sessionView{
			latest:        state,
			latestAt:      time.Now(),
			lastBroadcast: state.Version,
			pending:       make(map[int64]*SessionEvent),
		}
		m.sessions[sessionID] = view
		return []*SessionEvent{event}
	}

	if state.Version <= view.lastBroadcast {
		// Redelivery of something clients already saw.
		return nil
	}

	if state.Version > view.latest.Version {
		view.latest = state
		view.latestAt = time.Now()
	}

	if state.Version != view.lastBroadcast+1 {
		view.pending[state.Version] = event
		if len(view.pending) <= maxPendingEvents {
			return nil
		}
		// The gap is not going to fill. Jump to the oldest buffered version
		// so the feed keeps moving.
		log.Warn().
			Str("session_id", sessionID.String()).
			Int64("last_broadcast", view.lastBroadcast).
			Int("pending", len(view.pending)).
			Msg("version gap did not fill, fast-forwarding event feed")
		next := int64(-1)
		for v := range view.pending {
			if next < 0 || v < next {
				next = v
			}
		}
		view.lastBroadcast = next - 1
	} else {
		view.pending[state.Version] = event
	}

	// Drain the contiguous run starting at lastBroadcast+1.
	var ready []*SessionEvent
	for {
		ev, ok := view.pending[view.lastBroadcast+1]
		if !ok {
			break
		}
		delete(view.pending, view.lastBroadcast+1)
		view.lastBroadcast++
		ready = append(ready, ev)
	}
	return ready
}

// Snapshot returns the newest known state for a session. Used to seed
// reconnecting clients before live events resume.
func (m *SessionStateManager) Snapshot(sessionID uuid.UUID) (models.SessionState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	view, ok := m.sessions[sessionID]
	if !ok {
		return models.SessionState{}, false
	}
	return view.latest, true
}

// SeedSnapshot installs an authoritative state fetched from the store, e.g.
// when a client connects before any event has flowed through the bus. It
// never moves the view backwards.
func (m *SessionStateManager) SeedSnapshot(sessionID uuid.UUID, state models.SessionState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	view, ok := m.sessions[sessionID]
	if !ok {
		m.sessions[sessionID] = &sessionView{
			latest:        state,
			latestAt:      time.Now(),
			lastBroadcast: state.Version,
			pending:       make(map[int64]*SessionEvent),
		}
		return
	}
	if state.Version > view.latest.Version {
		view.latest = state
		view.latestAt = time.Now()
	}
	if state.Version > view.lastBroadcast {
		view.lastBroadcast = state.Version
		for v := range view.pending {
			if v <= state.Version {
				delete(view.pending, v)
			}
		}
	}
}

// EstimateRemaining interpolates a smooth countdown between authoritative
// ticks. Display-only: the next event from the authority overrides it.
func (m *SessionStateManager) EstimateRemaining(sessionID uuid.UUID, now time.Time) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	view, ok := m.sessions[sessionID]
	if !ok {
		return 0, false
	}

	remaining := view.latest.TimeRemainingSeconds
	if view.latest.Phase() == models.PhaseRunning {
		remaining -= int(now.Sub(view.latestAt) / time.Second)
	}
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Forget drops local state for an ended session.
func (m *SessionStateManager) Forget(sessionID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}
