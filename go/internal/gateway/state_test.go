package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/christianlewis024/debater/go/internal/models"
	"github.com/google/uuid"
)

func makeEvent(t *testing.T, sessionID uuid.UUID, version int64) (*SessionEvent, models.SessionState) {
	t.Helper()
	state := models.SessionState{
		ID:                   sessionID,
		Version:              version,
		CurrentTurn:          models.TurnSideA,
		TurnNumber:           1,
		MaxTurns:             4,
		TurnDurationSeconds:  60,
		TimeRemainingSeconds: 60,
		Started:              true,
	}
	data, err := json.Marshal(statePayload{State: state})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &SessionEvent{
		ID:        uuid.New().String(),
		SessionID: sessionID.String(),
		Type:      EventTypeTimerTicked,
		Timestamp: time.Now(),
		Data:      data,
	}, state
}

func versionsOf(t *testing.T, events []*SessionEvent) []int64 {
	t.Helper()
	var out []int64
	for _, ev := range events {
		state, err := ExtractState(ev)
		if err != nil {
			t.Fatalf("ExtractState: %v", err)
		}
		out = append(out, state.Version)
	}
	return out
}

func TestIngestInOrder(t *testing.T) {
	m := NewSessionStateManager()
	id := uuid.New()

	for v := int64(1); v <= 3; v++ {
		ev, state := makeEvent(t, id, v)
		ready := m.Ingest(id, ev, state)
		if got := versionsOf(t, ready); len(got) != 1 || got[0] != v {
			t.Fatalf("Ingest(v%d) released %v, want [%d]", v, got, v)
		}
	}
}

func TestIngestBuffersOutOfOrder(t *testing.T) {
	m := NewSessionStateManager()
	id := uuid.New()

	ev1, s1 := makeEvent(t, id, 1)
	ev2, s2 := makeEvent(t, id, 2)
	ev3, s3 := makeEvent(t, id, 3)
	ev4, s4 := makeEvent(t, id, 4)

	m.Ingest(id, ev1, s1)

	// 3 and 4 arrive ahead of 2: both held back.
	if ready := m.Ingest(id, ev3, s3); len(ready) != 0 {
		t.Fatalf("v3 released early: %v", versionsOf(t, ready))
	}
	if ready := m.Ingest(id, ev4, s4); len(ready) != 0 {
		t.Fatalf("v4 released early: %v", versionsOf(t, ready))
	}

	// 2 fills the gap and drains the whole run.
	ready := m.Ingest(id, ev2, s2)
	got := versionsOf(t, ready)
	want := []int64{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("released %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("released %v, want %v", got, want)
		}
	}
}

func TestIngestDropsDuplicates(t *testing.T) {
	m := NewSessionStateManager()
	id := uuid.New()

	ev1, s1 := makeEvent(t, id, 1)
	ev2, s2 := makeEvent(t, id, 2)

	m.Ingest(id, ev1, s1)
	m.Ingest(id, ev2, s2)

	if ready := m.Ingest(id, ev2, s2); ready != nil {
		t.Errorf("redelivered event released %v, want nil", versionsOf(t, ready))
	}
	if ready := m.Ingest(id, ev1, s1); ready != nil {
		t.Errorf("stale event released %v, want nil", versionsOf(t, ready))
	}
}

func TestIngestFastForwardsUnfillableGap(t *testing.T) {
	m := NewSessionStateManager()
	id := uuid.New()

	ev1, s1 := makeEvent(t, id, 1)
	m.Ingest(id, ev1, s1)

	// Version 2 never arrives; buffer versions 3..3+maxPendingEvents.
	var lastReady []int64
	for v := int64(3); ; v++ {
		ev, s := makeEvent(t, id, v)
		ready := m.Ingest(id, ev, s)
		if len(ready) > 0 {
			lastReady = versionsOf(t, ready)
			break
		}
		if v > int64(maxPendingEvents)+10 {
			t.Fatal("feed never fast-forwarded past the gap")
		}
	}

	// After the jump the released run must itself be contiguous.
	for i := 1; i < len(lastReady); i++ {
		if lastReady[i] != lastReady[i-1]+1 {
			t.Fatalf("fast-forwarded run has a gap: %v", lastReady)
		}
	}
}

func TestIngestIsolatesSessions(t *testing.T) {
	m := NewSessionStateManager()
	idA := uuid.New()
	idB := uuid.New()

	evA, sA := makeEvent(t, idA, 5)
	evB, sB := makeEvent(t, idB, 1)

	m.Ingest(idA, evA, sA)
	if ready := m.Ingest(idB, evB, sB); len(ready) != 1 {
		t.Errorf("session B blocked by session A's feed")
	}
}

func TestSnapshotTracksNewestState(t *testing.T) {
	m := NewSessionStateManager()
	sessionID := uuid.New()

	ev1, s1 := makeEvent(t, sessionID, 1)
	ev3, s3 := makeEvent(t, sessionID, 3)

	m.Ingest(sessionID, ev1, s1)
	m.Ingest(sessionID, ev3, s3) // buffered, but still the newest known state

	snap, ok := m.Snapshot(sessionID)
	if !ok {
		t.Fatal("Snapshot() ok = false")
	}
	if snap.Version != 3 {
		t.Errorf("snapshot version = %d, want newest 3", snap.Version)
	}
}

func TestSeedSnapshotNeverMovesBackwards(t *testing.T) {
	m := NewSessionStateManager()
	sessionID := uuid.New()

	ev5, s5 := makeEvent(t, sessionID, 5)
	m.Ingest(sessionID, ev5, s5)

	_, stale := makeEvent(t, sessionID, 2)
	m.SeedSnapshot(sessionID, stale)

	snap, _ := m.Snapshot(sessionID)
	if snap.Version != 5 {
		t.Errorf("snapshot version = %d, want 5 preserved", snap.Version)
	}
}

func TestEstimateRemainingInterpolates(t *testing.T) {
	m := NewSessionStateManager()
	sessionID := uuid.New()

	ev, state := makeEvent(t, sessionID, 1)
	m.Ingest(sessionID, ev, state)

	now := time.Now()
	got, ok := m.EstimateRemaining(sessionID, now.Add(5*time.Second))
	if !ok {
		t.Fatal("EstimateRemaining() ok = false")
	}
	if got > 60 || got < 54 {
		t.Errorf("estimate = %d, want roughly 55", got)
	}

	// Never negative, no matter how stale the state.
	got, _ = m.EstimateRemaining(sessionID, now.Add(10*time.Minute))
	if got != 0 {
		t.Errorf("stale estimate = %d, want floor 0", got)
	}
}

func TestEstimateRemainingFrozenWhilePaused(t *testing.T) {
	m := NewSessionStateManager()
	sessionID := uuid.New()

	_, state := makeEvent(t, sessionID, 1)
	state.Paused = true
	state.TimeRemainingSeconds = 40
	m.SeedSnapshot(sessionID, state)

	got, ok := m.EstimateRemaining(sessionID, time.Now().Add(time.Minute))
	if !ok {
		t.Fatal("EstimateRemaining() ok = false")
	}
	if got != 40 {
		t.Errorf("paused estimate = %d, want frozen 40", got)
	}
}
