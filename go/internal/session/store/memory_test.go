package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/christianlewis024/debater/go/internal/models"
	"github.com/google/uuid"
)

func seedSession(t *testing.T, m *MemoryStore) models.SessionState {
	t.Helper()
	state, err := m.Create(context.Background(), models.SessionState{
		ID:                   uuid.New(),
		CurrentTurn:          models.TurnSideA,
		MaxTurns:             4,
		TurnDurationSeconds:  60,
		TimeRemainingSeconds: 60,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return state
}

func TestCreateAssignsVersionOne(t *testing.T) {
	m := NewMemoryStore()
	state := seedSession(t, m)
	if state.Version != 1 {
		t.Errorf("Version = %d, want 1", state.Version)
	}
}

func TestCompareAndSwap(t *testing.T) {
	ctx := context.Background()

	t.Run("matching version commits", func(t *testing.T) {
		m := NewMemoryStore()
		state := seedSession(t, m)

		state.Started = true
		committed, err := m.CompareAndSwap(ctx, state.ID, 1, state)
		if err != nil {
			t.Fatalf("CompareAndSwap() error = %v", err)
		}
		if committed.Version != 2 {
			t.Errorf("Version = %d, want 2", committed.Version)
		}
		if !committed.Started {
			t.Error("Started not committed")
		}
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		m := NewMemoryStore()
		state := seedSession(t, m)

		if _, err := m.CompareAndSwap(ctx, state.ID, 1, state); err != nil {
			t.Fatalf("CompareAndSwap() error = %v", err)
		}
		if _, err := m.CompareAndSwap(ctx, state.ID, 1, state); !errors.Is(err, ErrVersionConflict) {
			t.Errorf("error = %v, want ErrVersionConflict", err)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		m := NewMemoryStore()
		if _, err := m.CompareAndSwap(ctx, uuid.New(), 1, models.SessionState{}); !errors.Is(err, ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}

// Many writers race the same expected version; exactly one commit must win
// per version.
func TestConcurrentCASOneWinnerPerVersion(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	state := seedSession(t, m)

	const writers = 16
	var wg sync.WaitGroup
	wins := make(chan int64, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			next := state
			next.TimeRemainingSeconds = n
			if committed, err := m.CompareAndSwap(ctx, state.ID, 1, next); err == nil {
				wins <- committed.Version
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners []int64
	for v := range wins {
		winners = append(winners, v)
	}
	if len(winners) != 1 {
		t.Fatalf("got %d winners for version 1, want exactly 1", len(winners))
	}
	if winners[0] != 2 {
		t.Errorf("winner committed version %d, want 2", winners[0])
	}
}

func TestSubscribeObservesCommitOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	state := seedSession(t, m)

	ch, cancel, err := m.Subscribe(ctx, state.ID)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer cancel()

	const commits = 50
	current := state
	for i := 0; i < commits; i++ {
		next := current
		next.TimeRemainingSeconds = 60 - i
		committed, err := m.CompareAndSwap(ctx, current.ID, current.Version, next)
		if err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
		current = committed
	}

	last := state.Version
	for i := 0; i < commits; i++ {
		got := <-ch
		if got.Version != last+1 {
			t.Fatalf("observed version %d after %d, want contiguous", got.Version, last)
		}
		last = got.Version
	}
}

func TestSubscribeUnknownSession(t *testing.T) {
	m := NewMemoryStore()
	if _, _, err := m.Subscribe(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestSlowSubscriberDroppedNotGapped(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	state := seedSession(t, m)

	ch, cancel, err := m.Subscribe(ctx, state.ID)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer cancel()

	// Overflow the subscriber buffer without draining.
	current := state
	for i := 0; i < subscriberBuffer+10; i++ {
		next := current
		next.TurnNumber = i
		committed, err := m.CompareAndSwap(ctx, current.ID, current.Version, next)
		if err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
		current = committed
	}

	// The channel must deliver a contiguous prefix and then close; a gap
	// followed by more updates would be a correctness bug.
	last := state.Version
	for got := range ch {
		if got.Version != last+1 {
			t.Fatalf("gap: version %d after %d", got.Version, last)
		}
		last = got.Version
	}
}

func TestListActiveSkipsEnded(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	active := seedSession(t, m)
	ended := seedSession(t, m)

	next := ended
	next.Ended = true
	if _, err := m.CompareAndSwap(ctx, ended.ID, 1, next); err != nil {
		t.Fatalf("CompareAndSwap() error = %v", err)
	}

	ids, err := m.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != active.ID {
		t.Errorf("ListActive() = %v, want [%s]", ids, active.ID)
	}
}
