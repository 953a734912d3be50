package authority

import (
	"context"
	"testing"
	"time"

	"github.com/christianlewis024/debater/go/internal/membership"
	"github.com/christianlewis024/debater/go/internal/models"
	"github.com/christianlewis024/debater/go/internal/session"
	"github.com/christianlewis024/debater/go/internal/session/store"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const testModerator = "mod-1"

type authorityFixture struct {
	controller *session.Controller
	store      *store.MemoryStore
	clock      *clockwork.FakeClock
	sessionID  uuid.UUID
}

func newAuthorityFixture(t *testing.T) *authorityFixture {
	t.Helper()
	ctx := context.Background()

	st := store.NewMemoryStore()
	members := membership.NewMemoryMembership()
	fc := clockwork.NewFakeClock()

	c := session.NewController(st, members, nil, session.DefaultControllerConfig())
	c.SetClock(fc)

	id := uuid.New()
	if _, err := c.CreateSession(ctx, session.CreateSessionRequest{ID: id, MaxTurns: 4, TurnDurationSeconds: 60}); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	members.SetRole(ctx, id, testModerator, models.RolePrivileged)
	members.SetRole(ctx, id, "alice", models.RoleSideA)
	members.SetRole(ctx, id, "bob", models.RoleSideB)

	if _, err := c.Start(ctx, id, testModerator); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	return &authorityFixture{controller: c, store: st, clock: fc, sessionID: id}
}

func (f *authorityFixture) spawn(t *testing.T, ctx context.Context) (*Authority, chan struct{}) {
	t.Helper()
	auth := New(f.controller, f.sessionID, DefaultConfig())
	auth.SetClock(f.clock)

	done := make(chan struct{})
	go func() {
		defer close(done)
		auth.Run(ctx)
	}()
	return auth, done
}

// advanceUntil walks the fake clock forward until cond holds or the real-time
// deadline hits. The small sleeps yield to the authority goroutine.
func (f *authorityFixture) advanceUntil(t *testing.T, cond func(models.SessionState) bool, msg string) models.SessionState {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		state, err := f.store.Get(context.Background(), f.sessionID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if cond(state) {
			return state
		}
		f.clock.Advance(time.Second)
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition never reached: %s", msg)
	return models.SessionState{}
}

func TestAuthorityClaimsLeaseAndDrivesCountdown(t *testing.T) {
	f := newAuthorityFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth, done := f.spawn(t, ctx)

	state := f.advanceUntil(t, func(s models.SessionState) bool {
		return s.TimeRemainingSeconds < 60
	}, "countdown never advanced")

	if state.AuthorityLeaseHolder != auth.HolderID() {
		t.Errorf("lease holder = %q, want %q", state.AuthorityLeaseHolder, auth.HolderID())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("authority did not stop on cancel")
	}
}

func TestAuthorityExpiresTurnAndSwitches(t *testing.T) {
	f := newAuthorityFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.spawn(t, ctx)

	state := f.advanceUntil(t, func(s models.SessionState) bool {
		return s.CurrentTurn == models.TurnSideB
	}, "turn never switched on expiry")

	if state.TurnNumber != 1 {
		t.Errorf("TurnNumber = %d, want 1 after A->B", state.TurnNumber)
	}
	if state.TimeRemainingSeconds > state.TurnDurationSeconds {
		t.Errorf("remaining %d exceeds duration %d", state.TimeRemainingSeconds, state.TurnDurationSeconds)
	}
}

func TestAuthorityStopsWhenSessionEnds(t *testing.T) {
	f := newAuthorityFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, done := f.spawn(t, ctx)

	f.advanceUntil(t, func(s models.SessionState) bool {
		return s.AuthorityLeaseHolder != ""
	}, "lease never claimed")

	if _, err := f.controller.End(context.Background(), f.sessionID, testModerator); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case <-done:
			return
		default:
			f.clock.Advance(time.Second)
			time.Sleep(2 * time.Millisecond)
		}
	}
	t.Fatal("authority kept running after session ended")
}

func TestAuthorityTakesOverExpiredLease(t *testing.T) {
	f := newAuthorityFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A holder that died without releasing.
	if _, err := f.controller.ClaimLease(context.Background(), f.sessionID, "dead-holder", 3*time.Second); err != nil {
		t.Fatalf("ClaimLease() error = %v", err)
	}

	auth, _ := f.spawn(t, ctx)

	state := f.advanceUntil(t, func(s models.SessionState) bool {
		return s.AuthorityLeaseHolder == auth.HolderID()
	}, "authority never took over the expired lease")

	if state.LeaseExpired(f.clock.Now()) {
		t.Error("takeover left the lease expired")
	}
}

func TestTwoAuthoritiesSingleLeaseHolder(t *testing.T) {
	f := newAuthorityFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth1, _ := f.spawn(t, ctx)
	auth2, _ := f.spawn(t, ctx)

	state := f.advanceUntil(t, func(s models.SessionState) bool {
		return s.TimeRemainingSeconds < 55
	}, "countdown never advanced")

	holder := state.AuthorityLeaseHolder
	if holder != auth1.HolderID() && holder != auth2.HolderID() {
		t.Errorf("lease holder %q is neither instance", holder)
	}
}

func TestAuthorityIdlesWhilePaused(t *testing.T) {
	f := newAuthorityFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.spawn(t, ctx)

	f.advanceUntil(t, func(s models.SessionState) bool {
		return s.TimeRemainingSeconds < 60
	}, "countdown never advanced")

	paused, err := f.controller.Pause(context.Background(), f.sessionID, testModerator, 40)
	if err != nil {
		t.Fatalf("Pause() error = %v", err)
	}

	// Let plenty of fake time pass; the frozen clock must not move.
	for i := 0; i < 30; i++ {
		f.clock.Advance(time.Second)
		time.Sleep(2 * time.Millisecond)
	}

	state, err := f.store.Get(context.Background(), f.sessionID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if state.TimeRemainingSeconds != paused.TimeRemainingSeconds {
		t.Errorf("remaining moved %d -> %d while paused", paused.TimeRemainingSeconds, state.TimeRemainingSeconds)
	}

	// After resume the countdown picks up from the frozen value, not lower.
	resumed, err := f.controller.Resume(context.Background(), f.sessionID, testModerator)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	next := f.advanceUntil(t, func(s models.SessionState) bool {
		return s.TimeRemainingSeconds < resumed.TimeRemainingSeconds
	}, "countdown never resumed")

	if next.TimeRemainingSeconds < resumed.TimeRemainingSeconds-5 {
		t.Errorf("pause gap charged to speaker: %d -> %d", resumed.TimeRemainingSeconds, next.TimeRemainingSeconds)
	}
}
