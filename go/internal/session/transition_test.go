package session

import (
	"errors"
	"testing"
	"time"

	"github.com/christianlewis024/debater/go/internal/models"
)

func runningState(maxTurns, duration int) models.SessionState {
	return models.SessionState{
		CurrentTurn:          models.TurnSideA,
		TurnNumber:           1,
		MaxTurns:             maxTurns,
		TurnDurationSeconds:  duration,
		TimeRemainingSeconds: duration,
		Started:              true,
	}
}

func withLease(s models.SessionState, holder string, expiresAt time.Time) models.SessionState {
	s.AuthorityLeaseHolder = holder
	s.AuthorityLeaseExpiresAt = &expiresAt
	return s
}

func TestApplyStart(t *testing.T) {
	s := models.SessionState{
		CurrentTurn:         models.TurnSideA,
		MaxTurns:            4,
		TurnDurationSeconds: 120,
	}

	got, err := applyStart(s)
	if err != nil {
		t.Fatalf("applyStart() error = %v", err)
	}
	if !got.Started {
		t.Error("Started = false, want true")
	}
	if got.CurrentTurn != models.TurnSideA {
		t.Errorf("CurrentTurn = %s, want SIDE_A", got.CurrentTurn)
	}
	if got.TurnNumber != 1 {
		t.Errorf("TurnNumber = %d, want 1", got.TurnNumber)
	}
	if got.TimeRemainingSeconds != 120 {
		t.Errorf("TimeRemainingSeconds = %d, want 120", got.TimeRemainingSeconds)
	}

	if _, err := applyStart(got); !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("second start error = %v, want ErrPreconditionFailed", err)
	}
}

func TestApplySwitchTurn(t *testing.T) {
	t.Run("A to B keeps turn number", func(t *testing.T) {
		s := runningState(4, 60)
		got, err := applySwitchTurn(s, models.SwitchReasonExpired)
		if err != nil {
			t.Fatalf("applySwitchTurn() error = %v", err)
		}
		if got.CurrentTurn != models.TurnSideB || got.TurnNumber != 1 {
			t.Errorf("got turn %s #%d, want SIDE_B #1", got.CurrentTurn, got.TurnNumber)
		}
		if got.TimeRemainingSeconds != 60 {
			t.Errorf("TimeRemainingSeconds = %d, want fresh 60", got.TimeRemainingSeconds)
		}
	})

	t.Run("B to A increments turn number", func(t *testing.T) {
		s := runningState(4, 60)
		s.CurrentTurn = models.TurnSideB
		got, err := applySwitchTurn(s, models.SwitchReasonModeratorSkip)
		if err != nil {
			t.Fatalf("applySwitchTurn() error = %v", err)
		}
		if got.CurrentTurn != models.TurnSideA || got.TurnNumber != 2 {
			t.Errorf("got turn %s #%d, want SIDE_A #2", got.CurrentTurn, got.TurnNumber)
		}
	})

	t.Run("overflow ends session atomically", func(t *testing.T) {
		s := runningState(2, 60)
		s.CurrentTurn = models.TurnSideB
		s.TurnNumber = 2
		got, err := applySwitchTurn(s, models.SwitchReasonExpired)
		if err != nil {
			t.Fatalf("applySwitchTurn() error = %v", err)
		}
		if !got.Ended {
			t.Error("Ended = false, want true")
		}
		if got.TimeRemainingSeconds != 0 {
			t.Errorf("TimeRemainingSeconds = %d, want 0", got.TimeRemainingSeconds)
		}
		// Terminal transition leaves the turn fields where they were.
		if got.CurrentTurn != models.TurnSideB || got.TurnNumber != 2 {
			t.Errorf("turn fields moved: %s #%d", got.CurrentTurn, got.TurnNumber)
		}
	})

	t.Run("turn number never exceeds max", func(t *testing.T) {
		s := runningState(3, 30)
		for i := 0; i < 20; i++ {
			next, err := applySwitchTurn(s, models.SwitchReasonExpired)
			if err != nil {
				break
			}
			if next.TurnNumber > s.MaxTurns {
				t.Fatalf("TurnNumber %d exceeds MaxTurns %d", next.TurnNumber, s.MaxTurns)
			}
			s = next
		}
		if !s.Ended {
			t.Error("session never ended")
		}
	})

	t.Run("rejected while paused", func(t *testing.T) {
		s := runningState(4, 60)
		s.Paused = true
		if _, err := applySwitchTurn(s, models.SwitchReasonExpired); !errors.Is(err, ErrPreconditionFailed) {
			t.Errorf("error = %v, want ErrPreconditionFailed", err)
		}
	})
}

func TestApplyPauseResume(t *testing.T) {
	s := runningState(4, 60)

	paused, err := applyPause(s, 42)
	if err != nil {
		t.Fatalf("applyPause() error = %v", err)
	}
	if !paused.Paused || paused.TimeRemainingSeconds != 42 {
		t.Errorf("paused = %v remaining = %d, want true/42", paused.Paused, paused.TimeRemainingSeconds)
	}

	if _, err := applyPause(paused, 10); !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("double pause error = %v, want ErrPreconditionFailed", err)
	}

	resumed, err := applyResume(paused)
	if err != nil {
		t.Fatalf("applyResume() error = %v", err)
	}
	if resumed.Paused {
		t.Error("Paused = true after resume")
	}
	if resumed.TimeRemainingSeconds != 42 {
		t.Errorf("TimeRemainingSeconds = %d, want 42 preserved across resume", resumed.TimeRemainingSeconds)
	}

	if _, err := applyResume(resumed); !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("resume while running error = %v, want ErrPreconditionFailed", err)
	}
}

func TestApplyPauseFloorsNegativeObservation(t *testing.T) {
	s := runningState(4, 60)
	got, err := applyPause(s, -5)
	if err != nil {
		t.Fatalf("applyPause() error = %v", err)
	}
	if got.TimeRemainingSeconds != 0 {
		t.Errorf("TimeRemainingSeconds = %d, want 0", got.TimeRemainingSeconds)
	}
}

func TestApplyPauseAfterEnd(t *testing.T) {
	s := runningState(4, 60)
	s.Ended = true
	if _, err := applyPause(s, 30); !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("error = %v, want ErrPreconditionFailed", err)
	}
}

func TestApplyAddTime(t *testing.T) {
	s := runningState(4, 60)
	s.TimeRemainingSeconds = 50

	got, err := applyAddTime(s, 30)
	if err != nil {
		t.Fatalf("applyAddTime() error = %v", err)
	}
	// May exceed the configured turn duration.
	if got.TimeRemainingSeconds != 80 {
		t.Errorf("TimeRemainingSeconds = %d, want 80", got.TimeRemainingSeconds)
	}

	if _, err := applyAddTime(s, 0); !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("zero seconds error = %v, want ErrPreconditionFailed", err)
	}
	if _, err := applyAddTime(s, -10); !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("negative seconds error = %v, want ErrPreconditionFailed", err)
	}
}

func TestApplyTick(t *testing.T) {
	now := time.Now()
	lease := now.Add(10 * time.Second)

	t.Run("decrements remaining", func(t *testing.T) {
		s := withLease(runningState(4, 60), "holder-1", lease)
		got, err := applyTick(s, "holder-1", 1, now)
		if err != nil {
			t.Fatalf("applyTick() error = %v", err)
		}
		if got.TimeRemainingSeconds != 59 {
			t.Errorf("TimeRemainingSeconds = %d, want 59", got.TimeRemainingSeconds)
		}
	})

	t.Run("zero crossing switches turn", func(t *testing.T) {
		s := withLease(runningState(4, 60), "holder-1", lease)
		s.TimeRemainingSeconds = 1
		got, err := applyTick(s, "holder-1", 1, now)
		if err != nil {
			t.Fatalf("applyTick() error = %v", err)
		}
		if got.CurrentTurn != models.TurnSideB {
			t.Errorf("CurrentTurn = %s, want SIDE_B", got.CurrentTurn)
		}
		if got.TimeRemainingSeconds != 60 {
			t.Errorf("TimeRemainingSeconds = %d, want fresh 60", got.TimeRemainingSeconds)
		}
	})

	t.Run("final zero crossing ends session", func(t *testing.T) {
		s := withLease(runningState(2, 60), "holder-1", lease)
		s.CurrentTurn = models.TurnSideB
		s.TurnNumber = 2
		s.TimeRemainingSeconds = 1
		got, err := applyTick(s, "holder-1", 1, now)
		if err != nil {
			t.Fatalf("applyTick() error = %v", err)
		}
		if !got.Ended {
			t.Error("Ended = false, want true")
		}
	})

	t.Run("non-holder rejected", func(t *testing.T) {
		s := withLease(runningState(4, 60), "holder-1", lease)
		if _, err := applyTick(s, "holder-2", 1, now); !errors.Is(err, ErrLeaseNotHeld) {
			t.Errorf("error = %v, want ErrLeaseNotHeld", err)
		}
	})

	t.Run("expired lease rejected", func(t *testing.T) {
		s := withLease(runningState(4, 60), "holder-1", now.Add(-time.Second))
		if _, err := applyTick(s, "holder-1", 1, now); !errors.Is(err, ErrLeaseNotHeld) {
			t.Errorf("error = %v, want ErrLeaseNotHeld", err)
		}
	})

	t.Run("paused rejected", func(t *testing.T) {
		s := withLease(runningState(4, 60), "holder-1", lease)
		s.Paused = true
		if _, err := applyTick(s, "holder-1", 1, now); !errors.Is(err, ErrPreconditionFailed) {
			t.Errorf("error = %v, want ErrPreconditionFailed", err)
		}
	})
}

func TestApplyClaimLease(t *testing.T) {
	now := time.Now()
	expires := now.Add(15 * time.Second)

	t.Run("free lease claimable", func(t *testing.T) {
		s := runningState(4, 60)
		got, err := applyClaimLease(s, "holder-1", expires, now)
		if err != nil {
			t.Fatalf("applyClaimLease() error = %v", err)
		}
		if got.AuthorityLeaseHolder != "holder-1" {
			t.Errorf("holder = %q, want holder-1", got.AuthorityLeaseHolder)
		}
	})

	t.Run("held lease not claimable by other", func(t *testing.T) {
		s := withLease(runningState(4, 60), "holder-1", expires)
		if _, err := applyClaimLease(s, "holder-2", expires, now); !errors.Is(err, ErrPreconditionFailed) {
			t.Errorf("error = %v, want ErrPreconditionFailed", err)
		}
	})

	t.Run("holder may renew", func(t *testing.T) {
		s := withLease(runningState(4, 60), "holder-1", expires)
		later := expires.Add(10 * time.Second)
		got, err := applyClaimLease(s, "holder-1", later, now)
		if err != nil {
			t.Fatalf("applyClaimLease() error = %v", err)
		}
		if !got.AuthorityLeaseExpiresAt.Equal(later) {
			t.Errorf("expiry = %v, want %v", got.AuthorityLeaseExpiresAt, later)
		}
	})

	t.Run("expired lease claimable by other", func(t *testing.T) {
		s := withLease(runningState(4, 60), "holder-1", now.Add(-time.Second))
		got, err := applyClaimLease(s, "holder-2", expires, now)
		if err != nil {
			t.Fatalf("applyClaimLease() error = %v", err)
		}
		if got.AuthorityLeaseHolder != "holder-2" {
			t.Errorf("holder = %q, want holder-2", got.AuthorityLeaseHolder)
		}
	})
}

// Full pass through a 2x2 debate driven only by expiry.
func TestTurnLifecycleExpiryOnly(t *testing.T) {
	now := time.Now()
	s := withLease(models.SessionState{
		CurrentTurn:         models.TurnSideA,
		MaxTurns:            2,
		TurnDurationSeconds: 2,
	}, "h", now.Add(time.Hour))

	s, err := applyStart(s)
	if err != nil {
		t.Fatalf("applyStart() error = %v", err)
	}

	wantTurns := []struct {
		side models.TurnSide
		num  int
	}{
		{models.TurnSideB, 1},
		{models.TurnSideA, 2},
		{models.TurnSideB, 2},
	}

	for i, want := range wantTurns {
		for s.TimeRemainingSeconds > 0 && !s.Ended {
			s, err = applyTick(s, "h", 1, now)
			if err != nil {
				t.Fatalf("tick %d: %v", i, err)
			}
			if s.CurrentTurn == want.side && s.TimeRemainingSeconds == s.TurnDurationSeconds {
				break
			}
		}
		if s.CurrentTurn != want.side || s.TurnNumber != want.num {
			t.Fatalf("after expiry %d: turn %s #%d, want %s #%d",
				i, s.CurrentTurn, s.TurnNumber, want.side, want.num)
		}
	}

	// Last expiry ends the session.
	for !s.Ended {
		s, err = applyTick(s, "h", 1, now)
		if err != nil {
			t.Fatalf("final ticks: %v", err)
		}
	}
	if s.TurnNumber != 2 || s.TimeRemainingSeconds != 0 {
		t.Errorf("terminal state: turn #%d remaining %d, want #2 remaining 0", s.TurnNumber, s.TimeRemainingSeconds)
	}
}
