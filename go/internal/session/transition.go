package session

import (
	"fmt"
	"time"

	"github.com/christianlewis024/debater/go/internal/models"
)

// Transition functions compute the next session state from the current one.
// They are pure: no clock, no store, no side effects. The store assigns the
// new version on commit, so Version and UpdatedAt are left untouched here.

// applyStart begins the debate: side A speaks first with a full clock.
func applyStart(s models.SessionState) (models.SessionState, error) {
	if s.Ended {
		return s, fmt.Errorf("start: session already ended: %w", ErrPreconditionFailed)
	}
	if s.Started {
		return s, fmt.Errorf("start: session already started: %w", ErrPreconditionFailed)
	}
	s.Started = true
	s.CurrentTurn = models.TurnSideA
	s.TurnNumber = 1
	s.TimeRemainingSeconds = s.TurnDurationSeconds
	return s, nil
}

// applySwitchTurn flips the speaking side. Passing from side B back to side A
// completes a turn cycle; a cycle beyond MaxTurns ends the session instead.
func applySwitchTurn(s models.SessionState, reason models.SwitchReason) (models.SessionState, error) {
	if s.Ended {
		return s, fmt.Errorf("switch turn: session ended: %w", ErrPreconditionFailed)
	}
	if !s.Started {
		return s, fmt.Errorf("switch turn: session not started: %w", ErrPreconditionFailed)
	}
	if s.Paused {
		return s, fmt.Errorf("switch turn: session paused: %w", ErrPreconditionFailed)
	}

	next := s.TurnNumber
	if s.CurrentTurn == models.TurnSideB {
		next++
	}
	if next > s.MaxTurns {
		// The transition that would overflow the turn budget ends the
		// session atomically; turn fields stay where they were.
		s.Ended = true
		s.TimeRemainingSeconds = 0
		return s, nil
	}

	s.CurrentTurn = s.CurrentTurn.Opponent()
	s.TurnNumber = next
	s.TimeRemainingSeconds = s.TurnDurationSeconds
	return s, nil
}

// applyPause freezes the clock at the caller's observed remaining time. The
// observed value is accepted verbatim (floored at zero); see DESIGN.md for
// why it is not validated against the authoritative countdown.
func applyPause(s models.SessionState, observedRemaining int) (models.SessionState, error) {
	if s.Ended {
		return s, fmt.Errorf("pause: session ended: %w", ErrPreconditionFailed)
	}
	if !s.Started {
		return s, fmt.Errorf("pause: session not started: %w", ErrPreconditionFailed)
	}
	if s.Paused {
		return s, fmt.Errorf("pause: already paused: %w", ErrPreconditionFailed)
	}
	if observedRemaining < 0 {
		observedRemaining = 0
	}
	s.Paused = true
	s.TimeRemainingSeconds = observedRemaining
	return s, nil
}

func applyResume(s models.SessionState) (models.SessionState, error) {
	if s.Ended {
		return s, fmt.Errorf("resume: session ended: %w", ErrPreconditionFailed)
	}
	if !s.Paused {
		return s, fmt.Errorf("resume: not paused: %w", ErrPreconditionFailed)
	}
	s.Paused = false
	return s, nil
}

// applyAddTime extends the current turn. The result may exceed the turn
// duration; this is the one command allowed to do that.
func applyAddTime(s models.SessionState, seconds int) (models.SessionState, error) {
	if s.Ended {
		return s, fmt.Errorf("add time: session ended: %w", ErrPreconditionFailed)
	}
	if seconds <= 0 {
		return s, fmt.Errorf("add time: seconds must be positive: %w", ErrPreconditionFailed)
	}
	s.TimeRemainingSeconds += seconds
	return s, nil
}

func applyEnd(s models.SessionState) (models.SessionState, error) {
	if s.Ended {
		return s, fmt.Errorf("end: session already ended: %w", ErrPreconditionFailed)
	}
	s.Ended = true
	return s, nil
}

// applyTick advances the authoritative countdown. A zero crossing performs
// the equivalent of applySwitchTurn(Expired) instead of writing a negative
// remainder.
func applyTick(s models.SessionState, holderID string, elapsedSeconds int, now time.Time) (models.SessionState, error) {
	if !s.HoldsLease(holderID, now) {
		return s, fmt.Errorf("tick from %q: %w", holderID, ErrLeaseNotHeld)
	}
	if s.Ended {
		return s, fmt.Errorf("tick: session ended: %w", ErrPreconditionFailed)
	}
	if !s.Started {
		return s, fmt.Errorf("tick: session not started: %w", ErrPreconditionFailed)
	}
	if s.Paused {
		return s, fmt.Errorf("tick: session paused: %w", ErrPreconditionFailed)
	}
	if elapsedSeconds <= 0 {
		return s, fmt.Errorf("tick: elapsed must be positive: %w", ErrPreconditionFailed)
	}

	remaining := s.TimeRemainingSeconds - elapsedSeconds
	if remaining <= 0 {
		return applySwitchTurn(s, models.SwitchReasonExpired)
	}
	s.TimeRemainingSeconds = remaining
	return s, nil
}

// applyClaimLease grants or renews the authority lease. A claim succeeds only
// when the lease is expired, absent, or already held by the claimant.
func applyClaimLease(s models.SessionState, holderID string, expiresAt, now time.Time) (models.SessionState, error) {
	if s.Ended {
		return s, fmt.Errorf("claim lease: session ended: %w", ErrPreconditionFailed)
	}
	if holderID == "" {
		return s, fmt.Errorf("claim lease: holder id required: %w", ErrPreconditionFailed)
	}
	if !s.LeaseExpired(now) && s.AuthorityLeaseHolder != holderID {
		return s, fmt.Errorf("claim lease: held by %q: %w", s.AuthorityLeaseHolder, ErrPreconditionFailed)
	}
	s.AuthorityLeaseHolder = holderID
	s.AuthorityLeaseExpiresAt = &expiresAt
	return s, nil
}
