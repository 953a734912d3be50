package models

import (
	"time"

	"github.com/google/uuid"
)

// TurnSide identifies one of the two debating sides.
type TurnSide string

const (
	TurnSideA TurnSide = "SIDE_A"
	TurnSideB TurnSide = "SIDE_B"
)

// Opponent returns the other side.
func (t TurnSide) Opponent() TurnSide {
	if t == TurnSideA {
		return TurnSideB
	}
	return TurnSideA
}

// ParticipantRole defines how a caller relates to a session. Roles are
// supplied by the membership collaborator; the coordinator never stores them.
type ParticipantRole string

const (
	RoleSideA      ParticipantRole = "SIDE_A"
	RoleSideB      ParticipantRole = "SIDE_B"
	RolePrivileged ParticipantRole = "PRIVILEGED"
	RoleObserver   ParticipantRole = "OBSERVER"
)

// Side maps a principal role to its turn side. ok is false for
// moderators and observers.
func (r ParticipantRole) Side() (TurnSide, bool) {
	switch r {
	case RoleSideA:
		return TurnSideA, true
	case RoleSideB:
		return TurnSideB, true
	default:
		return "", false
	}
}

// SwitchReason records why a turn changed hands.
type SwitchReason string

const (
	SwitchReasonExpired       SwitchReason = "EXPIRED"
	SwitchReasonModeratorSkip SwitchReason = "MODERATOR_SKIP"
)

// SessionPhase is the derived lifecycle phase of a session.
type SessionPhase string

const (
	PhaseUninitialized SessionPhase = "UNINITIALIZED"
	PhaseRunning       SessionPhase = "RUNNING"
	PhasePaused        SessionPhase = "PAUSED"
	PhaseEnded         SessionPhase = "ENDED"
)

// SessionState is the authoritative turn/timer record for one debate.
// It is mutated only through version-gated compare-and-swap writes; every
// committed mutation increments Version by exactly one.
type SessionState struct {
	ID      uuid.UUID `json:"id"`
	Version int64     `json:"version"`

	CurrentTurn          TurnSide `json:"current_turn"`
	TurnNumber           int      `json:"turn_number"`
	MaxTurns             int      `json:"max_turns"`
	TurnDurationSeconds  int      `json:"turn_duration_seconds"`
	TimeRemainingSeconds int      `json:"time_remaining_seconds"`

	Started bool `json:"started"`
	Ended   bool `json:"ended"`
	Paused  bool `json:"paused"`

	// Lease fields live on the same record so lease claims and turn
	// mutations go through the same CAS discipline and cannot race.
	AuthorityLeaseHolder    string     `json:"authority_lease_holder,omitempty"`
	AuthorityLeaseExpiresAt *time.Time `json:"authority_lease_expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Phase derives the lifecycle phase. Ended is terminal.
func (s SessionState) Phase() SessionPhase {
	switch {
	case s.Ended:
		return PhaseEnded
	case !s.Started:
		return PhaseUninitialized
	case s.Paused:
		return PhasePaused
	default:
		return PhaseRunning
	}
}

// LeaseExpired reports whether the authority lease is absent or past its
// expiry at the given instant.
func (s SessionState) LeaseExpired(now time.Time) bool {
	if s.AuthorityLeaseHolder == "" || s.AuthorityLeaseExpiresAt == nil {
		return true
	}
	return !now.Before(*s.AuthorityLeaseExpiresAt)
}

// HoldsLease reports whether holderID owns an unexpired authority lease.
func (s SessionState) HoldsLease(holderID string, now time.Time) bool {
	return s.AuthorityLeaseHolder == holderID && !s.LeaseExpired(now)
}
