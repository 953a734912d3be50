package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/christianlewis024/debater/go/internal/membership"
	"github.com/christianlewis024/debater/go/internal/models"
	"github.com/christianlewis024/debater/go/internal/session/events"
	"github.com/christianlewis024/debater/go/internal/session/store"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// OutboxApp defines what the controller needs from the outbox: one insert per
// committed transition, picked up by the relay worker and published to the
// change feed.
type OutboxApp interface {
	InsertSessionStarted(ctx context.Context, sessionID uuid.UUID, payload []byte) error
	InsertTurnSwitched(ctx context.Context, sessionID uuid.UUID, payload []byte) error
	InsertSessionPaused(ctx context.Context, sessionID uuid.UUID, payload []byte) error
	InsertSessionResumed(ctx context.Context, sessionID uuid.UUID, payload []byte) error
	InsertTimeAdded(ctx context.Context, sessionID uuid.UUID, payload []byte) error
	InsertSessionEnded(ctx context.Context, sessionID uuid.UUID, payload []byte) error
	InsertTimerTicked(ctx context.Context, sessionID uuid.UUID, payload []byte) error
	InsertLeaseClaimed(ctx context.Context, sessionID uuid.UUID, payload []byte) error
}

// Controller exposes the session state transitions as preconditioned,
// idempotent commands validated against the current version of the state.
// Every command is read–compute–CAS; conflicts are retried with backoff and
// never double-applied.
type Controller struct {
	store      store.Store
	membership membership.Membership
	outbox     OutboxApp
	clock      clockwork.Clock
	config     ControllerConfig
}

func NewController(st store.Store, members membership.Membership, outbox OutboxApp, config ControllerConfig) *Controller {
	return &Controller{
		store:      st,
		membership: members,
		outbox:     outbox,
		clock:      clockwork.NewRealClock(),
		config:     config,
	}
}

// SetClock swaps the wall clock; tests install a clockwork.FakeClock.
func (c *Controller) SetClock(clock clockwork.Clock) {
	c.clock = clock
}

// CreateSession persists a fresh, unstarted session record.
func (c *Controller) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.SessionState, error) {
	if req.ID == uuid.Nil {
		return nil, fmt.Errorf("id is required: %w", ErrPreconditionFailed)
	}
	if req.MaxTurns < 2 {
		return nil, fmt.Errorf("max_turns must be at least 2: %w", ErrPreconditionFailed)
	}
	if req.TurnDurationSeconds < 1 {
		return nil, fmt.Errorf("turn_duration_seconds must be at least 1: %w", ErrPreconditionFailed)
	}

	state, err := c.store.Create(ctx, models.SessionState{
		ID:                  req.ID,
		CurrentTurn:         models.TurnSideA,
		MaxTurns:            req.MaxTurns,
		TurnDurationSeconds: req.TurnDurationSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Info().
		Str("session_id", state.ID.String()).
		Int("max_turns", state.MaxTurns).
		Int("turn_duration_sec", state.TurnDurationSeconds).
		Msg("session created")
	return &state, nil
}

// GetSession returns the current committed state.
func (c *Controller) GetSession(ctx context.Context, id uuid.UUID) (*models.SessionState, error) {
	state, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Start begins the debate. Requires both principals present and a privileged
// caller; in self-moderated sessions (no moderator seat) a principal may
// start.
func (c *Controller) Start(ctx context.Context, id uuid.UUID, caller string) (*models.SessionState, error) {
	role, err := c.membership.RoleOf(ctx, id, caller)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve caller role: %w: %w", err, ErrUnavailable)
	}
	if role != models.RolePrivileged {
		hasModerator, err := c.membership.HasModerator(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to check moderator seat: %w: %w", err, ErrUnavailable)
		}
		if _, principal := role.Side(); hasModerator || !principal {
			return nil, fmt.Errorf("start requires a privileged caller, got role %s: %w", role, ErrUnauthorized)
		}
	}

	present, err := c.membership.BothPrincipalsPresent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to check principal presence: %w: %w", err, ErrUnavailable)
	}
	if !present {
		return nil, fmt.Errorf("both principals must be present to start: %w", ErrPreconditionFailed)
	}

	committed, err := c.mutate(ctx, id, applyStart)
	if err != nil {
		return nil, err
	}

	c.emit(ctx, id, events.EventTypeSessionStarted, events.SessionStartedPayload{
		State:     committed,
		StartedAt: c.clock.Now(),
	})
	log.Info().Str("session_id", id.String()).Msg("session started")
	return &committed, nil
}

// SwitchTurn skips to the other side on a moderator's request.
func (c *Controller) SwitchTurn(ctx context.Context, id uuid.UUID, caller string, reason models.SwitchReason) (*models.SessionState, error) {
	if err := c.requirePrivileged(ctx, id, caller, "switch turn"); err != nil {
		return nil, err
	}

	prev, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	committed, err := c.mutate(ctx, id, func(s models.SessionState) (models.SessionState, error) {
		return applySwitchTurn(s, reason)
	})
	if err != nil {
		return nil, err
	}

	c.emitTurnOutcome(ctx, prev, committed, reason)
	return &committed, nil
}

// Pause freezes the countdown at the moderator's locally observed remaining
// time.
func (c *Controller) Pause(ctx context.Context, id uuid.UUID, caller string, observedRemaining int) (*models.SessionState, error) {
	if err := c.requirePrivileged(ctx, id, caller, "pause"); err != nil {
		return nil, err
	}

	committed, err := c.mutate(ctx, id, func(s models.SessionState) (models.SessionState, error) {
		return applyPause(s, observedRemaining)
	})
	if err != nil {
		return nil, err
	}

	c.emit(ctx, id, events.EventTypeSessionPaused, events.SessionPausedPayload{
		State:    committed,
		PausedAt: c.clock.Now(),
	})
	log.Info().Str("session_id", id.String()).Int("remaining_sec", committed.TimeRemainingSeconds).Msg("session paused")
	return &committed, nil
}

// Resume unfreezes the countdown. The authority re-arms its lease on the
// next renewal cycle.
func (c *Controller) Resume(ctx context.Context, id uuid.UUID, caller string) (*models.SessionState, error) {
	if err := c.requirePrivileged(ctx, id, caller, "resume"); err != nil {
		return nil, err
	}

	committed, err := c.mutate(ctx, id, applyResume)
	if err != nil {
		return nil, err
	}

	c.emit(ctx, id, events.EventTypeSessionResumed, events.SessionResumedPayload{
		State:     committed,
		ResumedAt: c.clock.Now(),
	})
	log.Info().Str("session_id", id.String()).Msg("session resumed")
	return &committed, nil
}

// AddTime extends the current turn beyond its normal duration.
func (c *Controller) AddTime(ctx context.Context, id uuid.UUID, caller string, seconds int) (*models.SessionState, error) {
	if err := c.requirePrivileged(ctx, id, caller, "add time"); err != nil {
		return nil, err
	}

	committed, err := c.mutate(ctx, id, func(s models.SessionState) (models.SessionState, error) {
		return applyAddTime(s, seconds)
	})
	if err != nil {
		return nil, err
	}

	c.emit(ctx, id, events.EventTypeTimeAdded, events.TimeAddedPayload{
		State:        committed,
		AddedSeconds: seconds,
		AddedAt:      c.clock.Now(),
	})
	log.Info().Str("session_id", id.String()).Int("added_sec", seconds).Msg("time added")
	return &committed, nil
}

// End stops the session unconditionally. Terminal.
func (c *Controller) End(ctx context.Context, id uuid.UUID, caller string) (*models.SessionState, error) {
	if err := c.requirePrivileged(ctx, id, caller, "end"); err != nil {
		return nil, err
	}

	committed, err := c.mutate(ctx, id, applyEnd)
	if err != nil {
		return nil, err
	}

	c.emit(ctx, id, events.EventTypeSessionEnded, events.SessionEndedPayload{
		State:   committed,
		EndedAt: c.clock.Now(),
	})
	log.Info().Str("session_id", id.String()).Msg("session ended")
	return &committed, nil
}

// Tick advances the authoritative countdown. Only the current lease holder
// may tick; stale ticks come back as ErrLeaseNotHeld and are dropped by the
// caller.
func (c *Controller) Tick(ctx context.Context, id uuid.UUID, holderID string, elapsedSeconds int) (*models.SessionState, error) {
	prev, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	committed, err := c.mutate(ctx, id, func(s models.SessionState) (models.SessionState, error) {
		return applyTick(s, holderID, elapsedSeconds, c.clock.Now())
	})
	if err != nil {
		return nil, err
	}

	if committed.Ended || committed.CurrentTurn != prev.CurrentTurn {
		c.emitTurnOutcome(ctx, prev, committed, models.SwitchReasonExpired)
	} else {
		c.emit(ctx, id, events.EventTypeTimerTicked, events.TimerTickedPayload{
			State:          committed,
			ElapsedSeconds: elapsedSeconds,
			TickedAt:       c.clock.Now(),
		})
	}
	return &committed, nil
}

// ClaimLease attempts to take or renew the authority lease. Unlike the other
// commands it is not retried on conflict: when two clients race for an
// expired lease exactly one CAS wins and the loser sees the conflict.
func (c *Controller) ClaimLease(ctx context.Context, id uuid.UUID, holderID string, leaseDuration time.Duration) (*models.SessionState, error) {
	current, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()
	renewal := current.AuthorityLeaseHolder == holderID
	next, err := applyClaimLease(current, holderID, now.Add(leaseDuration), now)
	if err != nil {
		return nil, err
	}

	committed, err := c.store.CompareAndSwap(ctx, id, current.Version, next)
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			if latest, gerr := c.store.Get(ctx, id); gerr == nil && latest.HoldsLease(holderID, now) {
				// Our own claim already landed.
				return &latest, nil
			}
		}
		return nil, err
	}

	if !renewal {
		c.emit(ctx, id, events.EventTypeLeaseClaimed, events.LeaseClaimedPayload{
			State:     committed,
			HolderID:  holderID,
			ExpiresAt: *committed.AuthorityLeaseExpiresAt,
		})
		log.Info().
			Str("session_id", id.String()).
			Str("holder_id", holderID).
			Time("expires_at", *committed.AuthorityLeaseExpiresAt).
			Msg("authority lease claimed")
	}
	return &committed, nil
}

// mutate runs the read–compute–CAS loop with bounded retries. A conflict
// whose re-read already matches the state this command would have produced
// is treated as success, which keeps retried commands idempotent.
func (c *Controller) mutate(ctx context.Context, id uuid.UUID, apply func(models.SessionState) (models.SessionState, error)) (models.SessionState, error) {
	current, err := c.store.Get(ctx, id)
	if err != nil {
		return models.SessionState{}, err
	}

	for attempt := 0; ; attempt++ {
		next, err := apply(current)
		if err != nil {
			return models.SessionState{}, err
		}

		committed, err := c.store.CompareAndSwap(ctx, id, current.Version, next)
		if err == nil {
			return committed, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return models.SessionState{}, err
		}

		latest, getErr := c.store.Get(ctx, id)
		if getErr != nil {
			return models.SessionState{}, getErr
		}
		if sameOutcome(latest, next) {
			return latest, nil
		}

		if attempt+1 >= c.config.RetryAttempts {
			return models.SessionState{}, fmt.Errorf("retries exhausted after %d attempts: %w", c.config.RetryAttempts, ErrBusy)
		}

		backoff := c.config.RetryBackoff << attempt
		log.Debug().
			Str("session_id", id.String()).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("version conflict, retrying command")
		select {
		case <-ctx.Done():
			return models.SessionState{}, ctx.Err()
		case <-c.clock.After(backoff):
		}
		current = latest
	}
}

// sameOutcome reports whether two states agree on every command-relevant
// field. Version, timestamps, and the lease expiry wall clock are excluded:
// a retried command that finds its own effect already committed must not
// re-apply it.
func sameOutcome(a, b models.SessionState) bool {
	return a.CurrentTurn == b.CurrentTurn &&
		a.TurnNumber == b.TurnNumber &&
		a.TimeRemainingSeconds == b.TimeRemainingSeconds &&
		a.Started == b.Started &&
		a.Ended == b.Ended &&
		a.Paused == b.Paused &&
		a.AuthorityLeaseHolder == b.AuthorityLeaseHolder
}

// requirePrivileged rejects the command unless the caller holds the
// privileged seat. A membership backend failure is an availability error,
// never a denial.
func (c *Controller) requirePrivileged(ctx context.Context, id uuid.UUID, caller, op string) error {
	role, err := c.membership.RoleOf(ctx, id, caller)
	if err != nil {
		return fmt.Errorf("failed to resolve caller role: %w: %w", err, ErrUnavailable)
	}
	if role != models.RolePrivileged {
		return fmt.Errorf("%s requires a privileged caller, got role %s: %w", op, role, ErrUnauthorized)
	}
	return nil
}

// emitTurnOutcome emits the event matching what a switch actually did: a
// TurnSwitched when the side flipped, a SessionEnded when the turn budget
// ran out.
func (c *Controller) emitTurnOutcome(ctx context.Context, prev, committed models.SessionState, reason models.SwitchReason) {
	if committed.Ended && !prev.Ended {
		c.emit(ctx, committed.ID, events.EventTypeSessionEnded, events.SessionEndedPayload{
			State:   committed,
			EndedAt: c.clock.Now(),
		})
		log.Info().Str("session_id", committed.ID.String()).Msg("session ended: turn budget exhausted")
		return
	}
	c.emit(ctx, committed.ID, events.EventTypeTurnSwitched, events.TurnSwitchedPayload{
		State:      committed,
		Reason:     reason,
		SwitchedAt: c.clock.Now(),
	})
	log.Info().
		Str("session_id", committed.ID.String()).
		Str("current_turn", string(committed.CurrentTurn)).
		Int("turn_number", committed.TurnNumber).
		Str("reason", string(reason)).
		Msg("turn switched")
}

// emit inserts an outbox row for a committed transition. Failures are logged,
// not surfaced: the state change is already durable and subscribers recover
// through snapshot sync.
func (c *Controller) emit(ctx context.Context, id uuid.UUID, eventType events.EventType, payload any) {
	if c.outbox == nil {
		return
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("session_id", id.String()).Str("event_type", string(eventType)).Msg("failed to marshal event payload")
		return
	}

	var insertErr error
	switch eventType {
	case events.EventTypeSessionStarted:
		insertErr = c.outbox.InsertSessionStarted(ctx, id, payloadBytes)
	case events.EventTypeTurnSwitched:
		insertErr = c.outbox.InsertTurnSwitched(ctx, id, payloadBytes)
	case events.EventTypeSessionPaused:
		insertErr = c.outbox.InsertSessionPaused(ctx, id, payloadBytes)
	case events.EventTypeSessionResumed:
		insertErr = c.outbox.InsertSessionResumed(ctx, id, payloadBytes)
	case events.EventTypeTimeAdded:
		insertErr = c.outbox.InsertTimeAdded(ctx, id, payloadBytes)
	case events.EventTypeSessionEnded:
		insertErr = c.outbox.InsertSessionEnded(ctx, id, payloadBytes)
	case events.EventTypeTimerTicked:
		insertErr = c.outbox.InsertTimerTicked(ctx, id, payloadBytes)
	case events.EventTypeLeaseClaimed:
		insertErr = c.outbox.InsertLeaseClaimed(ctx, id, payloadBytes)
	}
	if insertErr != nil {
		log.Error().Err(insertErr).Str("session_id", id.String()).Str("event_type", string(eventType)).Msg("failed to insert outbox event")
	}
}
