package authority

import (
	"context"
	"errors"
	"time"

	"github.com/christianlewis024/debater/go/internal/models"
	"github.com/christianlewis024/debater/go/internal/session"
	"github.com/christianlewis024/debater/go/internal/session/store"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// TurnController defines what the authority needs from the session controller.
type TurnController interface {
	GetSession(ctx context.Context, id uuid.UUID) (*models.SessionState, error)
	ClaimLease(ctx context.Context, id uuid.UUID, holderID string, leaseDuration time.Duration) (*models.SessionState, error)
	Tick(ctx context.Context, id uuid.UUID, holderID string, elapsedSeconds int) (*models.SessionState, error)
}

type Config struct {
	LeaseDuration   time.Duration
	RenewalInterval time.Duration // must be < LeaseDuration
	TickInterval    time.Duration
	RetryDelay      time.Duration
}

func DefaultConfig() Config {
	return Config{
		LeaseDuration:   15 * time.Second,
		RenewalInterval: 5 * time.Second,
		TickInterval:    time.Second,
		RetryDelay:      2 * time.Second,
	}
}

// Authority drives the authoritative countdown for one session. Any number
// of instances may run concurrently; the CAS-guarded lease on the session
// record guarantees only one of them ticks at a time. When the holder dies
// its lease expires and another instance takes over within LeaseDuration.
type Authority struct {
	controller TurnController
	sessionID  uuid.UUID
	holderID   string
	clock      clockwork.Clock
	config     Config

	lastTick time.Time
}

func New(controller TurnController, sessionID uuid.UUID, config Config) *Authority {
	return &Authority{
		controller: controller,
		sessionID:  sessionID,
		holderID:   uuid.New().String(),
		clock:      clockwork.NewRealClock(),
		config:     config,
	}
}

// SetClock swaps the wall clock; tests install a clockwork.FakeClock.
func (a *Authority) SetClock(clock clockwork.Clock) {
	a.clock = clock
}

// HolderID returns this instance's lease identity.
func (a *Authority) HolderID() string {
	return a.holderID
}

// Run loops until the session ends or ctx is cancelled: claim the lease when
// it is free, renew it while held, and emit one authoritative tick per
// interval. Losing any race simply demotes this instance back to watching.
func (a *Authority) Run(ctx context.Context) error {
	log.Info().
		Str("session_id", a.sessionID.String()).
		Str("holder_id", a.holderID).
		Msg("timer authority started")

	timer := a.clock.NewTimer(a.config.TickInterval)
	defer timer.Stop()

	for {
		state, err := a.controller.GetSession(ctx, a.sessionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return err
			}
			// Store unreachable: authoritative ticking stops until the
			// lease can be reclaimed.
			log.Warn().Err(err).Str("session_id", a.sessionID.String()).Msg("failed to read session state")
			if !a.wait(ctx, timer, a.config.RetryDelay) {
				return nil
			}
			continue
		}

		if state.Ended {
			log.Info().Str("session_id", a.sessionID.String()).Msg("session ended; timer authority stopping")
			return nil
		}

		now := a.clock.Now()
		if !state.HoldsLease(a.holderID, now) {
			if !a.followerWait(ctx, timer, state, now) {
				return nil
			}
			continue
		}

		// Leader: renew before the lease runs out, then tick.
		if state.AuthorityLeaseExpiresAt.Sub(now) <= a.config.RenewalInterval {
			if _, err := a.controller.ClaimLease(ctx, a.sessionID, a.holderID, a.config.LeaseDuration); err != nil {
				log.Warn().Err(err).Str("session_id", a.sessionID.String()).Msg("lease renewal failed; demoting")
				continue
			}
		}

		if !a.wait(ctx, timer, a.config.TickInterval) {
			return nil
		}
		a.tick(ctx)
	}
}

// followerWait handles the not-holding-the-lease side of the loop: claim an
// expired lease, or sleep until the current one is worth checking again.
func (a *Authority) followerWait(ctx context.Context, timer clockwork.Timer, state *models.SessionState, now time.Time) bool {
	if !state.LeaseExpired(now) {
		wait := state.AuthorityLeaseExpiresAt.Sub(now)
		if wait > a.config.RenewalInterval {
			wait = a.config.RenewalInterval
		}
		return a.wait(ctx, timer, wait)
	}

	if _, err := a.controller.ClaimLease(ctx, a.sessionID, a.holderID, a.config.LeaseDuration); err != nil {
		if errors.Is(err, store.ErrVersionConflict) || errors.Is(err, session.ErrPreconditionFailed) {
			// Another instance won the election.
			log.Debug().Str("session_id", a.sessionID.String()).Msg("lost lease election")
			return a.wait(ctx, timer, a.config.RenewalInterval)
		}
		log.Warn().Err(err).Str("session_id", a.sessionID.String()).Msg("lease claim failed")
		return a.wait(ctx, timer, a.config.RetryDelay)
	}

	log.Info().
		Str("session_id", a.sessionID.String()).
		Str("holder_id", a.holderID).
		Msg("acquired authority lease")
	a.lastTick = a.clock.Now()
	return true
}

// tick emits one authoritative countdown decrement. Elapsed time is measured
// against the previous tick so a slow cycle is not lost.
func (a *Authority) tick(ctx context.Context) {
	now := a.clock.Now()
	elapsed := int(now.Sub(a.lastTick) / time.Second)
	if elapsed < 1 {
		elapsed = 1
	}
	// Pause gaps must not be charged to the speaker on resume.
	a.lastTick = now

	_, err := a.controller.Tick(ctx, a.sessionID, a.holderID, elapsed)
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, session.ErrLeaseNotHeld):
		// Stale timer after losing the election; not an error.
		log.Debug().Str("session_id", a.sessionID.String()).Msg("dropping tick: lease no longer held")
	case errors.Is(err, session.ErrPreconditionFailed):
		// Session paused, not started yet, or just ended. Expected.
		log.Debug().Err(err).Str("session_id", a.sessionID.String()).Msg("tick not applicable")
	default:
		log.Warn().Err(err).Str("session_id", a.sessionID.String()).Msg("tick failed")
	}
}

// wait sleeps for d on the injected clock; false means ctx was cancelled.
func (a *Authority) wait(ctx context.Context, timer clockwork.Timer, d time.Duration) bool {
	if d <= 0 {
		d = time.Millisecond
	}
	timer.Reset(d)
	select {
	case <-timer.Chan():
		return true
	case <-ctx.Done():
		return false
	}
}
