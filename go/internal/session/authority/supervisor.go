package authority

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ActiveLister enumerates the sessions that still need a running timer.
type ActiveLister interface {
	ListActive(ctx context.Context) ([]uuid.UUID, error)
}

type SupervisorConfig struct {
	ScanInterval time.Duration
	Authority    Config
}

func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		ScanInterval: 5 * time.Second,
		Authority:    DefaultConfig(),
	}
}

// Supervisor scans for active sessions and keeps one Authority goroutine
// running per session. Multiple supervisors can run side by side: the lease
// decides which process actually ticks each session.
type Supervisor struct {
	controller TurnController
	lister     ActiveLister
	clock      clockwork.Clock
	config     SupervisorConfig

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
	wg      sync.WaitGroup
}

func NewSupervisor(controller TurnController, lister ActiveLister, config SupervisorConfig) *Supervisor {
	return &Supervisor{
		controller: controller,
		lister:     lister,
		clock:      clockwork.NewRealClock(),
		config:     config,
		running:    make(map[uuid.UUID]context.CancelFunc),
	}
}

// Run scans until ctx is cancelled, then waits for all authorities to exit.
func (s *Supervisor) Run(ctx context.Context) error {
	log.Info().Dur("scan_interval", s.config.ScanInterval).Msg("authority supervisor started")

	ticker := s.clock.NewTicker(s.config.ScanInterval)
	defer ticker.Stop()

	s.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("authority supervisor shutting down")
			s.wg.Wait()
			return nil
		case <-ticker.Chan():
			s.scan(ctx)
		}
	}
}

func (s *Supervisor) scan(ctx context.Context) {
	ids, err := s.lister.ListActive(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to list active sessions")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if _, ok := s.running[id]; ok {
			continue
		}
		s.spawnLocked(ctx, id)
	}
}

func (s *Supervisor) spawnLocked(ctx context.Context, id uuid.UUID) {
	authCtx, cancel := context.WithCancel(ctx)
	s.running[id] = cancel

	auth := New(s.controller, id, s.config.Authority)
	auth.SetClock(s.clock)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		if err := auth.Run(authCtx); err != nil {
			log.Warn().Err(err).Str("session_id", id.String()).Msg("authority exited with error")
		}

		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
	}()

	log.Info().Str("session_id", id.String()).Msg("authority spawned")
}

// RunningCount reports how many authorities this supervisor currently owns.
func (s *Supervisor) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}
