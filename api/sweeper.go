/*
sweeper.go - Background dose reconciliation

PURPOSE:
  Periodically advances overdue dose statuses (scheduled -> late -> missed)
  through the engine's resolver. This is the only long-lived background
  task in the process.

DESIGN:
  - One goroutine on a fixed tick, owned by the process lifecycle: started
    once at startup, stopped on shutdown.
  - Each tick calls Engine.ReconcileOnce, which logs and skips per-dose
    failures; a bad record never kills the sweep.
  - Races with take actions resolve through the store's conditional
    update; the sweeper's losing write is a no-op.
  - RunNow() triggers an immediate sweep for tests and admin endpoints.

CONFIGURATION:
  - Interval: tick period (default: 1 minute)
  - Enabled: whether the sweeper runs at all

SEE ALSO:
  - engine/engine.go: ReconcileOnce
  - handlers.go: the manual /reconciliation/run endpoint
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nishu1044/MedTrack/engine"
)

// Sweeper drives periodic dose reconciliation.
type Sweeper struct {
	Engine   *engine.Engine
	Clock    engine.Clock
	Interval time.Duration
	Enabled  bool
	Log      zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSweeper creates a sweeper with the default one-minute tick.
func NewSweeper(eng *engine.Engine, clock engine.Clock, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		Engine:   eng,
		Clock:    clock,
		Interval: time.Minute,
		Enabled:  true,
		Log:      log,
		stop:     make(chan struct{}),
	}
}

// Start begins the background loop. The first sweep runs immediately.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Log.Info().Msg("sweeper disabled, not starting")
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)
	go s.run()

	s.Log.Info().Dur("interval", s.Interval).Msg("sweeper started")
}

// Stop stops the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.Log.Info().Msg("sweeper stopped")
	}
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	s.sweep()

	for {
		select {
		case <-s.ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *Sweeper) sweep() {
	ctx := context.Background()
	now := s.Clock.Now()

	transitioned, err := s.Engine.ReconcileOnce(ctx, now)
	if err != nil {
		// Store unavailable. Log and retry next tick.
		s.Log.Error().Err(err).Msg("sweep failed")
		return
	}
	if transitioned > 0 {
		s.Log.Info().Int("transitioned", transitioned).Time("now", now).Msg("sweep completed")
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (s *Sweeper) RunNow() {
	s.sweep()
}
