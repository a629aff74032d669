package goSession

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SweepFunc removes expired sessions and reports how many it removed.
type SweepFunc func(ctx context.Context) int

// Sweeper runs a SweepFunc on a fixed interval from one goroutine. Runs never
// overlap.
type Sweeper struct {
	interval time.Duration
	fn       SweepFunc
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSweeper returns a stopped sweeper.
func NewSweeper(interval time.Duration, fn SweepFunc, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		interval: interval,
		fn:       fn,
		logger:   logger.With().Str("component", "sweeper").Logger(),
	}
}

// Start launches the loop. It returns false if the sweeper is already running
// or cannot run.
func (s *Sweeper) Start() bool {
	if s == nil || s.fn == nil || s.interval <= 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx, s.done)

	s.logger.Info().Dur("interval", s.interval).Msg("sweeper started")
	return true
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep synchronously.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	if s == nil || s.fn == nil {
		return 0
	}
	n := s.fn(ctx)
	if n > 0 {
		s.logger.Info().Int("removed", n).Msg("expired sessions swept")
	}
	return n
}

// Stop cancels the loop and waits for an in-flight sweep to return. Stop is
// idempotent.
func (s *Sweeper) Stop() {
	if s == nil {
		return
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info().Msg("sweeper stopped")
}

// Running reports whether the loop is active.
func (s *Sweeper) Running() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// StartSweeper starts the periodic expiry cleanup at the configured interval.
// It returns false if a sweeper is already running.
func (m *Manager) StartSweeper() bool {
	if !m.ready() {
		return false
	}
	m.sweeperMu.Lock()
	defer m.sweeperMu.Unlock()
	if m.sweeper == nil {
		m.sweeper = NewSweeper(m.cfg.Session.CleanupInterval, m.CleanupExpired, m.logger)
	}
	return m.sweeper.Start()
}

// StopSweeper stops a running sweeper and waits for it.
func (m *Manager) StopSweeper() {
	if m == nil {
		return
	}
	m.sweeperMu.Lock()
	sw := m.sweeper
	m.sweeperMu.Unlock()
	sw.Stop()
}
