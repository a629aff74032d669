package goSession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/security"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/token"
	"github.com/rs/zerolog"
)

// Manager orchestrates the session lifecycle over a repository, a token codec
// and a security validator. It is the only writer of its repository.
//
// Creation and destroy-all are serialized per user; validate and refresh are
// serialized per session. Repository primitives are atomic on their own, so
// destroy and the cleanup sweep need no lock.
type Manager struct {
	cfg       Config
	backend   string
	repo      session.Repository
	ownsRepo  bool
	codec     *token.Codec
	validator *security.Validator
	flows     flows.Service
	logger    zerolog.Logger
	metrics   *Metrics
	audit     *internalaudit.Dispatcher
	now       func() time.Time

	userLocks    stripedLocks
	sessionLocks stripedLocks

	sweeperMu sync.Mutex
	sweeper   *Sweeper
	closeOnce sync.Once
	closed    atomic.Bool
}

func (m *Manager) ready() bool {
	return m != nil && m.repo != nil && m.flows.Initialized() && !m.closed.Load()
}

func (m *Manager) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, m.cfg.Store.OperationTimeout)
}

// storageErr keeps the repository's not-found and exists sentinels visible to
// the flows and folds every other error into ErrStorageFailure.
func (m *Manager) storageErr(err error) error {
	if err == nil || errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrExists) {
		return err
	}
	m.metrics.Inc(MetricStorageFailure)
	return fmt.Errorf("%w: %w", ErrStorageFailure, err)
}

func (m *Manager) repoGet(ctx context.Context, sessionID string) (*session.Session, error) {
	ctx, cancel := m.opCtx(ctx)
	defer cancel()
	sess, err := m.repo.Get(ctx, sessionID)
	return sess, m.storageErr(err)
}

func (m *Manager) repoSave(ctx context.Context, sess *session.Session) error {
	ctx, cancel := m.opCtx(ctx)
	defer cancel()
	return m.storageErr(m.repo.Save(ctx, sess))
}

func (m *Manager) repoUpdate(ctx context.Context, sessionID string, sess *session.Session) error {
	ctx, cancel := m.opCtx(ctx)
	defer cancel()
	return m.storageErr(m.repo.Update(ctx, sessionID, sess))
}

func (m *Manager) repoDelete(ctx context.Context, sessionID string) (bool, error) {
	ctx, cancel := m.opCtx(ctx)
	defer cancel()
	deleted, err := m.repo.Delete(ctx, sessionID)
	return deleted, m.storageErr(err)
}

func (m *Manager) repoListActive(ctx context.Context, userID string, now time.Time) ([]*session.Session, error) {
	ctx, cancel := m.opCtx(ctx)
	defer cancel()
	out, err := m.repo.ListActiveForUser(ctx, userID, now)
	return out, m.storageErr(err)
}

func (m *Manager) repoCleanup(ctx context.Context, userID string, now time.Time) (int, error) {
	ctx, cancel := m.opCtx(ctx)
	defer cancel()
	n, err := m.repo.CleanupExpired(ctx, userID, now)
	return n, m.storageErr(err)
}

// Health pings the repository.
func (m *Manager) Health(ctx context.Context) HealthStatus {
	if !m.ready() {
		return HealthStatus{}
	}
	ctx, cancel := m.opCtx(ctx)
	defer cancel()

	start := time.Now()
	err := m.repo.Ping(ctx)
	status := HealthStatus{
		Available: err == nil,
		Backend:   m.backend,
		Latency:   time.Since(start),
	}
	if err != nil {
		m.logger.Warn().Str("op", "health").Err(err).Msg("repository ping failed")
	}
	return status
}

// MetricsSnapshot copies the Manager's counters.
func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	if m == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return m.metrics.Snapshot()
}

// Metrics exposes the live counter set for exporters.
func (m *Manager) Metrics() *Metrics {
	if m == nil {
		return nil
	}
	return m.metrics
}

// Config returns a copy of the effective configuration with key material removed.
func (m *Manager) Config() Config {
	if m == nil {
		return Config{}
	}
	cfg := m.cfg
	cfg.Token.PrivateKey = ""
	cfg.Token.PublicKey = ""
	return cfg
}

// Close stops the sweeper, flushes audit events and closes a repository the
// Manager opened itself. Injected repositories stay open. Close is idempotent.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	var err error
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		m.StopSweeper()
		m.audit.Close()
		if m.ownsRepo && m.repo != nil {
			err = m.repo.Close()
		}
	})
	return err
}
