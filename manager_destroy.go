package goSession

import (
	"context"
	"time"
)

// DestroySession removes sessionID. Destroying an absent session succeeds;
// false is returned only when the repository failed.
func (m *Manager) DestroySession(ctx context.Context, sessionID string) bool {
	if !m.ready() {
		return false
	}
	if sessionID == "" {
		return true
	}

	var userID string
	if sess, err := m.repoGet(ctx, sessionID); err == nil {
		userID = sess.UserID
	}

	deleted, err := m.repoDelete(ctx, sessionID)
	if err != nil {
		m.logger.Error().Str("op", "destroy").Str("session_id", sessionID).Err(err).Msg("destroy failed")
		return false
	}
	if !deleted {
		return true
	}

	m.metrics.Inc(MetricSessionDestroyed)
	m.logger.Info().Str("op", "destroy").Str("session_id", sessionID).Str("user_id", userID).Msg("session destroyed")
	m.emitAudit(ctx, AuditEvent{
		EventType: AuditSessionDestroyed,
		UserID:    userID,
		SessionID: sessionID,
		Success:   true,
	})
	return true
}

// DestroyAllUserSessions removes every live session of userID and returns how
// many records were actually deleted.
func (m *Manager) DestroyAllUserSessions(ctx context.Context, userID string) int {
	if !m.ready() || userID == "" {
		return 0
	}

	unlock := m.userLocks.lock(userID)
	res := m.flows.DestroyAll(ctx, userID)
	unlock()

	log := m.logger.With().Str("op", "destroy_all").Str("user_id", userID).Logger()
	if res.ListErr != nil {
		log.Error().Err(res.ListErr).Msg("could not list sessions")
		return 0
	}
	for sid, err := range res.Errors {
		log.Error().Str("session_id", sid).Err(err).Msg("destroy failed")
	}

	n := len(res.Destroyed)
	m.metrics.Add(MetricSessionDestroyed, uint64(n))
	log.Info().Int("count", n).Msg("user sessions destroyed")
	m.emitAudit(ctx, AuditEvent{
		EventType: AuditSessionsDestroyedAll,
		UserID:    userID,
		Success:   len(res.Errors) == 0,
		Count:     n,
	})
	return n
}

// GetUserActiveSessions lists the live sessions of userID without credentials.
// A repository failure yields an empty list.
func (m *Manager) GetUserActiveSessions(ctx context.Context, userID string) []ActiveSession {
	if !m.ready() || userID == "" {
		return []ActiveSession{}
	}

	active, err := m.repoListActive(ctx, userID, m.now())
	if err != nil {
		m.logger.Error().Str("op", "list_active").Str("user_id", userID).Err(err).Msg("could not list sessions")
		return []ActiveSession{}
	}

	out := make([]ActiveSession, 0, len(active))
	for _, s := range active {
		out = append(out, ActiveSession{
			SessionID:    s.SessionID,
			CreatedAt:    time.UnixMilli(s.CreatedAt),
			LastActivity: time.UnixMilli(s.LastActivity),
			IPAddress:    s.IPAddress,
			UserAgent:    s.UserAgent,
			DeviceInfo:   s.DeviceInfo,
		})
	}
	return out
}

// CleanupExpired deletes every expired record across all users and returns
// how many were removed. On a repository error or timeout the partial count is
// returned and the next sweep picks up the rest.
func (m *Manager) CleanupExpired(ctx context.Context) int {
	if !m.ready() {
		return 0
	}

	n, err := m.repoCleanup(ctx, "", m.now())
	if n > 0 {
		m.metrics.Add(MetricSessionsSwept, uint64(n))
	}
	if err != nil {
		m.logger.Error().Str("op", "sweep").Int("removed", n).Err(err).Msg("cleanup incomplete")
	} else {
		m.logger.Debug().Str("op", "sweep").Int("removed", n).Msg("cleanup finished")
	}
	if n > 0 || err != nil {
		m.emitAudit(ctx, AuditEvent{
			EventType: AuditSessionsSwept,
			Success:   err == nil,
			Count:     n,
		})
	}
	return n
}
