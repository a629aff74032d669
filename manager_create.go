package goSession

import (
	"context"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/session"
)

// CreateSession opens a session for user. Expired records of the user are
// reaped first; when the user is at the concurrency cap the oldest live
// session is evicted. Any internal failure is reported as
// [ErrSessionCreationFailed] and logged with its cause.
func (m *Manager) CreateSession(ctx context.Context, user UserData, opts CreateOptions) (*CreateResult, error) {
	if !m.ready() {
		return nil, ErrManagerNotReady
	}
	if strings.TrimSpace(user.UserID) == "" {
		m.metrics.Inc(MetricSessionCreateFailed)
		return nil, ErrInvalidInput
	}

	unlock := m.userLocks.lock(user.UserID)
	res := m.flows.Create(ctx, flows.CreateInput{
		UserID:      user.UserID,
		Username:    user.Username,
		Email:       user.Email,
		Role:        user.Role,
		Permissions: user.Permissions,
		IPAddress:   opts.IPAddress,
		UserAgent:   opts.UserAgent,
		DeviceInfo:  opts.DeviceInfo,
	})
	unlock()

	log := m.logger.With().Str("op", "create").Str("user_id", user.UserID).Logger()

	if res.CleanupErr != nil {
		log.Warn().Err(res.CleanupErr).Msg("pre-create cleanup failed")
	} else if res.Reaped > 0 {
		m.metrics.Add(MetricSessionsSwept, uint64(res.Reaped))
		log.Debug().Int("reaped", res.Reaped).Msg("reaped expired sessions")
	}

	for _, ev := range res.Evictions {
		if ev.Err != nil {
			m.metrics.Inc(MetricEvictionFailure)
			log.Error().Err(ev.Err).AnErr("kind", ErrEvictionFailure).
				Str("session_id", ev.Session.SessionID).Msg("could not evict oldest session")
			continue
		}
		m.metrics.Inc(MetricSessionEvicted)
		log.Info().Str("session_id", ev.Session.SessionID).Msg("evicted oldest session")
		m.emitAudit(ctx, AuditEvent{
			EventType: AuditSessionEvicted,
			UserID:    user.UserID,
			SessionID: ev.Session.SessionID,
			Success:   true,
			Reason:    "max concurrent sessions",
		})
	}

	if res.Failure != flows.CreateFailureNone {
		m.metrics.Inc(MetricSessionCreateFailed)
		log.Error().Err(res.Err).Str("stage", createStage(res.Failure)).Msg("session creation failed")
		m.emitAudit(ctx, AuditEvent{
			EventType: AuditSessionCreated,
			UserID:    user.UserID,
			IP:        opts.IPAddress,
			Success:   false,
			Reason:    createStage(res.Failure),
		})
		if res.Failure == flows.CreateFailureInvalidInput {
			return nil, ErrInvalidInput
		}
		return nil, ErrSessionCreationFailed
	}

	sess := res.Session
	m.metrics.Inc(MetricSessionCreated)
	log.Info().Str("session_id", sess.SessionID).Str("ip", opts.IPAddress).Msg("session created")
	m.emitAudit(ctx, AuditEvent{
		EventType: AuditSessionCreated,
		UserID:    user.UserID,
		SessionID: sess.SessionID,
		IP:        opts.IPAddress,
		Success:   true,
		Metadata:  map[string]string{"device": opts.DeviceInfo},
	})

	return &CreateResult{
		SessionID:    sess.SessionID,
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    time.UnixMilli(sess.ExpiresAt),
		User:         userView(sess),
	}, nil
}

func (m *Manager) evict(ctx context.Context, sess *session.Session) error {
	_, err := m.repoDelete(ctx, sess.SessionID)
	return err
}

func createStage(kind flows.CreateFailureKind) string {
	switch kind {
	case flows.CreateFailureInvalidInput:
		return "invalid_input"
	case flows.CreateFailureList:
		return "list_active"
	case flows.CreateFailureSessionID:
		return "session_id"
	case flows.CreateFailureIssueToken:
		return "issue_token"
	case flows.CreateFailureSave:
		return "save"
	default:
		return "unknown"
	}
}
