package goSession

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/security"
	"github.com/MrEthical07/goSession/token"
	"github.com/rs/zerolog"
)

// ValidateSession checks sessionID against its stored record, the bearer
// accessToken and the security heuristics. The client IP and user agent are
// read from ctx (see [WithClientIP] and [WithUserAgent]).
//
// Any rejection of an existing record destroys it. When the remaining lifetime
// is below the refresh threshold the session is refreshed in the same call and
// the summary carries the new access token with Refreshed set.
func (m *Manager) ValidateSession(ctx context.Context, sessionID, accessToken string) (*SessionSummary, bool) {
	if !m.ready() || sessionID == "" || accessToken == "" {
		m.metrics.Inc(MetricSessionRejected)
		return nil, false
	}

	start := time.Now()
	defer func() {
		m.metrics.Observe(MetricValidateLatency, time.Since(start))
	}()

	seen := security.Observation{
		IPAddress: clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	}

	unlock := m.sessionLocks.lock(sessionID)
	defer unlock()

	res := m.flows.Validate(ctx, sessionID, accessToken, seen)
	if res.Failure != flows.ValidateFailureNone {
		m.rejected(ctx, sessionID, seen.IPAddress, res)
		return nil, false
	}

	if !res.NeedsRefresh {
		m.metrics.Inc(MetricSessionValidated)
		return summaryOf(res.Session, false), true
	}

	ref := m.flows.RefreshLoaded(ctx, res.Session)
	switch ref.Failure {
	case flows.RefreshFailureNone:
		m.refreshed(ctx, ref, "transparent")
		m.metrics.Inc(MetricSessionValidated)
		return summaryOf(ref.Session, true), true
	case flows.RefreshFailureNotFound, flows.RefreshFailureExpired:
		m.metrics.Inc(MetricSessionRejected)
		m.logger.Debug().Str("op", "validate").Str("session_id", sessionID).Msg("session vanished during refresh")
		return nil, false
	default:
		// The session itself passed every check; serve it with the old token.
		m.logger.Warn().Str("op", "validate").Str("session_id", sessionID).Err(ref.Err).
			Msg("transparent refresh failed")
		m.metrics.Inc(MetricSessionValidated)
		return summaryOf(res.Session, false), true
	}
}

// RefreshSession reissues the access token of a live session and extends its
// expiry by the session timeout. The refresh token is unchanged. It returns
// absent for missing or expired sessions; deleted records are never recreated.
func (m *Manager) RefreshSession(ctx context.Context, sessionID string) (*SessionSummary, bool) {
	if !m.ready() || sessionID == "" {
		return nil, false
	}

	unlock := m.sessionLocks.lock(sessionID)
	defer unlock()

	res := m.flows.Refresh(ctx, sessionID)
	if res.Failure != flows.RefreshFailureNone {
		ev := m.logger.Debug()
		if res.Failure == flows.RefreshFailureStorage || res.Failure == flows.RefreshFailureIssueAccess {
			ev = m.logger.Error()
		}
		ev.Str("op", "refresh").Str("session_id", sessionID).Err(refreshErr(res)).Msg("refresh refused")
		return nil, false
	}

	m.refreshed(ctx, res, "explicit")
	return summaryOf(res.Session, true), true
}

func (m *Manager) refreshed(ctx context.Context, res flows.RefreshResult, mode string) {
	m.metrics.Inc(MetricSessionRefreshed)

	meta := map[string]string{"mode": mode}
	// The replaced token is identified by its jti; an already expired one is
	// simply not reported.
	if prev, failure := m.codec.Verify(res.PreviousAccessToken); failure == token.FailureNone {
		meta["replaced_token_id"] = prev.ID
	}

	m.logger.Info().Str("op", "refresh").Str("session_id", res.Session.SessionID).
		Str("user_id", res.Session.UserID).Str("mode", mode).
		Str("replaced_token_id", meta["replaced_token_id"]).Msg("access token reissued")
	m.emitAudit(ctx, AuditEvent{
		EventType: AuditSessionRefreshed,
		UserID:    res.Session.UserID,
		SessionID: res.Session.SessionID,
		Success:   true,
		Metadata:  meta,
	})
}

func (m *Manager) rejected(ctx context.Context, sessionID, ip string, res flows.ValidateResult) {
	m.metrics.Inc(MetricSessionRejected)
	err := validateErr(res)

	switch res.Failure {
	case flows.ValidateFailureToken, flows.ValidateFailureTokenMismatch:
		m.metrics.Inc(MetricTokenRejected)
	case flows.ValidateFailureSecurity:
		m.metrics.Inc(MetricSecurityCheckFailed)
	}

	var ev *zerolog.Event
	switch res.Failure {
	case flows.ValidateFailureStorage:
		ev = m.logger.Error()
	case flows.ValidateFailureSecurity, flows.ValidateFailureTokenMismatch:
		ev = m.logger.Warn()
	default:
		ev = m.logger.Debug()
	}
	ev.Str("op", "validate").Str("session_id", sessionID).Err(err).Bool("destroyed", res.Destroyed).
		Msg("session rejected")

	if res.Session == nil {
		return
	}
	if res.Destroyed {
		m.metrics.Inc(MetricSessionDestroyed)
	}
	m.emitAudit(ctx, AuditEvent{
		EventType: AuditSessionRejected,
		UserID:    res.Session.UserID,
		SessionID: sessionID,
		IP:        ip,
		Success:   false,
		Reason:    err.Error(),
	})
}

// validateErr maps a flow failure onto the package's sentinel errors.
func validateErr(res flows.ValidateResult) error {
	switch res.Failure {
	case flows.ValidateFailureInvalidInput, flows.ValidateFailureNotFound, flows.ValidateFailureInactive:
		return ErrSessionNotFound
	case flows.ValidateFailureExpired:
		return ErrSessionExpired
	case flows.ValidateFailureToken:
		switch res.TokenFailure {
		case token.FailureExpired:
			return ErrTokenExpired
		case token.FailureSignatureMismatch:
			return ErrTokenSignatureMismatch
		default:
			return ErrTokenMalformed
		}
	case flows.ValidateFailureTokenMismatch:
		return ErrTokenMismatch
	case flows.ValidateFailureSecurity:
		return &SecurityError{Reason: res.Reason}
	case flows.ValidateFailureStorage:
		if res.Err != nil {
			return res.Err
		}
		return ErrStorageFailure
	default:
		return nil
	}
}

func refreshErr(res flows.RefreshResult) error {
	switch res.Failure {
	case flows.RefreshFailureNotFound:
		return ErrSessionNotFound
	case flows.RefreshFailureExpired:
		return ErrSessionExpired
	default:
		if res.Err != nil {
			return res.Err
		}
		return ErrStorageFailure
	}
}
