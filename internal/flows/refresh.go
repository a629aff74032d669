package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/token"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureNotFound
	RefreshFailureExpired
	RefreshFailureIssueAccess
	RefreshFailureStorage
)

// RefreshResult carries the updated record or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	Session *session.Session
	// PreviousAccessToken is the value the refresh replaced.
	PreviousAccessToken string
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Now            func() time.Time
	SessionTimeout time.Duration
	AccessTTL      time.Duration

	Get         func(ctx context.Context, sessionID string) (*session.Session, error)
	Update      func(ctx context.Context, sessionID string, sess *session.Session) error
	IssueToken  func(token.Claims, time.Duration) (string, error)
	ErrNotFound error
}

// RunRefresh reissues the access token and extends the expiry of a live
// record. The refresh token is left unchanged. Expired or inactive records
// are never brought back.
func RunRefresh(ctx context.Context, sessionID string, deps RefreshDeps) RefreshResult {
	sess, err := deps.Get(ctx, sessionID)
	if err != nil {
		if deps.ErrNotFound != nil && errors.Is(err, deps.ErrNotFound) {
			return RefreshResult{Failure: RefreshFailureNotFound, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureStorage, Err: err}
	}
	return RunRefreshLoaded(ctx, sess, deps)
}

// RunRefreshLoaded is [RunRefresh] for a record the caller already holds.
func RunRefreshLoaded(ctx context.Context, sess *session.Session, deps RefreshDeps) RefreshResult {
	now := deps.Now()
	nowMillis := now.UnixMilli()
	if !sess.ActiveAt(nowMillis) {
		return RefreshResult{Failure: RefreshFailureExpired, Session: sess}
	}

	access, err := deps.IssueToken(token.Claims{
		UserID:    sess.UserID,
		SessionID: sess.SessionID,
		Role:      sess.Role,
		Kind:      token.KindAccess,
	}, deps.AccessTTL)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssueAccess, Err: err}
	}

	next := sess.Clone()
	next.AccessToken = access
	next.LastActivity = nowMillis
	next.ExpiresAt = nowMillis + deps.SessionTimeout.Milliseconds()

	if err := deps.Update(ctx, sess.SessionID, next); err != nil {
		if deps.ErrNotFound != nil && errors.Is(err, deps.ErrNotFound) {
			return RefreshResult{Failure: RefreshFailureNotFound, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureStorage, Err: err}
	}

	return RefreshResult{Session: next, PreviousAccessToken: sess.AccessToken}
}

// Refresh runs [RunRefresh] with the service's wiring.
func (s Service) Refresh(ctx context.Context, sessionID string) RefreshResult {
	return RunRefresh(ctx, sessionID, s.deps.Refresh)
}

// RefreshLoaded runs [RunRefreshLoaded] with the service's wiring.
func (s Service) RefreshLoaded(ctx context.Context, sess *session.Session) RefreshResult {
	return RunRefreshLoaded(ctx, sess, s.deps.Refresh)
}
