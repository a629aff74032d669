package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/security"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/token"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureInvalidInput
	ValidateFailureNotFound
	ValidateFailureInactive
	ValidateFailureExpired
	ValidateFailureToken
	ValidateFailureTokenMismatch
	ValidateFailureSecurity
	ValidateFailureStorage
)

// ValidateResult returns the touched record or a classified failure.
//
// When NeedsRefresh is set the record was not touched here: the caller is
// expected to run the refresh flow, which updates LastActivity itself.
type ValidateResult struct {
	Failure      ValidateFailureKind
	Err          error
	TokenFailure token.Failure
	Reason       string
	Session      *session.Session
	NeedsRefresh bool
	// Destroyed reports whether a rejected record was removed from storage.
	Destroyed bool
}

// ValidateDeps captures validation dependencies.
type ValidateDeps struct {
	Now              func() time.Time
	RefreshThreshold time.Duration

	Get         func(ctx context.Context, sessionID string) (*session.Session, error)
	Update      func(ctx context.Context, sessionID string, sess *session.Session) error
	Destroy     func(ctx context.Context, sessionID string) (bool, error)
	VerifyToken func(string) (*token.Claims, token.Failure)
	Check       func(*session.Session, security.Observation, time.Time) security.Result
	ErrNotFound error
}

// RunValidate checks the record, the bearer token and the security heuristics
// in that order. Every rejection of an existing record destroys it.
func RunValidate(ctx context.Context, sessionID, accessToken string, seen security.Observation, deps ValidateDeps) ValidateResult {
	if sessionID == "" || accessToken == "" {
		return ValidateResult{Failure: ValidateFailureInvalidInput}
	}

	sess, err := deps.Get(ctx, sessionID)
	if err != nil {
		if deps.ErrNotFound != nil && errors.Is(err, deps.ErrNotFound) {
			return ValidateResult{Failure: ValidateFailureNotFound, Err: err}
		}
		return ValidateResult{Failure: ValidateFailureStorage, Err: err}
	}

	now := deps.Now()
	nowMillis := now.UnixMilli()

	reject := func(res ValidateResult) ValidateResult {
		res.Session = sess
		deleted, err := deps.Destroy(ctx, sessionID)
		res.Destroyed = deleted
		if err != nil && res.Err == nil {
			res.Err = err
		}
		return res
	}

	switch {
	case !sess.IsActive:
		return reject(ValidateResult{Failure: ValidateFailureInactive})
	case !sess.ActiveAt(nowMillis):
		return reject(ValidateResult{Failure: ValidateFailureExpired})
	}

	claims, failure := deps.VerifyToken(accessToken)
	if failure != token.FailureNone {
		return reject(ValidateResult{Failure: ValidateFailureToken, TokenFailure: failure})
	}
	if claims.Kind != token.KindAccess || claims.UserID != sess.UserID || claims.SessionID != sessionID {
		return reject(ValidateResult{Failure: ValidateFailureTokenMismatch})
	}

	if verdict := deps.Check(sess, seen, now); !verdict.Valid {
		return reject(ValidateResult{Failure: ValidateFailureSecurity, Reason: verdict.Reason})
	}

	remaining := time.Duration(sess.ExpiresAt-nowMillis) * time.Millisecond
	if remaining < deps.RefreshThreshold {
		return ValidateResult{Session: sess, NeedsRefresh: true}
	}

	sess.LastActivity = nowMillis
	if err := deps.Update(ctx, sessionID, sess); err != nil {
		if deps.ErrNotFound != nil && errors.Is(err, deps.ErrNotFound) {
			return ValidateResult{Failure: ValidateFailureNotFound, Err: err}
		}
		return ValidateResult{Failure: ValidateFailureStorage, Err: err}
	}

	return ValidateResult{Session: sess}
}

// Validate runs [RunValidate] with the service's wiring.
func (s Service) Validate(ctx context.Context, sessionID, accessToken string, seen security.Observation) ValidateResult {
	return RunValidate(ctx, sessionID, accessToken, seen, s.deps.Validate)
}
