package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/token"
)

// CreateFailureKind classifies creation failures for root-level mapping.
type CreateFailureKind int

const (
	CreateFailureNone CreateFailureKind = iota
	CreateFailureInvalidInput
	CreateFailureList
	CreateFailureSessionID
	CreateFailureIssueToken
	CreateFailureSave
)

// CreateInput is the principal snapshot and client environment of a new session.
type CreateInput struct {
	UserID      string
	Username    string
	Email       string
	Role        string
	Permissions []string
	IPAddress   string
	UserAgent   string
	DeviceInfo  string
}

// Eviction records one cap-driven eviction attempt.
type Eviction struct {
	Session *session.Session
	Err     error
}

// CreateResult carries the persisted record or failure metadata. Reaped,
// CleanupErr and Evictions are reported even when creation succeeds.
type CreateResult struct {
	Failure    CreateFailureKind
	Err        error
	Session    *session.Session
	Reaped     int
	CleanupErr error
	Evictions  []Eviction
}

// CreateDeps captures creation dependencies.
type CreateDeps struct {
	Now                   func() time.Time
	SessionTimeout        time.Duration
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	MaxConcurrentSessions int
	MaxIDAttempts         int

	NewSessionID   func() (string, error)
	IssueToken     func(token.Claims, time.Duration) (string, error)
	CleanupExpired func(ctx context.Context, userID string, now time.Time) (int, error)
	ListActive     func(ctx context.Context, userID string, now time.Time) ([]*session.Session, error)
	Evict          func(ctx context.Context, sess *session.Session) error
	Save           func(ctx context.Context, sess *session.Session) error
	ErrExists      error
}

// RunCreate reaps the user's expired records, evicts the oldest live sessions
// until a slot is free, then issues tokens and persists a new record. The
// caller must serialize runs for the same user.
func RunCreate(ctx context.Context, in CreateInput, deps CreateDeps) CreateResult {
	if in.UserID == "" {
		return CreateResult{Failure: CreateFailureInvalidInput}
	}

	var res CreateResult
	now := deps.Now()

	reaped, err := deps.CleanupExpired(ctx, in.UserID, now)
	res.Reaped = reaped
	if err != nil {
		res.CleanupErr = err
	}

	active, err := deps.ListActive(ctx, in.UserID, now)
	if err != nil {
		res.Failure = CreateFailureList
		res.Err = err
		return res
	}

	if deps.MaxConcurrentSessions > 0 {
		for excess := len(active) - deps.MaxConcurrentSessions + 1; excess > 0 && len(active) > 0; excess-- {
			idx := oldestIndex(active)
			victim := active[idx]
			active = append(active[:idx:idx], active[idx+1:]...)

			evErr := deps.Evict(ctx, victim)
			res.Evictions = append(res.Evictions, Eviction{Session: victim, Err: evErr})
		}
	}

	attempts := deps.MaxIDAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		sid, err := deps.NewSessionID()
		if err != nil {
			res.Failure = CreateFailureSessionID
			res.Err = err
			return res
		}

		sess, kind, err := buildSession(sid, in, now, deps)
		if err != nil {
			res.Failure = kind
			res.Err = err
			return res
		}

		err = deps.Save(ctx, sess)
		if err == nil {
			res.Session = sess
			return res
		}
		if deps.ErrExists != nil && errors.Is(err, deps.ErrExists) {
			res.Err = err
			continue
		}
		res.Failure = CreateFailureSave
		res.Err = err
		return res
	}

	res.Failure = CreateFailureSave
	return res
}

func buildSession(sid string, in CreateInput, now time.Time, deps CreateDeps) (*session.Session, CreateFailureKind, error) {
	access, err := deps.IssueToken(token.Claims{
		UserID:    in.UserID,
		SessionID: sid,
		Role:      in.Role,
		Kind:      token.KindAccess,
	}, deps.AccessTTL)
	if err != nil {
		return nil, CreateFailureIssueToken, err
	}

	refresh, err := deps.IssueToken(token.Claims{
		UserID:    in.UserID,
		SessionID: sid,
		Kind:      token.KindRefresh,
	}, deps.RefreshTTL)
	if err != nil {
		return nil, CreateFailureIssueToken, err
	}

	createdAt := now.UnixMilli()
	return &session.Session{
		SessionID:    sid,
		UserID:       in.UserID,
		Username:     in.Username,
		Email:        in.Email,
		Role:         in.Role,
		Permissions:  append([]string(nil), in.Permissions...),
		AccessToken:  access,
		RefreshToken: refresh,
		CreatedAt:    createdAt,
		LastActivity: createdAt,
		ExpiresAt:    createdAt + deps.SessionTimeout.Milliseconds(),
		IPAddress:    in.IPAddress,
		UserAgent:    in.UserAgent,
		DeviceInfo:   in.DeviceInfo,
		IsActive:     true,
	}, CreateFailureNone, nil
}

// oldestIndex picks the earliest CreatedAt. The list is in insertion order and
// the comparison is strict, so ties resolve to the earliest inserted record.
func oldestIndex(sessions []*session.Session) int {
	best := 0
	for i := 1; i < len(sessions); i++ {
		if sessions[i].CreatedAt < sessions[best].CreatedAt {
			best = i
		}
	}
	return best
}

// Create runs [RunCreate] with the service's wiring.
func (s Service) Create(ctx context.Context, in CreateInput) CreateResult {
	return RunCreate(ctx, in, s.deps.Create)
}
