package goSession

import (
	"context"
	"time"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/session"
)

// UserData is the principal snapshot stored with a new session.
type UserData struct {
	UserID      string
	Username    string
	Email       string
	Role        string
	Permissions []string
}

// CreateOptions carries the client environment observed at login. The IP and
// user agent become the baseline for the anomaly heuristic.
type CreateOptions struct {
	IPAddress  string
	UserAgent  string
	DeviceInfo string
}

// UserView is the public projection of the stored principal.
type UserView struct {
	UserID      string
	Username    string
	Email       string
	Role        string
	Permissions []string
}

// CreateResult is returned by [Manager.CreateSession].
type CreateResult struct {
	SessionID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         UserView
}

// SessionSummary is returned by [Manager.ValidateSession] and
// [Manager.RefreshSession]. Refreshed reports that AccessToken was reissued
// during this call.
type SessionSummary struct {
	SessionID    string
	AccessToken  string
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
	User         UserView
	Refreshed    bool
}

// ActiveSession is one entry of [Manager.GetUserActiveSessions]. It carries no
// credentials.
type ActiveSession struct {
	SessionID    string
	CreatedAt    time.Time
	LastActivity time.Time
	IPAddress    string
	UserAgent    string
	DeviceInfo   string
}

// HealthStatus is returned by [Manager.Health].
type HealthStatus struct {
	Available bool
	Backend   string
	Latency   time.Duration
}

// AuditEvent is the structured record delivered to an [AuditSink].
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the Manager's async dispatcher.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

func userView(s *session.Session) UserView {
	return UserView{
		UserID:      s.UserID,
		Username:    s.Username,
		Email:       s.Email,
		Role:        s.Role,
		Permissions: append([]string(nil), s.Permissions...),
	}
}

func summaryOf(s *session.Session, refreshed bool) *SessionSummary {
	return &SessionSummary{
		SessionID:    s.SessionID,
		AccessToken:  s.AccessToken,
		CreatedAt:    time.UnixMilli(s.CreatedAt),
		LastActivity: time.UnixMilli(s.LastActivity),
		ExpiresAt:    time.UnixMilli(s.ExpiresAt),
		User:         userView(s),
		Refreshed:    refreshed,
	}
}
