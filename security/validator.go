package security

import (
	"time"

	"github.com/MrEthical07/goSession/session"
)

// Rejection reasons reported in [Result.Reason].
const (
	ReasonIncomplete = "incomplete session data"
	ReasonInactive   = "inactive too long"
	ReasonSuspicious = "suspicious activity"
)

// DefaultMaxInactiveWindow is used when Config.MaxInactiveWindow is zero.
const DefaultMaxInactiveWindow = 2 * time.Hour

// Config tunes the validator.
type Config struct {
	MaxInactiveWindow  time.Duration
	EnableAnomalyCheck bool
}

// Observation is the client environment seen on the current request.
type Observation struct {
	IPAddress string
	UserAgent string
}

// Result is the verdict of [Validator.Validate].
type Result struct {
	Valid  bool
	Reason string
}

// Validator runs the checks in a fixed order and stops at the first failure.
type Validator struct {
	cfg Config
}

func NewValidator(cfg Config) *Validator {
	if cfg.MaxInactiveWindow <= 0 {
		cfg.MaxInactiveWindow = DefaultMaxInactiveWindow
	}
	return &Validator{cfg: cfg}
}

// Validate judges sess against the observed environment at now.
func (v *Validator) Validate(sess *session.Session, seen Observation, now time.Time) Result {
	if !complete(sess) {
		return Result{Reason: ReasonIncomplete}
	}

	idle := time.Duration(now.UnixMilli()-sess.LastActivity) * time.Millisecond
	if idle > v.cfg.MaxInactiveWindow {
		return Result{Reason: ReasonInactive}
	}

	if v.cfg.EnableAnomalyCheck && drifted(sess, seen) {
		return Result{Reason: ReasonSuspicious}
	}

	return Result{Valid: true}
}

func complete(sess *session.Session) bool {
	return sess != nil &&
		sess.SessionID != "" &&
		sess.UserID != "" &&
		sess.AccessToken != "" &&
		sess.CreatedAt > 0 &&
		sess.LastActivity > 0 &&
		sess.ExpiresAt > 0 &&
		sess.IsActive
}

// Drift needs both stored attributes and at least one observed value; an
// unknown side never counts as a mismatch.
func drifted(sess *session.Session, seen Observation) bool {
	if sess.IPAddress == "" || sess.UserAgent == "" {
		return false
	}
	if seen.IPAddress != "" && seen.IPAddress != sess.IPAddress {
		return true
	}
	if seen.UserAgent != "" && seen.UserAgent != sess.UserAgent {
		return true
	}
	return false
}
