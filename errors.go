package goSession

import "errors"

var (
	// ErrInvalidInput is returned by CreateSession when the user id is missing.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTokenMalformed is an exported constant or variable used by the session manager.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenSignatureMismatch is an exported constant or variable used by the session manager.
	ErrTokenSignatureMismatch = errors.New("token signature mismatch")
	// ErrTokenExpired is an exported constant or variable used by the session manager.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMismatch means a verified token does not belong to the session it was presented with.
	ErrTokenMismatch = errors.New("token does not match session")
	// ErrSessionNotFound is an exported constant or variable used by the session manager.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is an exported constant or variable used by the session manager.
	ErrSessionExpired = errors.New("session expired")
	// ErrSecurityCheckFailed is the target of every [*SecurityError].
	ErrSecurityCheckFailed = errors.New("security check failed")
	// ErrEvictionFailure is logged when the oldest session could not be evicted.
	// It never reaches the caller.
	ErrEvictionFailure = errors.New("eviction failure")
	// ErrStorageFailure wraps repository errors, timeouts included.
	ErrStorageFailure = errors.New("storage failure")
	// ErrSessionCreationFailed is the opaque error CreateSession returns for any
	// internal failure.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrManagerNotReady is returned when a Manager is used before Build or after Close.
	ErrManagerNotReady = errors.New("session manager not initialized")
)

// SecurityError carries the validator's rejection reason.
type SecurityError struct {
	Reason string
}

func (e *SecurityError) Error() string {
	return "security check failed: " + e.Reason
}

func (e *SecurityError) Unwrap() error {
	return ErrSecurityCheckFailed
}
