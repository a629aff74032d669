package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for a session id.
	ErrNotFound = errors.New("session record not found")
	// ErrExists is returned by Save when the session id is already taken.
	ErrExists = errors.New("session record already exists")
	// ErrStorageUnavailable wraps backend failures (network, timeouts, driver errors).
	ErrStorageUnavailable = errors.New("session storage unavailable")
	// ErrCorruptRecord is returned when a stored record cannot be decoded.
	ErrCorruptRecord = errors.New("session record corrupt")
	// ErrClosed is returned by operations on a closed repository.
	ErrClosed = errors.New("session repository closed")
)

// Repository is keyed storage of session records plus a per-user secondary index.
//
// Save and Delete update the index in the same atomic step as the primary record.
// Update never recreates a record that has been deleted. Reads return copies.
type Repository interface {
	Save(ctx context.Context, sess *Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Update(ctx context.Context, sessionID string, sess *Session) error
	Delete(ctx context.Context, sessionID string) (bool, error)

	// ListActiveForUser returns the user's records with IsActive set and
	// now < ExpiresAt, in index (insertion) order.
	ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]*Session, error)

	// CleanupExpired deletes every record with now > ExpiresAt, scoped to one
	// user's index when userID is non-empty, and returns how many were removed.
	CleanupExpired(ctx context.Context, userID string, now time.Time) (int, error)

	Ping(ctx context.Context) error
	Close() error
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func storageErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Repository = (*RedisRepository)(nil)
	_ Repository = (*PostgresRepository)(nil)
)
