package session

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository keeps records in process memory.
//
// A single mutex guards both the primary map and the per-user index, so every
// operation observes them consistent with each other.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Session
	byUser  map[string][]string
	closed  bool
}

// NewMemoryRepository opens an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]*Session),
		byUser:  make(map[string][]string),
	}
}

// Save inserts a new record and appends its id to the owner's index.
func (r *MemoryRepository) Save(ctx context.Context, sess *Session) error {
	if err := ctx.Err(); err != nil {
		return storageErr(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if _, ok := r.records[sess.SessionID]; ok {
		return ErrExists
	}

	r.records[sess.SessionID] = sess.Clone()
	r.byUser[sess.UserID] = append(r.byUser[sess.UserID], sess.SessionID)
	return nil
}

// Get returns a copy of the record.
func (r *MemoryRepository) Get(ctx context.Context, sessionID string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr(err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrClosed
	}
	sess, ok := r.records[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return sess.Clone(), nil
}

// Update replaces an existing record. The owner cannot change.
func (r *MemoryRepository) Update(ctx context.Context, sessionID string, sess *Session) error {
	if err := ctx.Err(); err != nil {
		return storageErr(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	current, ok := r.records[sessionID]
	if !ok {
		return ErrNotFound
	}

	next := sess.Clone()
	next.SessionID = sessionID
	next.UserID = current.UserID
	r.records[sessionID] = next
	return nil
}

// Delete removes the record and its index entry. Deleting an absent id is not an error.
func (r *MemoryRepository) Delete(ctx context.Context, sessionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, storageErr(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, ErrClosed
	}
	return r.deleteLocked(sessionID), nil
}

// ListActiveForUser filters the user's index to live records.
func (r *MemoryRepository) ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr(err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrClosed
	}

	nowMillis := toMillis(now)
	ids := r.byUser[userID]
	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		sess, ok := r.records[id]
		if !ok || !sess.ActiveAt(nowMillis) {
			continue
		}
		out = append(out, sess.Clone())
	}
	return out, nil
}

// CleanupExpired removes expired records for one user, or for everyone when userID is empty.
func (r *MemoryRepository) CleanupExpired(ctx context.Context, userID string, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, storageErr(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrClosed
	}

	nowMillis := toMillis(now)
	var candidates []string
	if userID != "" {
		candidates = append(candidates, r.byUser[userID]...)
	} else {
		candidates = make([]string, 0, len(r.records))
		for id := range r.records {
			candidates = append(candidates, id)
		}
	}

	removed := 0
	for _, id := range candidates {
		sess, ok := r.records[id]
		if !ok || !sess.ExpiredAt(nowMillis) {
			continue
		}
		if r.deleteLocked(id) {
			removed++
		}
	}
	return removed, nil
}

// Ping reports whether the repository is open.
func (r *MemoryRepository) Ping(context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}
	return nil
}

// Close drops all records. Further calls fail with ErrClosed.
func (r *MemoryRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.records = nil
	r.byUser = nil
	return nil
}

func (r *MemoryRepository) deleteLocked(sessionID string) bool {
	sess, ok := r.records[sessionID]
	if !ok {
		return false
	}
	delete(r.records, sessionID)

	ids := r.byUser[sess.UserID]
	for i, id := range ids {
		if id == sessionID {
			ids = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(r.byUser, sess.UserID)
	} else {
		r.byUser[sess.UserID] = ids
	}
	return true
}
