package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/session"
)

// DestroyAllResult reports which sessions were removed. Errors holds the
// per-session delete failures; a failure does not stop the loop.
type DestroyAllResult struct {
	Destroyed []string
	ListErr   error
	Errors    map[string]error
}

// DestroyAllDeps captures destroy-all dependencies.
type DestroyAllDeps struct {
	Now        func() time.Time
	ListActive func(ctx context.Context, userID string, now time.Time) ([]*session.Session, error)
	Delete     func(ctx context.Context, sessionID string) (bool, error)
}

// RunDestroyAll deletes every live session of userID. Only deletions that
// actually removed a record are counted.
func RunDestroyAll(ctx context.Context, userID string, deps DestroyAllDeps) DestroyAllResult {
	var res DestroyAllResult
	if userID == "" {
		return res
	}

	active, err := deps.ListActive(ctx, userID, deps.Now())
	if err != nil {
		res.ListErr = err
		return res
	}

	for _, sess := range active {
		deleted, err := deps.Delete(ctx, sess.SessionID)
		if err != nil {
			if res.Errors == nil {
				res.Errors = make(map[string]error)
			}
			res.Errors[sess.SessionID] = err
			continue
		}
		if deleted {
			res.Destroyed = append(res.Destroyed, sess.SessionID)
		}
	}
	return res
}

// DestroyAll runs [RunDestroyAll] with the service's wiring.
func (s Service) DestroyAll(ctx context.Context, userID string) DestroyAllResult {
	return RunDestroyAll(ctx, userID, s.deps.DestroyAll)
}
