package flows

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/security"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/token"
)

var flowNow = time.UnixMilli(1_700_000_000_000)

func fixedNow() time.Time { return flowNow }

func newCodec(t *testing.T) *token.Codec {
	t.Helper()
	c, err := token.NewCodec(token.Config{}, token.WithClock(fixedNow))
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func createDeps(repo *session.MemoryRepository, codec *token.Codec, maxSessions int) CreateDeps {
	n := 0
	return CreateDeps{
		Now:                   fixedNow,
		SessionTimeout:        30 * time.Minute,
		AccessTTL:             30 * time.Minute,
		RefreshTTL:            7 * 24 * time.Hour,
		MaxConcurrentSessions: maxSessions,
		MaxIDAttempts:         3,
		NewSessionID: func() (string, error) {
			n++
			return fmt.Sprintf("sid-%d", n), nil
		},
		IssueToken:     codec.Issue,
		CleanupExpired: repo.CleanupExpired,
		ListActive:     repo.ListActiveForUser,
		Evict: func(ctx context.Context, sess *session.Session) error {
			_, err := repo.Delete(ctx, sess.SessionID)
			return err
		},
		Save:      repo.Save,
		ErrExists: session.ErrExists,
	}
}

func seed(t *testing.T, repo *session.MemoryRepository, id string, createdAt time.Time) {
	t.Helper()
	err := repo.Save(context.Background(), &session.Session{
		SessionID:    id,
		UserID:       "u1",
		AccessToken:  "tok",
		CreatedAt:    createdAt.UnixMilli(),
		LastActivity: createdAt.UnixMilli(),
		ExpiresAt:    createdAt.Add(time.Hour).UnixMilli(),
		IsActive:     true,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestRunCreateRejectsMissingUserID(t *testing.T) {
	repo := session.NewMemoryRepository()
	res := RunCreate(context.Background(), CreateInput{}, createDeps(repo, newCodec(t), 3))
	if res.Failure != CreateFailureInvalidInput {
		t.Fatalf("expected invalid input, got %v", res.Failure)
	}
}

func TestRunCreateEvictsOldestWithInsertionOrderTieBreak(t *testing.T) {
	repo := session.NewMemoryRepository()
	tie := flowNow.Add(-10 * time.Minute)
	seed(t, repo, "first", tie)
	seed(t, repo, "second", tie)
	seed(t, repo, "third", flowNow.Add(-20*time.Minute))

	deps := createDeps(repo, newCodec(t), 3)
	res := RunCreate(context.Background(), CreateInput{UserID: "u1"}, deps)
	if res.Failure != CreateFailureNone {
		t.Fatalf("create failed: %v %v", res.Failure, res.Err)
	}
	if len(res.Evictions) != 1 || res.Evictions[0].Session.SessionID != "third" {
		t.Fatalf("expected 'third' (earliest createdAt) evicted, got %+v", res.Evictions)
	}

	res = RunCreate(context.Background(), CreateInput{UserID: "u1"}, deps)
	if len(res.Evictions) != 1 || res.Evictions[0].Session.SessionID != "first" {
		t.Fatalf("expected tie broken toward 'first', got %+v", res.Evictions)
	}
}

func TestRunCreateEvictionFailureDoesNotBlock(t *testing.T) {
	repo := session.NewMemoryRepository()
	seed(t, repo, "old", flowNow.Add(-time.Minute))

	deps := createDeps(repo, newCodec(t), 1)
	deps.Evict = func(context.Context, *session.Session) error { return errors.New("boom") }

	res := RunCreate(context.Background(), CreateInput{UserID: "u1"}, deps)
	if res.Failure != CreateFailureNone || res.Session == nil {
		t.Fatalf("expected creation despite eviction failure, got %v %v", res.Failure, res.Err)
	}
	if len(res.Evictions) != 1 || res.Evictions[0].Err == nil {
		t.Fatalf("expected recorded eviction failure, got %+v", res.Evictions)
	}
}

func TestRunCreateRetriesSessionIDCollision(t *testing.T) {
	repo := session.NewMemoryRepository()
	seed(t, repo, "taken", flowNow.Add(-time.Minute))

	deps := createDeps(repo, newCodec(t), 5)
	ids := []string{"taken", "taken", "fresh"}
	deps.NewSessionID = func() (string, error) {
		id := ids[0]
		ids = ids[1:]
		return id, nil
	}

	res := RunCreate(context.Background(), CreateInput{UserID: "u1"}, deps)
	if res.Failure != CreateFailureNone || res.Session.SessionID != "fresh" {
		t.Fatalf("expected retry to land on 'fresh', got %v %+v", res.Failure, res.Session)
	}

	ids = []string{"taken", "taken", "taken"}
	res = RunCreate(context.Background(), CreateInput{UserID: "u1"}, deps)
	if res.Failure != CreateFailureSave || !errors.Is(res.Err, session.ErrExists) {
		t.Fatalf("expected exhausted retries to fail, got %v %v", res.Failure, res.Err)
	}
}

func TestRunCreateTimestamps(t *testing.T) {
	repo := session.NewMemoryRepository()
	res := RunCreate(context.Background(), CreateInput{UserID: "u1", Permissions: []string{"p"}}, createDeps(repo, newCodec(t), 3))
	if res.Failure != CreateFailureNone {
		t.Fatalf("create failed: %v", res.Err)
	}
	s := res.Session
	if s.ExpiresAt-s.CreatedAt != (30*time.Minute).Milliseconds() || s.LastActivity != s.CreatedAt {
		t.Fatalf("unexpected timestamps %+v", s)
	}
	if s.AccessToken == s.RefreshToken || s.AccessToken == "" {
		t.Fatal("expected distinct access and refresh tokens")
	}
}

func validateDeps(repo *session.MemoryRepository, codec *token.Codec, threshold time.Duration) ValidateDeps {
	v := security.NewValidator(security.Config{EnableAnomalyCheck: true})
	return ValidateDeps{
		Now:              fixedNow,
		RefreshThreshold: threshold,
		Get:              repo.Get,
		Update:           repo.Update,
		Destroy:          repo.Delete,
		VerifyToken:      codec.Verify,
		Check:            v.Validate,
		ErrNotFound:      session.ErrNotFound,
	}
}

func TestRunValidateTokenBoundToRecord(t *testing.T) {
	repo := session.NewMemoryRepository()
	codec := newCodec(t)
	created := RunCreate(context.Background(), CreateInput{UserID: "u1"}, createDeps(repo, codec, 3))
	if created.Failure != CreateFailureNone {
		t.Fatalf("create: %v", created.Err)
	}
	sid := created.Session.SessionID
	deps := validateDeps(repo, codec, 5*time.Minute)

	res := RunValidate(context.Background(), sid, created.Session.RefreshToken, security.Observation{}, deps)
	if res.Failure != ValidateFailureTokenMismatch || !res.Destroyed {
		t.Fatalf("refresh token must not validate as access token: %+v", res)
	}
	if _, err := repo.Get(context.Background(), sid); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("rejected session still stored: %v", err)
	}
}

func TestRunValidateSignalsRefreshWithoutTouching(t *testing.T) {
	repo := session.NewMemoryRepository()
	codec := newCodec(t)
	created := RunCreate(context.Background(), CreateInput{UserID: "u1"}, createDeps(repo, codec, 3))

	res := RunValidate(context.Background(), created.Session.SessionID, created.Session.AccessToken, security.Observation{},
		validateDeps(repo, codec, time.Hour))
	if res.Failure != ValidateFailureNone || !res.NeedsRefresh {
		t.Fatalf("expected refresh signal, got %+v", res)
	}

	refreshed := RunRefreshLoaded(context.Background(), res.Session, RefreshDeps{
		Now:            func() time.Time { return flowNow.Add(2 * time.Second) },
		SessionTimeout: 30 * time.Minute,
		AccessTTL:      30 * time.Minute,
		Get:            repo.Get,
		Update:         repo.Update,
		IssueToken:     codec.Issue,
		ErrNotFound:    session.ErrNotFound,
	})
	if refreshed.Failure != RefreshFailureNone {
		t.Fatalf("refresh failed: %v %v", refreshed.Failure, refreshed.Err)
	}
	if refreshed.Session.AccessToken == created.Session.AccessToken {
		t.Fatal("expected a new access token")
	}
	if refreshed.Session.ExpiresAt <= created.Session.ExpiresAt {
		t.Fatal("expected expiry to move forward")
	}
	if refreshed.Session.RefreshToken != created.Session.RefreshToken {
		t.Fatal("refresh token must be unchanged")
	}
}

func TestRunRefreshDoesNotResurrect(t *testing.T) {
	repo := session.NewMemoryRepository()
	codec := newCodec(t)
	seed(t, repo, "gone", flowNow.Add(-time.Minute))
	sess, _ := repo.Get(context.Background(), "gone")
	_, _ = repo.Delete(context.Background(), "gone")

	res := RunRefreshLoaded(context.Background(), sess, RefreshDeps{
		Now:            fixedNow,
		SessionTimeout: time.Minute,
		AccessTTL:      time.Minute,
		Get:            repo.Get,
		Update:         repo.Update,
		IssueToken:     codec.Issue,
		ErrNotFound:    session.ErrNotFound,
	})
	if res.Failure != RefreshFailureNotFound {
		t.Fatalf("expected not found, got %v", res.Failure)
	}
	if _, err := repo.Get(context.Background(), "gone"); !errors.Is(err, session.ErrNotFound) {
		t.Fatal("refresh resurrected a deleted record")
	}
}

func TestRunDestroyAllCountsOnlyDeleted(t *testing.T) {
	repo := session.NewMemoryRepository()
	seed(t, repo, "a", flowNow.Add(-time.Minute))
	seed(t, repo, "b", flowNow.Add(-time.Minute))

	res := RunDestroyAll(context.Background(), "u1", DestroyAllDeps{
		Now:        fixedNow,
		ListActive: repo.ListActiveForUser,
		Delete:     repo.Delete,
	})
	if len(res.Destroyed) != 2 || res.ListErr != nil || len(res.Errors) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	res = RunDestroyAll(context.Background(), "u1", DestroyAllDeps{
		Now:        fixedNow,
		ListActive: repo.ListActiveForUser,
		Delete:     repo.Delete,
	})
	if len(res.Destroyed) != 0 {
		t.Fatalf("second pass destroyed %v", res.Destroyed)
	}
}
