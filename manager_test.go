package goSession

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/token"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Session.SessionTimeout = 30 * time.Minute
	cfg.Session.RefreshThreshold = 5 * time.Minute
	cfg.Session.MaxConcurrentSessions = 3
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *session.MemoryRepository, *fakeClock) {
	t.Helper()

	clock := newFakeClock()
	repo := session.NewMemoryRepository()
	m, err := New().
		WithConfig(cfg).
		WithRepository(repo).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() {
		_ = m.Close()
		_ = repo.Close()
	})
	return m, repo, clock
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

var alice = UserData{
	UserID:      "u1",
	Username:    "alice",
	Email:       "alice@example.com",
	Role:        "member",
	Permissions: []string{"read"},
}

var aliceDevice = CreateOptions{
	IPAddress:  "203.0.113.7",
	UserAgent:  "Mozilla/5.0 (X11; Linux x86_64)",
	DeviceInfo: "desktop",
}

func aliceCtx() context.Context {
	ctx := WithClientIP(context.Background(), aliceDevice.IPAddress)
	return WithUserAgent(ctx, aliceDevice.UserAgent)
}

func mustCreate(t *testing.T, m *Manager, user UserData) *CreateResult {
	t.Helper()
	res, err := m.CreateSession(context.Background(), user, aliceDevice)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return res
}

func TestCreateThenValidate(t *testing.T) {
	m, _, clock := newTestManager(t, testConfig())

	created := mustCreate(t, m, alice)
	if created.SessionID == "" || created.AccessToken == "" || created.RefreshToken == "" {
		t.Fatalf("incomplete create result %+v", created)
	}
	if !created.ExpiresAt.Equal(clock.Now().Add(30 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", created.ExpiresAt)
	}
	if created.User.Email != alice.Email || created.User.Permissions[0] != "read" {
		t.Fatalf("unexpected user view %+v", created.User)
	}

	clock.Advance(time.Minute)
	sum, ok := m.ValidateSession(aliceCtx(), created.SessionID, created.AccessToken)
	if !ok {
		t.Fatal("expected valid session")
	}
	if sum.Refreshed || sum.AccessToken != created.AccessToken {
		t.Fatal("unexpected refresh outside the threshold")
	}
	if !sum.LastActivity.Equal(clock.Now()) {
		t.Fatalf("expected lastActivity touched, got %v", sum.LastActivity)
	}
}

func TestCreateRejectsMissingUserID(t *testing.T) {
	m, _, _ := newTestManager(t, testConfig())

	for _, id := range []string{"", "   "} {
		_, err := m.CreateSession(context.Background(), UserData{UserID: id}, CreateOptions{})
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("userID %q: expected ErrInvalidInput, got %v", id, err)
		}
	}
}

func TestCreateHidesStorageFailure(t *testing.T) {
	m, repo, _ := newTestManager(t, testConfig())
	_ = repo.Close()

	_, err := m.CreateSession(context.Background(), alice, aliceDevice)
	if !errors.Is(err, ErrSessionCreationFailed) {
		t.Fatalf("expected ErrSessionCreationFailed, got %v", err)
	}
	if m.metrics.Value(MetricStorageFailure) == 0 {
		t.Fatal("expected storage failure counted")
	}
}

func TestDestroySessionIsIdempotent(t *testing.T) {
	m, _, _ := newTestManager(t, testConfig())
	created := mustCreate(t, m, alice)

	if !m.DestroySession(context.Background(), created.SessionID) {
		t.Fatal("first destroy failed")
	}
	if !m.DestroySession(context.Background(), created.SessionID) {
		t.Fatal("second destroy must also succeed")
	}
	if _, ok := m.ValidateSession(aliceCtx(), created.SessionID, created.AccessToken); ok {
		t.Fatal("destroyed session validated")
	}
	if got := m.metrics.Value(MetricSessionDestroyed); got != 1 {
		t.Fatalf("expected one destroy counted, got %d", got)
	}
}

func TestConcurrencyCapEvictsOldest(t *testing.T) {
	m, _, clock := newTestManager(t, testConfig())

	var sessions []*CreateResult
	for i := 0; i < 4; i++ {
		sessions = append(sessions, mustCreate(t, m, alice))
		clock.Advance(time.Second)
	}

	if _, ok := m.ValidateSession(aliceCtx(), sessions[0].SessionID, sessions[0].AccessToken); ok {
		t.Fatal("oldest session should have been evicted")
	}
	for _, s := range sessions[1:] {
		if _, ok := m.ValidateSession(aliceCtx(), s.SessionID, s.AccessToken); !ok {
			t.Fatalf("session %s should still be valid", s.SessionID)
		}
	}
	if got := len(m.GetUserActiveSessions(context.Background(), alice.UserID)); got != 3 {
		t.Fatalf("expected 3 active sessions, got %d", got)
	}
	if got := m.metrics.Value(MetricSessionEvicted); got != 1 {
		t.Fatalf("expected one eviction, got %d", got)
	}
}

func TestConcurrentCreateRespectsCap(t *testing.T) {
	m, _, _ := newTestManager(t, testConfig())

	var wg sync.WaitGroup
	for i := 0; i < 24; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.CreateSession(context.Background(), alice, aliceDevice); err != nil {
				t.Errorf("CreateSession failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := len(m.GetUserActiveSessions(context.Background(), alice.UserID)); got != 3 {
		t.Fatalf("expected cap of 3 to hold, got %d", got)
	}
}

func TestCapIsPerUser(t *testing.T) {
	m, _, _ := newTestManager(t, testConfig())

	for i := 0; i < 3; i++ {
		mustCreate(t, m, alice)
		mustCreate(t, m, UserData{UserID: "u2"})
	}
	if got := len(m.GetUserActiveSessions(context.Background(), "u2")); got != 3 {
		t.Fatalf("expected 3 sessions for u2, got %d", got)
	}
	if got := m.metrics.Value(MetricSessionEvicted); got != 0 {
		t.Fatalf("expected no evictions, got %d", got)
	}
}

func TestValidateRefreshesNearExpiry(t *testing.T) {
	m, _, clock := newTestManager(t, testConfig())
	created := mustCreate(t, m, alice)

	clock.Advance(26 * time.Minute)
	sum, ok := m.ValidateSession(aliceCtx(), created.SessionID, created.AccessToken)
	if !ok {
		t.Fatal("expected valid session")
	}
	if !sum.Refreshed || sum.AccessToken == created.AccessToken {
		t.Fatal("expected a new access token")
	}
	if !sum.ExpiresAt.After(created.ExpiresAt) {
		t.Fatalf("expected expiry to increase, %v <= %v", sum.ExpiresAt, created.ExpiresAt)
	}
	if !sum.LastActivity.Equal(clock.Now()) {
		t.Fatal("expected refresh to set lastActivity")
	}

	// The reissued token is the one bound to the session now.
	clock.Advance(time.Minute)
	if _, ok := m.ValidateSession(aliceCtx(), created.SessionID, sum.AccessToken); !ok {
		t.Fatal("refreshed token rejected")
	}
	if got := m.metrics.Value(MetricSessionRefreshed); got != 1 {
		t.Fatalf("expected one refresh, got %d", got)
	}
}

func TestRefreshSession(t *testing.T) {
	m, repo, clock := newTestManager(t, testConfig())
	created := mustCreate(t, m, alice)

	clock.Advance(2 * time.Second)
	sum, ok := m.RefreshSession(context.Background(), created.SessionID)
	if !ok || !sum.Refreshed {
		t.Fatal("expected refresh")
	}
	if sum.AccessToken == created.AccessToken {
		t.Fatal("expected new access token")
	}
	if !sum.ExpiresAt.Equal(clock.Now().Add(30 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", sum.ExpiresAt)
	}

	stored, err := repo.Get(context.Background(), created.SessionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.RefreshToken != created.RefreshToken {
		t.Fatal("refresh token must be unchanged")
	}

	if _, ok := m.RefreshSession(context.Background(), "missing"); ok {
		t.Fatal("refresh of unknown session succeeded")
	}

	clock.Advance(31 * time.Minute)
	if _, ok := m.RefreshSession(context.Background(), created.SessionID); ok {
		t.Fatal("refresh of expired session succeeded")
	}
}

func TestRefreshAfterDestroyDoesNotResurrect(t *testing.T) {
	m, repo, _ := newTestManager(t, testConfig())
	created := mustCreate(t, m, alice)
	m.DestroySession(context.Background(), created.SessionID)

	if _, ok := m.RefreshSession(context.Background(), created.SessionID); ok {
		t.Fatal("refresh succeeded on a destroyed session")
	}
	if _, err := repo.Get(context.Background(), created.SessionID); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestValidateExpiredDestroys(t *testing.T) {
	m, repo, clock := newTestManager(t, testConfig())
	created := mustCreate(t, m, alice)

	clock.Advance(31 * time.Minute)
	if _, ok := m.ValidateSession(aliceCtx(), created.SessionID, created.AccessToken); ok {
		t.Fatal("expired session validated")
	}
	if _, err := repo.Get(context.Background(), created.SessionID); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected expired record destroyed, got %v", err)
	}
}

func TestValidateAnomalyDestroys(t *testing.T) {
	m, _, _ := newTestManager(t, testConfig())
	created := mustCreate(t, m, alice)

	ctx := WithUserAgent(WithClientIP(context.Background(), "198.51.100.1"), aliceDevice.UserAgent)
	if _, ok := m.ValidateSession(ctx, created.SessionID, created.AccessToken); ok {
		t.Fatal("session validated from a different IP")
	}
	if _, ok := m.ValidateSession(aliceCtx(), created.SessionID, created.AccessToken); ok {
		t.Fatal("session must stay revoked after a failed security check")
	}
	if got := m.metrics.Value(MetricSecurityCheckFailed); got != 1 {
		t.Fatalf("expected one security failure, got %d", got)
	}
}

func TestValidateAnomalyCheckDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Security.EnableAnomalyCheck = false
	m, _, _ := newTestManager(t, cfg)
	created := mustCreate(t, m, alice)

	ctx := WithUserAgent(WithClientIP(context.Background(), "198.51.100.1"), "curl/8.0")
	if _, ok := m.ValidateSession(ctx, created.SessionID, created.AccessToken); !ok {
		t.Fatal("expected drift to be ignored when the anomaly check is off")
	}
}

func TestValidateInactiveTooLong(t *testing.T) {
	cfg := testConfig()
	cfg.Security.MaxInactiveWindow = 10 * time.Minute
	m, _, clock := newTestManager(t, cfg)
	created := mustCreate(t, m, alice)

	clock.Advance(11 * time.Minute)
	if _, ok := m.ValidateSession(aliceCtx(), created.SessionID, created.AccessToken); ok {
		t.Fatal("idle session validated")
	}
}

func TestValidateRejectsForeignToken(t *testing.T) {
	m, _, _ := newTestManager(t, testConfig())
	a := mustCreate(t, m, alice)
	b := mustCreate(t, m, alice)

	if _, ok := m.ValidateSession(aliceCtx(), a.SessionID, b.AccessToken); ok {
		t.Fatal("token of another session accepted")
	}
	if _, ok := m.ValidateSession(aliceCtx(), a.SessionID, a.AccessToken); ok {
		t.Fatal("session must be revoked after token mismatch")
	}
	if _, ok := m.ValidateSession(aliceCtx(), b.SessionID, b.AccessToken); !ok {
		t.Fatal("the other session should be untouched")
	}
	if _, ok := m.ValidateSession(aliceCtx(), b.SessionID, "not-a-token"); ok {
		t.Fatal("malformed token accepted")
	}
	if got := m.metrics.Value(MetricTokenRejected); got != 2 {
		t.Fatalf("expected two token rejections, got %d", got)
	}
}

func TestValidateRejectsIncompleteRecord(t *testing.T) {
	m, repo, clock := newTestManager(t, testConfig())

	now := clock.Now()
	tok, err := m.codec.Issue(token.Claims{UserID: "u9", SessionID: "broken"}, time.Minute)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	err = repo.Save(context.Background(), &session.Session{
		SessionID:    "broken",
		UserID:       "u9",
		CreatedAt:    now.UnixMilli(),
		LastActivity: now.UnixMilli(),
		ExpiresAt:    now.Add(time.Hour).UnixMilli(),
		IsActive:     true,
	})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, ok := m.ValidateSession(context.Background(), "broken", tok); ok {
		t.Fatal("record without an access token validated")
	}
	if _, err := repo.Get(context.Background(), "broken"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected incomplete record destroyed, got %v", err)
	}
}

func TestValidateEmptyInputs(t *testing.T) {
	m, _, _ := newTestManager(t, testConfig())
	if _, ok := m.ValidateSession(context.Background(), "", "tok"); ok {
		t.Fatal("empty session id validated")
	}
	if _, ok := m.ValidateSession(context.Background(), "sid", ""); ok {
		t.Fatal("empty token validated")
	}
}

func TestDestroyAllUserSessions(t *testing.T) {
	m, _, _ := newTestManager(t, testConfig())
	for i := 0; i < 3; i++ {
		mustCreate(t, m, alice)
	}
	bob := mustCreate(t, m, UserData{UserID: "u2"})

	if got := m.DestroyAllUserSessions(context.Background(), alice.UserID); got != 3 {
		t.Fatalf("expected 3 destroyed, got %d", got)
	}
	if got := m.DestroyAllUserSessions(context.Background(), alice.UserID); got != 0 {
		t.Fatalf("expected 0 on second pass, got %d", got)
	}
	if _, ok := m.ValidateSession(aliceCtx(), bob.SessionID, bob.AccessToken); !ok {
		t.Fatal("other user's session affected")
	}
}

func TestGetUserActiveSessions(t *testing.T) {
	m, _, clock := newTestManager(t, testConfig())
	first := mustCreate(t, m, alice)
	clock.Advance(time.Second)
	mustCreate(t, m, alice)

	list := m.GetUserActiveSessions(context.Background(), alice.UserID)
	if len(list) != 2 {
		t.Fatalf("expected 2, got %d", len(list))
	}
	if list[0].SessionID != first.SessionID {
		t.Fatal("expected insertion order")
	}
	if list[0].IPAddress != aliceDevice.IPAddress || list[0].DeviceInfo != "desktop" {
		t.Fatalf("unexpected entry %+v", list[0])
	}

	if got := m.GetUserActiveSessions(context.Background(), "nobody"); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", got)
	}

	clock.Advance(31 * time.Minute)
	if got := len(m.GetUserActiveSessions(context.Background(), alice.UserID)); got != 0 {
		t.Fatalf("expired sessions listed: %d", got)
	}
}

func TestCleanupExpired(t *testing.T) {
	m, _, clock := newTestManager(t, testConfig())
	mustCreate(t, m, alice)
	mustCreate(t, m, UserData{UserID: "u2"})

	if got := m.CleanupExpired(context.Background()); got != 0 {
		t.Fatalf("expected nothing to sweep, got %d", got)
	}

	clock.Advance(30 * time.Minute)
	if got := m.CleanupExpired(context.Background()); got != 0 {
		t.Fatalf("record at its expiry instant must not be swept, got %d", got)
	}

	clock.Advance(time.Millisecond)
	fresh := mustCreate(t, m, UserData{UserID: "u3"})
	if got := m.CleanupExpired(context.Background()); got != 2 {
		t.Fatalf("expected 2 swept, got %d", got)
	}
	if _, ok := m.ValidateSession(aliceCtx(), fresh.SessionID, fresh.AccessToken); !ok {
		t.Fatal("live session swept")
	}
}

func TestCreateReapsUserExpiredSessions(t *testing.T) {
	m, repo, clock := newTestManager(t, testConfig())
	old := mustCreate(t, m, alice)

	clock.Advance(time.Hour)
	mustCreate(t, m, alice)

	if _, err := repo.Get(context.Background(), old.SessionID); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected expired record reaped at create, got %v", err)
	}
}

func TestRedisBackedManager(t *testing.T) {
	_, client := newTestRedis(t)

	clock := newFakeClock()
	m, err := New().
		WithConfig(testConfig()).
		WithRedis(client).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer m.Close()

	var ids []string
	for i := 0; i < 4; i++ {
		res := mustCreate(t, m, alice)
		ids = append(ids, res.SessionID)
		clock.Advance(time.Second)
	}

	active := m.GetUserActiveSessions(context.Background(), alice.UserID)
	if len(active) != 3 || active[0].SessionID != ids[1] {
		t.Fatalf("unexpected active set %+v", active)
	}
	if got := m.DestroyAllUserSessions(context.Background(), alice.UserID); got != 3 {
		t.Fatalf("expected 3 destroyed, got %d", got)
	}
	if h := m.Health(context.Background()); !h.Available || h.Backend != BackendRedis {
		t.Fatalf("unexpected health %+v", h)
	}
}

func TestRedisBackendFromConfig(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()

	cfg := testConfig()
	cfg.Store.Backend = BackendRedis
	cfg.Store.RedisAddr = mr.Addr()

	m, err := New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	created := mustCreate(t, m, alice)
	if _, ok := m.ValidateSession(aliceCtx(), created.SessionID, created.AccessToken); !ok {
		t.Fatal("expected valid session")
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestBuildFailsOnUnreachableRedis(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Backend = BackendRedis
	cfg.Store.RedisAddr = "127.0.0.1:1"
	cfg.Store.OperationTimeout = 100 * time.Millisecond

	if _, err := New().WithConfig(cfg).Build(); err == nil {
		t.Fatal("expected Build to fail")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New()
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer m.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestAuditEventsThroughManager(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 16

	sink := NewChannelSink(16)
	clock := newFakeClock()
	m, err := New().WithConfig(cfg).WithClock(clock.Now).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer m.Close()

	created := mustCreate(t, m, alice)
	m.DestroySession(context.Background(), created.SessionID)

	want := []string{AuditSessionCreated, AuditSessionDestroyed}
	for _, typ := range want {
		select {
		case ev := <-sink.Events():
			if ev.EventType != typ {
				t.Fatalf("expected %s, got %s", typ, ev.EventType)
			}
			if ev.SessionID != created.SessionID || ev.UserID != alice.UserID {
				t.Fatalf("unexpected event %+v", ev)
			}
			for _, v := range ev.Metadata {
				if v == created.AccessToken || v == created.RefreshToken {
					t.Fatal("token leaked into audit metadata")
				}
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func TestAuditDisabledByDefault(t *testing.T) {
	sink := NewChannelSink(4)
	m, err := New().WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer m.Close()

	mustCreate(t, m, alice)
	select {
	case ev := <-sink.Events():
		t.Fatalf("unexpected audit event %+v", ev)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestMetricsSnapshotThroughManager(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.EnableLatencyHistograms = true
	m, _, _ := newTestManager(t, cfg)

	created := mustCreate(t, m, alice)
	m.ValidateSession(aliceCtx(), created.SessionID, created.AccessToken)
	m.ValidateSession(aliceCtx(), "missing", created.AccessToken)

	snap := m.MetricsSnapshot()
	if snap.Counters[MetricSessionCreated] != 1 {
		t.Fatalf("expected 1 created, got %d", snap.Counters[MetricSessionCreated])
	}
	if snap.Counters[MetricSessionValidated] != 1 || snap.Counters[MetricSessionRejected] != 1 {
		t.Fatalf("unexpected validate counters %+v", snap.Counters)
	}
	var observed uint64
	for _, n := range snap.Histograms[MetricValidateLatency] {
		observed += n
	}
	if observed != 2 {
		t.Fatalf("expected 2 latency observations, got %d", observed)
	}
}

func TestConfigRedactsKeys(t *testing.T) {
	cfg := testConfig()
	cfg.Token.PrivateKey = "super-secret-signing-key-material"
	m, _, _ := newTestManager(t, cfg)

	if got := m.Config().Token.PrivateKey; got != "" {
		t.Fatalf("expected redacted key, got %q", got)
	}
}

func TestConcurrentRefreshesKeepLatestToken(t *testing.T) {
	m, repo, clock := newTestManager(t, testConfig())
	created := mustCreate(t, m, alice)
	clock.Advance(26 * time.Minute)

	// The session is still live, so the interleaved sweeps must be no-ops.
	// Reaping a record whose expiry moves mid-sweep is covered against Redis in
	// TestRedisCleanupSparesRecordRefreshedMidSweep.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.RefreshSession(context.Background(), created.SessionID)
		}()
		go func() {
			defer wg.Done()
			m.CleanupExpired(context.Background())
		}()
	}
	wg.Wait()

	stored, err := repo.Get(context.Background(), created.SessionID)
	if err != nil {
		t.Fatalf("session lost during concurrent refresh: %v", err)
	}
	if _, ok := m.ValidateSession(aliceCtx(), created.SessionID, stored.AccessToken); !ok {
		t.Fatal("stored access token does not validate")
	}
	if got := m.metrics.Value(MetricSessionRefreshed); got != 8 {
		t.Fatalf("expected 8 refreshes, got %d", got)
	}
	if got := m.metrics.Value(MetricSessionsSwept); got != 0 {
		t.Fatalf("sweep removed a live session: swept=%d", got)
	}
}

func TestManagerRejectsUseAfterClose(t *testing.T) {
	m, _, _ := newTestManager(t, testConfig())
	created := mustCreate(t, m, alice)
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := m.CreateSession(context.Background(), alice, aliceDevice); !errors.Is(err, ErrManagerNotReady) {
		t.Fatalf("expected ErrManagerNotReady, got %v", err)
	}
	if _, ok := m.ValidateSession(aliceCtx(), created.SessionID, created.AccessToken); ok {
		t.Fatal("validate succeeded on a closed manager")
	}
	if _, ok := m.RefreshSession(context.Background(), created.SessionID); ok {
		t.Fatal("refresh succeeded on a closed manager")
	}
	if m.StartSweeper() {
		t.Fatal("sweeper started on a closed manager")
	}
	if h := m.Health(context.Background()); h.Available {
		t.Fatal("closed manager reported healthy")
	}
	if got := m.metrics.Value(MetricSessionCreated); got != 1 {
		t.Fatalf("expected only the pre-close create counted, got %d", got)
	}
}
