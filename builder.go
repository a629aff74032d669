package goSession

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/internal"
	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/security"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/token"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// sessionIDAttempts bounds retries when a generated id collides with a stored one.
const sessionIDAttempts = 3

// Builder assembles a [Manager]. Configure it during initialization, call
// Build once, and discard it.
type Builder struct {
	config Config

	repo     session.Repository
	redis    redis.UniversalClient
	pgPool   *pgxpool.Pool
	logger   *zerolog.Logger
	now      func() time.Time
	auditSnk AuditSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRepository injects a repository. The Manager will not close it.
func (b *Builder) WithRepository(repo session.Repository) *Builder {
	b.repo = repo
	return b
}

// WithRedis selects the Redis backend over an existing client. The Manager
// will not close it.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPostgresPool selects the PostgreSQL backend over an existing pool. The
// schema is migrated at Build; the pool stays owned by the caller.
func (b *Builder) WithPostgresPool(pool *pgxpool.Pool) *Builder {
	b.pgPool = pool
	return b
}

func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

// WithClock replaces time.Now for the Manager and its token codec.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithAuditSink sets the audit destination. It only takes effect when
// Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSnk = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, opens the repository and wires the flows.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	logger := zerolog.Nop()
	if b.logger != nil {
		logger = *b.logger
	}
	logger = logger.With().Str("component", "session_manager").Logger()

	// -------- TOKEN CODEC --------
	codec, err := token.NewCodec(token.Config{
		SigningMethod: token.SigningMethod(strings.ToLower(cfg.Token.SigningMethod)),
		PrivateKey:    []byte(cfg.Token.PrivateKey),
		PublicKey:     []byte(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
	}, token.WithClock(now))
	if err != nil {
		return nil, err
	}

	// -------- REPOSITORY --------
	repo, backend, owns, err := b.openRepository(cfg)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:      cfg,
		backend:  backend,
		repo:     repo,
		ownsRepo: owns,
		codec:    codec,
		validator: security.NewValidator(security.Config{
			MaxInactiveWindow:  cfg.Security.MaxInactiveWindow,
			EnableAnomalyCheck: cfg.Security.EnableAnomalyCheck,
		}),
		logger:  logger,
		metrics: NewMetrics(cfg.Metrics),
		now:     now,
	}

	var sink internalaudit.Sink
	if b.auditSnk != nil {
		sink = b.auditSnk
	}
	m.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:      cfg.Audit.Enabled,
		BufferSize:   cfg.Audit.BufferSize,
		DropIfFull:   cfg.Audit.DropIfFull,
		DrainTimeout: cfg.Store.OperationTimeout,
	}, sink)

	// -------- FLOWS --------
	m.flows = flows.New(flows.Deps{
		Create: flows.CreateDeps{
			Now:                   now,
			SessionTimeout:        cfg.Session.SessionTimeout,
			AccessTTL:             cfg.Token.AccessTTL,
			RefreshTTL:            cfg.Token.RefreshTTL,
			MaxConcurrentSessions: cfg.Session.MaxConcurrentSessions,
			MaxIDAttempts:         sessionIDAttempts,
			NewSessionID:          newSessionID,
			IssueToken:            codec.Issue,
			CleanupExpired:        m.repoCleanup,
			ListActive:            m.repoListActive,
			Evict:                 m.evict,
			Save:                  m.repoSave,
			ErrExists:             session.ErrExists,
		},
		Validate: flows.ValidateDeps{
			Now:              now,
			RefreshThreshold: cfg.Session.RefreshThreshold,
			Get:              m.repoGet,
			Update:           m.repoUpdate,
			Destroy:          m.repoDelete,
			VerifyToken:      codec.Verify,
			Check:            m.validator.Validate,
			ErrNotFound:      session.ErrNotFound,
		},
		Refresh: flows.RefreshDeps{
			Now:            now,
			SessionTimeout: cfg.Session.SessionTimeout,
			AccessTTL:      cfg.Token.AccessTTL,
			Get:            m.repoGet,
			Update:         m.repoUpdate,
			IssueToken:     codec.Issue,
			ErrNotFound:    session.ErrNotFound,
		},
		DestroyAll: flows.DestroyAllDeps{
			Now:        now,
			ListActive: m.repoListActive,
			Delete:     m.repoDelete,
		},
	})

	b.built = true

	logger.Debug().Str("backend", backend).Int("max_concurrent", cfg.Session.MaxConcurrentSessions).
		Msg("session manager built")
	return m, nil
}

// openRepository resolves the backend: an injected repository first, then an
// injected client or pool, then Store.Backend.
func (b *Builder) openRepository(cfg Config) (session.Repository, string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*cfg.Store.OperationTimeout)
	defer cancel()

	redisOpts := session.RedisOptions{
		Prefix:         cfg.Store.RedisPrefix,
		RetentionGrace: cfg.Store.RetentionGrace,
	}

	switch {
	case b.repo != nil:
		return b.repo, "custom", false, nil
	case b.redis != nil:
		repo, err := session.OpenRedisRepository(ctx, b.redis, redisOpts)
		if err != nil {
			return nil, "", false, err
		}
		return repo, BackendRedis, false, nil
	case b.pgPool != nil:
		if err := session.Migrate(ctx, b.pgPool); err != nil {
			return nil, "", false, err
		}
		return session.NewPostgresRepository(b.pgPool), BackendPostgres, false, nil
	}

	switch cfg.Store.Backend {
	case BackendRedis:
		redisOpts.CloseClient = true
		client := redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr})
		repo, err := session.OpenRedisRepository(ctx, client, redisOpts)
		if err != nil {
			_ = client.Close()
			return nil, "", false, err
		}
		return repo, BackendRedis, true, nil
	case BackendPostgres:
		repo, err := session.OpenPostgresRepository(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, "", false, err
		}
		return repo, BackendPostgres, true, nil
	default:
		return session.NewMemoryRepository(), BackendMemory, true, nil
	}
}

func newSessionID() (string, error) {
	id, err := internal.NewSessionID()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
