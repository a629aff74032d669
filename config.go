package goSession

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable of a [Manager]. Start from [DefaultConfig] and
// override fields; zero values are not defaults.
type Config struct {
	Session  SessionConfig  `mapstructure:"session"`
	Token    TokenConfig    `mapstructure:"token"`
	Security SecurityConfig `mapstructure:"security"`
	Store    StoreConfig    `mapstructure:"store"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session lifetime and the concurrency cap.
type SessionConfig struct {
	// SessionTimeout is the lifetime granted at creation and at every refresh.
	SessionTimeout time.Duration `mapstructure:"timeout"`
	// RefreshThreshold triggers a transparent refresh during validation once the
	// remaining lifetime drops below it.
	RefreshThreshold time.Duration `mapstructure:"refresh_threshold"`
	// MaxConcurrentSessions caps live sessions per user, enforced at creation.
	MaxConcurrentSessions int `mapstructure:"max_concurrent"`
	// CleanupInterval is the sweep period.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls bearer token issuance.
type TokenConfig struct {
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
	// SigningMethod is "hs256" (default) or "ed25519".
	SigningMethod string `mapstructure:"signing_method"`
	// PrivateKey is the HS256 secret or the Ed25519 private key (raw or PEM).
	// An empty HS256 secret is generated once at Build.
	PrivateKey string `mapstructure:"private_key"`
	PublicKey  string `mapstructure:"public_key"`
	Issuer     string `mapstructure:"issuer"`
	Audience   string `mapstructure:"audience"`
}

/*
====================================
SECURITY CONFIG
====================================
*/

type SecurityConfig struct {
	MaxInactiveWindow  time.Duration `mapstructure:"max_inactive_window"`
	EnableAnomalyCheck bool          `mapstructure:"enable_anomaly_check"`
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig selects and tunes the session repository.
type StoreConfig struct {
	// Backend is "memory", "redis" or "postgres". Ignored when a repository is
	// injected through [Builder.WithRepository].
	Backend     string `mapstructure:"backend"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisPrefix string `mapstructure:"redis_prefix"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	// OperationTimeout bounds every repository call.
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	// RetentionGrace pads the Redis key TTL past the session expiry.
	RetentionGrace time.Duration `mapstructure:"retention_grace"`
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
	DropIfFull bool `mapstructure:"drop_if_full"`
}

type MetricsConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	EnableLatencyHistograms bool `mapstructure:"enable_latency_histograms"`
}

// LogConfig is consumed by [NewLogger].
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			SessionTimeout:        30 * time.Minute,
			RefreshThreshold:      5 * time.Minute,
			MaxConcurrentSessions: 5,
			CleanupInterval:       10 * time.Minute,
		},
		Token: TokenConfig{
			AccessTTL:     30 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
		},
		Security: SecurityConfig{
			MaxInactiveWindow:  2 * time.Hour,
			EnableAnomalyCheck: true,
		},
		Store: StoreConfig{
			Backend:          BackendMemory,
			RedisAddr:        "localhost:6379",
			RedisPrefix:      "gs",
			OperationTimeout: 2 * time.Second,
			RetentionGrace:   time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the Manager cannot run with.
func (c *Config) Validate() error {
	// Session
	if c.Session.SessionTimeout <= 0 {
		return errors.New("Session SessionTimeout must be > 0")
	}
	if c.Session.RefreshThreshold < 0 {
		return errors.New("Session RefreshThreshold must be >= 0")
	}
	if c.Session.RefreshThreshold >= c.Session.SessionTimeout {
		return errors.New("Session RefreshThreshold must be < SessionTimeout")
	}
	if c.Session.MaxConcurrentSessions <= 0 {
		return errors.New("Session MaxConcurrentSessions must be > 0")
	}
	if c.Session.CleanupInterval <= 0 {
		return errors.New("Session CleanupInterval must be > 0")
	}

	// Token
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	if c.Token.RefreshTTL <= 0 {
		return errors.New("Token RefreshTTL must be > 0")
	}
	switch strings.ToLower(c.Token.SigningMethod) {
	case "hs256":
	case "ed25519":
		if c.Token.PrivateKey == "" {
			return errors.New("Token ed25519 requires PrivateKey")
		}
	default:
		return errors.New("unsupported Token signing method")
	}
	if c.Token.Audience != "" && strings.TrimSpace(c.Token.Audience) == "" {
		return errors.New("Token Audience must not be blank")
	}

	// Security
	if c.Security.MaxInactiveWindow <= 0 {
		return errors.New("Security MaxInactiveWindow must be > 0")
	}

	// Store
	switch c.Store.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("Store redis backend requires RedisAddr")
		}
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("Store postgres backend requires PostgresDSN")
		}
	default:
		return errors.New("unsupported Store backend")
	}
	if c.Store.OperationTimeout <= 0 {
		return errors.New("Store OperationTimeout must be > 0")
	}
	if c.Store.RetentionGrace < 0 {
		return errors.New("Store RetentionGrace must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// Log
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return errors.New("Log Format must be 'json' or 'console'")
	}

	return nil
}

/*
====================================
LOADING
====================================
*/

// LoadConfig builds a Config from defaults, an optional file at path (any format
// viper understands), and GOSESSION_* environment variables, in increasing
// precedence. Nested keys map to env names with "_", e.g.
// GOSESSION_SESSION_MAX_CONCURRENT.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GOSESSION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Every key needs a default so AutomaticEnv can resolve it during Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	defaults := map[string]any{
		"session.timeout":                   d.Session.SessionTimeout,
		"session.refresh_threshold":         d.Session.RefreshThreshold,
		"session.max_concurrent":            d.Session.MaxConcurrentSessions,
		"session.cleanup_interval":          d.Session.CleanupInterval,
		"token.access_ttl":                  d.Token.AccessTTL,
		"token.refresh_ttl":                 d.Token.RefreshTTL,
		"token.signing_method":              d.Token.SigningMethod,
		"token.private_key":                 d.Token.PrivateKey,
		"token.public_key":                  d.Token.PublicKey,
		"token.issuer":                      d.Token.Issuer,
		"token.audience":                    d.Token.Audience,
		"security.max_inactive_window":      d.Security.MaxInactiveWindow,
		"security.enable_anomaly_check":     d.Security.EnableAnomalyCheck,
		"store.backend":                     d.Store.Backend,
		"store.redis_addr":                  d.Store.RedisAddr,
		"store.redis_prefix":                d.Store.RedisPrefix,
		"store.postgres_dsn":                d.Store.PostgresDSN,
		"store.operation_timeout":           d.Store.OperationTimeout,
		"store.retention_grace":             d.Store.RetentionGrace,
		"audit.enabled":                     d.Audit.Enabled,
		"audit.buffer_size":                 d.Audit.BufferSize,
		"audit.drop_if_full":                d.Audit.DropIfFull,
		"metrics.enabled":                   d.Metrics.Enabled,
		"metrics.enable_latency_histograms": d.Metrics.EnableLatencyHistograms,
		"log.level":                         d.Log.Level,
		"log.format":                        d.Log.Format,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}
