package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodHS256 signs with HMAC-SHA256 over a shared secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 private key.
	MethodEd25519 SigningMethod = "ed25519"
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Failure classifies why [Codec.Verify] rejected a token.
type Failure int

const (
	// FailureNone means the token verified.
	FailureNone Failure = iota
	// FailureMalformed covers wrong segment counts, bad encoding, unknown
	// algorithms and claim sets that fail validation.
	FailureMalformed
	// FailureSignatureMismatch means the signature did not match the payload.
	FailureSignatureMismatch
	// FailureExpired means the token is past its expiry.
	FailureExpired
)

func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureMalformed:
		return "malformed"
	case FailureSignatureMismatch:
		return "signature_mismatch"
	case FailureExpired:
		return "expired"
	default:
		return "unknown"
	}
}

const generatedSecretSize = 32

// Config configures a [Codec].
//
// For [MethodHS256] an empty PrivateKey makes the codec generate a random
// secret once, at construction. Tokens signed with a generated secret do not
// survive a process restart.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// Claims is the payload carried inside a token.
type Claims struct {
	UserID    string
	SessionID string
	Role      string
	Kind      Kind
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type wireClaims struct {
	UID  string `json:"uid"`
	SID  string `json:"sid"`
	Role string `json:"role,omitempty"`
	Kind Kind   `json:"kind"`
	jwt.RegisteredClaims
}

// Option adjusts a [Codec] at construction.
type Option func(*Codec)

// WithClock replaces time.Now for issuance and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// Codec issues and verifies tokens. It is safe for concurrent use.
type Codec struct {
	cfg       Config
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	now       func() time.Time
}

// NewCodec validates cfg and prepares the signing keys.
func NewCodec(cfg Config, opts ...Option) (*Codec, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	c := &Codec{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}

	switch cfg.SigningMethod {
	case MethodHS256, "":
		secret := cfg.PrivateKey
		if len(secret) == 0 {
			secret = make([]byte, generatedSecretSize)
			if _, err := rand.Read(secret); err != nil {
				return nil, err
			}
		}
		c.cfg.SigningMethod = MethodHS256
		c.method = jwt.SigningMethodHS256
		c.signKey = secret
		c.verifyKey = secret
	case MethodEd25519:
		priv, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		c.method = jwt.SigningMethodEdDSA
		c.signKey = priv
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			c.verifyKey = pub
		} else {
			c.verifyKey = priv.Public()
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return c, nil
}

// Issue signs claims with a lifetime of ttl. IssuedAt, ExpiresAt and ID are
// set by the codec; a fresh random ID makes every issued value distinct.
func (c *Codec) Issue(claims Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("invalid token ttl")
	}
	if claims.Kind == "" {
		claims.Kind = KindAccess
	}

	now := c.now()
	wc := wireClaims{
		UID:  claims.UserID,
		SID:  claims.SessionID,
		Role: claims.Role,
		Kind: claims.Kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if c.cfg.Audience != "" {
		wc.Audience = jwt.ClaimStrings{c.cfg.Audience}
	}

	return jwt.NewWithClaims(c.method, wc).SignedString(c.signKey)
}

// Verify parses and checks a token. On success it returns the claims and
// [FailureNone]; otherwise nil and the failure kind.
func (c *Codec) Verify(tokenStr string) (*Claims, Failure) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.cfg.Leeway))
	}
	if c.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.cfg.Issuer))
	}
	if c.cfg.Audience != "" {
		options = append(options, jwt.WithAudience(c.cfg.Audience))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, &wireClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != c.method.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return c.verifyKey, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	wc, ok := parsed.Claims.(*wireClaims)
	if !ok || !parsed.Valid || wc.UID == "" || wc.SID == "" {
		return nil, FailureMalformed
	}
	if wc.Kind != KindAccess && wc.Kind != KindRefresh {
		return nil, FailureMalformed
	}

	out := &Claims{
		UserID:    wc.UID,
		SessionID: wc.SID,
		Role:      wc.Role,
		Kind:      wc.Kind,
		ID:        wc.ID,
		ExpiresAt: wc.ExpiresAt.Time,
	}
	if wc.IssuedAt != nil {
		out.IssuedAt = wc.IssuedAt.Time
	}
	return out, FailureNone
}

func classify(err error) Failure {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return FailureExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return FailureSignatureMismatch
	default:
		return FailureMalformed
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
