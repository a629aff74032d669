package session

import (
	"context"
	"embed"
	"errors"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const sessionColumns = `session_id, user_id, username, email, role, permissions,
	access_token, refresh_token, created_at, last_activity, expires_at,
	ip_address, user_agent, device_info, is_active`

type sessionRow struct {
	SessionID    string   `db:"session_id"`
	UserID       string   `db:"user_id"`
	Username     string   `db:"username"`
	Email        string   `db:"email"`
	Role         string   `db:"role"`
	Permissions  []string `db:"permissions"`
	AccessToken  string   `db:"access_token"`
	RefreshToken string   `db:"refresh_token"`
	CreatedAt    int64    `db:"created_at"`
	LastActivity int64    `db:"last_activity"`
	ExpiresAt    int64    `db:"expires_at"`
	IPAddress    string   `db:"ip_address"`
	UserAgent    string   `db:"user_agent"`
	DeviceInfo   string   `db:"device_info"`
	IsActive     bool     `db:"is_active"`
}

func (r sessionRow) toSession() *Session {
	return &Session{
		SessionID:    r.SessionID,
		UserID:       r.UserID,
		Username:     r.Username,
		Email:        r.Email,
		Role:         r.Role,
		Permissions:  r.Permissions,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		CreatedAt:    r.CreatedAt,
		LastActivity: r.LastActivity,
		ExpiresAt:    r.ExpiresAt,
		IPAddress:    r.IPAddress,
		UserAgent:    r.UserAgent,
		DeviceInfo:   r.DeviceInfo,
		IsActive:     r.IsActive,
	}
}

// PostgresRepository stores records in the sessions table. The per-user index is
// the (user_id, seq) SQL index, so it can never disagree with the rows.
type PostgresRepository struct {
	pool      *pgxpool.Pool
	closePool bool
}

// OpenPostgresRepository connects to dsn, applies the embedded migrations and
// returns a repository that owns the pool.
func OpenPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, storageErr(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storageErr(err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresRepository{pool: pool, closePool: true}, nil
}

// NewPostgresRepository wraps an existing pool. The caller keeps ownership of it
// and is expected to have run [Migrate].
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return errors.New("nil pool provided")
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	sqlDB, err := goose.OpenDBWithDriver("pgx", pool.Config().ConnConfig.ConnString())
	if err != nil {
		return storageErr(err)
	}
	defer sqlDB.Close()

	return goose.UpContext(ctx, sqlDB, "migrations")
}

// Save inserts a new row.
func (r *PostgresRepository) Save(ctx context.Context, sess *Session) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (session_id) DO NOTHING`,
		sess.SessionID, sess.UserID, sess.Username, sess.Email, sess.Role, permissionsOrEmpty(sess.Permissions),
		sess.AccessToken, sess.RefreshToken, sess.CreatedAt, sess.LastActivity, sess.ExpiresAt,
		sess.IPAddress, sess.UserAgent, sess.DeviceInfo, sess.IsActive,
	)
	if err != nil {
		return storageErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExists
	}
	return nil
}

// Get loads one row.
func (r *PostgresRepository) Get(ctx context.Context, sessionID string) (*Session, error) {
	var row sessionRow
	err := pgxscan.Get(ctx, r.pool, &row, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		if pgxscan.NotFound(err) || errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageErr(err)
	}
	return row.toSession(), nil
}

// Update overwrites the mutable columns of an existing row. The owner is fixed.
func (r *PostgresRepository) Update(ctx context.Context, sessionID string, sess *Session) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions SET
			username = $2, email = $3, role = $4, permissions = $5,
			access_token = $6, refresh_token = $7,
			last_activity = $8, expires_at = $9,
			ip_address = $10, user_agent = $11, device_info = $12, is_active = $13
		WHERE session_id = $1`,
		sessionID, sess.Username, sess.Email, sess.Role, permissionsOrEmpty(sess.Permissions),
		sess.AccessToken, sess.RefreshToken,
		sess.LastActivity, sess.ExpiresAt,
		sess.IPAddress, sess.UserAgent, sess.DeviceInfo, sess.IsActive,
	)
	if err != nil {
		return storageErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes one row.
func (r *PostgresRepository) Delete(ctx context.Context, sessionID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return false, storageErr(err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListActiveForUser returns live rows in insertion order.
func (r *PostgresRepository) ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]*Session, error) {
	var rows []sessionRow
	err := pgxscan.Select(ctx, r.pool, &rows, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND is_active AND expires_at > $2
		ORDER BY seq`,
		userID, toMillis(now),
	)
	if err != nil {
		return nil, storageErr(err)
	}

	out := make([]*Session, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toSession())
	}
	return out, nil
}

// CleanupExpired deletes rows past their expiry.
func (r *PostgresRepository) CleanupExpired(ctx context.Context, userID string, now time.Time) (int, error) {
	var (
		query = `DELETE FROM sessions WHERE expires_at < $1`
		args  = []any{toMillis(now)}
	)
	if userID != "" {
		query += ` AND user_id = $2`
		args = append(args, userID)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, storageErr(err)
	}
	return int(tag.RowsAffected()), nil
}

// Ping checks database reachability.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return storageErr(err)
	}
	return nil
}

// Close releases the pool when the repository opened it.
func (r *PostgresRepository) Close() error {
	if r.closePool {
		r.pool.Close()
	}
	return nil
}

func permissionsOrEmpty(perms []string) []string {
	if perms == nil {
		return []string{}
	}
	return perms
}
