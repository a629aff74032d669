package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix    = "gs"
	defaultRetentionGrace = time.Hour
	minRecordTTL          = time.Second
	reapBatchSize         = 512
)

const saveSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
redis.call("RPUSH", KEYS[2], ARGV[1])
redis.call("ZADD", KEYS[3], ARGV[4], ARGV[1])
redis.call("HSET", KEYS[4], ARGV[1], ARGV[5])
return 1
`

var saveSessionLua = redis.NewScript(saveSessionScript)

const updateSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("ZADD", KEYS[2], ARGV[3], ARGV[4])
return 1
`

var updateSessionLua = redis.NewScript(updateSessionScript)

const deleteSessionScript = `
local uid = redis.call("HGET", KEYS[3], ARGV[1])
if uid then
  redis.call("LREM", ARGV[2] .. uid, 0, ARGV[1])
end
redis.call("ZREM", KEYS[2], ARGV[1])
redis.call("HDEL", KEYS[3], ARGV[1])
return redis.call("DEL", KEYS[1])
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Compare-and-delete against the expiry index: a record whose expiry was pushed
// forward by a concurrent refresh is left alone.
const reapSessionScript = `
local score = redis.call("ZSCORE", KEYS[2], ARGV[1])
if score then
  if tonumber(score) >= tonumber(ARGV[3]) then
    return 0
  end
elseif redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end

local uid = redis.call("HGET", KEYS[3], ARGV[1])
if uid then
  redis.call("LREM", ARGV[2] .. uid, 0, ARGV[1])
elseif ARGV[4] ~= "" then
  redis.call("LREM", ARGV[4], 0, ARGV[1])
end
redis.call("ZREM", KEYS[2], ARGV[1])
redis.call("HDEL", KEYS[3], ARGV[1])
redis.call("DEL", KEYS[1])

if score then
  return 1
end
return 0
`

var reapSessionLua = redis.NewScript(reapSessionScript)

// RedisOptions configures key layout and retention for [RedisRepository].
type RedisOptions struct {
	// Prefix namespaces every key. Defaults to "gs".
	Prefix string
	// RetentionGrace is added to a record's remaining lifetime when setting the
	// Redis TTL, so the cleanup sweep normally removes records before Redis does.
	RetentionGrace time.Duration
	// CloseClient makes Close also close the underlying client.
	CloseClient bool
}

// RedisRepository stores records as binary blobs.
//
// Key layout:
//
//	{prefix}:session:{sessionId}          record blob
//	{prefix}:sessions-by-user:{userId}    LIST of session ids, insertion order
//	{prefix}:sessions-by-expiry           ZSET session id -> expiresAt (ms)
//	{prefix}:session-owner                HASH session id -> user id
type RedisRepository struct {
	redis  redis.UniversalClient
	opts   RedisOptions
	closed atomic.Bool
}

// NewRedisRepository wraps a client without touching the network.
func NewRedisRepository(client redis.UniversalClient, opts RedisOptions) *RedisRepository {
	if opts.Prefix == "" {
		opts.Prefix = defaultRedisPrefix
	}
	if opts.RetentionGrace <= 0 {
		opts.RetentionGrace = defaultRetentionGrace
	}
	return &RedisRepository{redis: client, opts: opts}
}

// OpenRedisRepository wraps a client and verifies it is reachable.
func OpenRedisRepository(ctx context.Context, client redis.UniversalClient, opts RedisOptions) (*RedisRepository, error) {
	if client == nil {
		return nil, errors.New("nil redis client")
	}
	repo := NewRedisRepository(client, opts)
	if err := repo.Ping(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *RedisRepository) recordKey(sessionID string) string {
	return r.opts.Prefix + ":session:" + sessionID
}

func (r *RedisRepository) userPrefix() string {
	return r.opts.Prefix + ":sessions-by-user:"
}

func (r *RedisRepository) userKey(userID string) string {
	return r.userPrefix() + userID
}

func (r *RedisRepository) expiryKey() string {
	return r.opts.Prefix + ":sessions-by-expiry"
}

func (r *RedisRepository) ownerKey() string {
	return r.opts.Prefix + ":session-owner"
}

func (r *RedisRepository) recordTTL(sess *Session) time.Duration {
	remaining := time.Duration(sess.ExpiresAt-sess.LastActivity) * time.Millisecond
	if remaining < 0 {
		remaining = 0
	}
	ttl := remaining + r.opts.RetentionGrace
	if ttl < minRecordTTL {
		ttl = minRecordTTL
	}
	return ttl
}

// Save inserts the record and its index entries in one script.
func (r *RedisRepository) Save(ctx context.Context, sess *Session) error {
	if r.closed.Load() {
		return ErrClosed
	}
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	res, err := saveSessionLua.Run(
		ctx,
		r.redis,
		[]string{r.recordKey(sess.SessionID), r.userKey(sess.UserID), r.expiryKey(), r.ownerKey()},
		sess.SessionID,
		data,
		r.recordTTL(sess).Milliseconds(),
		sess.ExpiresAt,
		sess.UserID,
	).Int64()
	if err != nil {
		return storageErr(err)
	}
	if res == 0 {
		return ErrExists
	}
	return nil
}

// Get fetches and decodes one record.
func (r *RedisRepository) Get(ctx context.Context, sessionID string) (*Session, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	data, err := r.redis.Get(ctx, r.recordKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, storageErr(err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, errors.Join(ErrCorruptRecord, err)
	}
	sess.SessionID = sessionID
	return sess, nil
}

// Update rewrites an existing record and its expiry index entry.
func (r *RedisRepository) Update(ctx context.Context, sessionID string, sess *Session) error {
	if r.closed.Load() {
		return ErrClosed
	}
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	res, err := updateSessionLua.Run(
		ctx,
		r.redis,
		[]string{r.recordKey(sessionID), r.expiryKey()},
		data,
		r.recordTTL(sess).Milliseconds(),
		sess.ExpiresAt,
		sessionID,
	).Int64()
	if err != nil {
		return storageErr(err)
	}
	if res == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the record together with every index entry that points at it.
func (r *RedisRepository) Delete(ctx context.Context, sessionID string) (bool, error) {
	if r.closed.Load() {
		return false, ErrClosed
	}
	res, err := deleteSessionLua.Run(
		ctx,
		r.redis,
		[]string{r.recordKey(sessionID), r.expiryKey(), r.ownerKey()},
		sessionID,
		r.userPrefix(),
	).Int64()
	if err != nil {
		return false, storageErr(err)
	}
	return res == 1, nil
}

// ListActiveForUser reads the user's index and fetches the records in one pipeline.
func (r *RedisRepository) ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]*Session, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	ids, err := r.redis.LRange(ctx, r.userKey(userID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Session{}, nil
		}
		return nil, storageErr(err)
	}
	if len(ids) == 0 {
		return []*Session{}, nil
	}

	pipe := r.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, r.recordKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, storageErr(err)
	}

	nowMillis := toMillis(now)
	out := make([]*Session, 0, len(ids))
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				continue
			}
			return nil, storageErr(cmdErr)
		}
		sess, decErr := Decode(data)
		if decErr != nil {
			return nil, errors.Join(ErrCorruptRecord, decErr)
		}
		sess.SessionID = ids[i]
		if !sess.ActiveAt(nowMillis) {
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

// CleanupExpired reaps expired records through the compare-and-delete script.
func (r *RedisRepository) CleanupExpired(ctx context.Context, userID string, now time.Time) (int, error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}
	nowMillis := toMillis(now)

	if userID != "" {
		ids, err := r.redis.LRange(ctx, r.userKey(userID), 0, -1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return 0, storageErr(err)
		}
		return r.reap(ctx, ids, nowMillis, r.userKey(userID))
	}

	total := 0
	for {
		ids, err := r.redis.ZRangeByScore(ctx, r.expiryKey(), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   "(" + strconv.FormatInt(nowMillis, 10),
			Count: reapBatchSize,
		}).Result()
		if err != nil {
			return total, storageErr(err)
		}
		removed, err := r.reap(ctx, ids, nowMillis, "")
		total += removed
		if err != nil {
			return total, err
		}
		if len(ids) < reapBatchSize || removed == 0 {
			return total, nil
		}
	}
}

func (r *RedisRepository) reap(ctx context.Context, ids []string, nowMillis int64, fallbackUserKey string) (int, error) {
	removed := 0
	for _, id := range ids {
		res, err := reapSessionLua.Run(
			ctx,
			r.redis,
			[]string{r.recordKey(id), r.expiryKey(), r.ownerKey()},
			id,
			r.userPrefix(),
			nowMillis,
			fallbackUserKey,
		).Int64()
		if err != nil {
			return removed, storageErr(err)
		}
		removed += int(res)
	}
	return removed, nil
}

// Ping checks Redis reachability.
func (r *RedisRepository) Ping(ctx context.Context) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Close marks the repository closed, and closes the client when configured to.
func (r *RedisRepository) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	if r.opts.CloseClient {
		return r.redis.Close()
	}
	return nil
}
