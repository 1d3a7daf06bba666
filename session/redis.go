package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusExpired  int64 = 1
	rotateStatusMismatch int64 = 2
	rotateStatusRotated  int64 = 3
)

const deleteSessionScript = `
local uid = redis.call("HGET", KEYS[1], "uid")
if not uid then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("SREM", ARGV[1] .. uid, ARGV[2])
return 1
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

const rotateRefreshScript = `
local session_key = KEYS[1]
local user_prefix = ARGV[1]
local session_id = ARGV[2]
local presented = ARGV[3]
local next_id = ARGV[4]
local now_unix = tonumber(ARGV[5])
local revoke = ARGV[6] == "1"

local fields = redis.call("HMGET", session_key, "uid", "jti", "created", "exp")
local uid = fields[1]
if not uid then
  return {0}
end

local function drop()
  redis.call("DEL", session_key)
  redis.call("SREM", user_prefix .. uid, session_id)
end

local exp = tonumber(fields[4] or "0")
if exp <= now_unix then
  drop()
  return {1}
end

if fields[2] ~= presented then
  if revoke then
    drop()
  end
  return {2}
end

redis.call("HSET", session_key, "jti", next_id)
return {3, uid, fields[3], fields[4]}
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

// RedisStore keeps each record in a hash keyed by session id plus a per-user
// set index so all sessions of a user can be revoked together.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a [RedisStore] under the given key prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ag"
	}
	return &RedisStore{redis: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *RedisStore) userPrefix() string {
	return s.prefix + ":u:"
}

func (s *RedisStore) userKey(userID string) string {
	return s.userPrefix() + userID
}

// Save persists rec and indexes it under its user.
//
//	Performance: 1 MULTI/EXEC with 4 commands.
func (s *RedisStore) Save(ctx context.Context, rec *Record, ttl time.Duration) error {
	if rec == nil || rec.SessionID == "" || rec.UserID == "" {
		return errors.New("session record requires session and user id")
	}
	if ttl <= 0 {
		return errors.New("session ttl must be positive")
	}

	sessionKey := s.key(rec.SessionID)
	userKey := s.userKey(rec.UserID)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, sessionKey,
			"uid", rec.UserID,
			"jti", rec.TokenID,
			"created", rec.CreatedAt,
			"exp", rec.ExpiresAt,
		)
		pipe.PExpire(ctx, sessionKey, ttl)
		pipe.SAdd(ctx, userKey, rec.SessionID)
		pipe.PExpire(ctx, userKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Get loads the record for sessionID.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Record, error) {
	values, err := s.redis.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(values) == 0 {
		return nil, ErrSessionNotFound
	}

	rec, err := recordFromStrings(sessionID, values["uid"], values["created"], values["exp"])
	if err != nil {
		return nil, err
	}
	rec.TokenID = values["jti"]
	if rec.Expired(s.now()) {
		return nil, ErrSessionNotFound
	}
	return rec, nil
}

// Rotate runs the compare-and-swap script.
//
//	Performance: 1 Lua EVALSHA.
func (s *RedisStore) Rotate(
	ctx context.Context,
	sessionID, presentedID, nextID string,
	now time.Time,
	revoke bool,
) (*Record, error) {
	revokeArg := "0"
	if revoke {
		revokeArg = "1"
	}

	result, err := rotateRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sessionID)},
		s.userPrefix(),
		sessionID,
		presentedID,
		nextID,
		now.Unix(),
		revokeArg,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid rotate script response", ErrStoreUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid rotate script status", ErrStoreUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return nil, ErrSessionNotFound
	case rotateStatusExpired:
		return nil, ErrSessionExpired
	case rotateStatusMismatch:
		return nil, ErrTokenReused
	case rotateStatusRotated:
		if len(parts) < 4 {
			return nil, fmt.Errorf("%w: missing rotated record", ErrStoreUnavailable)
		}
		uid, _ := parts[1].(string)
		created, _ := parts[2].(string)
		exp, _ := parts[3].(string)
		rec, err := recordFromStrings(sessionID, uid, created, exp)
		if err != nil {
			return nil, err
		}
		rec.TokenID = nextID
		return rec, nil
	default:
		return nil, fmt.Errorf("%w: unknown rotate script status", ErrStoreUnavailable)
	}
}

// Delete removes the session and its index entry.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	_, err := deleteSessionLua.Run(ctx, s.redis, []string{s.key(sessionID)}, s.userPrefix(), sessionID).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteAllForUser removes every session in the user's index.
//
// The index read and the deletes are separate round trips; a session saved in
// between survives until its own expiry or the next call.
func (s *RedisStore) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	userKey := s.userKey(userID)
	sessionIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var delCmd *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(sessionIDs) > 0 {
			keys := make([]string, 0, len(sessionIDs))
			for _, id := range sessionIDs {
				keys = append(keys, s.key(id))
			}
			delCmd = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if delCmd == nil {
		return 0, nil
	}
	return int(delCmd.Val()), nil
}

// ActiveSessionCount returns the size of the user's session index.
func (s *RedisStore) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	count, err := s.redis.SCard(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(count), nil
}

// Ping checks Redis availability and returns the round-trip latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}

func recordFromStrings(sessionID, uid, created, exp string) (*Record, error) {
	if uid == "" {
		return nil, fmt.Errorf("%w: record without user id", ErrStoreUnavailable)
	}
	createdAt, err := strconv.ParseInt(created, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt created field", ErrStoreUnavailable)
	}
	expiresAt, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt exp field", ErrStoreUnavailable)
	}
	return &Record{
		SessionID: sessionID,
		UserID:    uid,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}, nil
}
