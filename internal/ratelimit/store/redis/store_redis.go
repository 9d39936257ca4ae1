package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"thgate/internal/ratelimit/models"
)

const (
	// Redis key prefix and suffixes for client records. Request and login
	// counters live under separate keys so each carries its own TTL.
	keyPrefix     = "thgate:ratelimit:"
	requestSuffix = ":req"
	loginSuffix   = ":login"
)

// Every script returns {request_count, window_start_ms, login_attempts,
// last_login_attempt_ms}. KEYS[1] is the request hash, KEYS[2] the login hash.
const readRecord = `
local function field(key, name)
  return tonumber(redis.call('HGET', key, name) or '0')
end
`

var incrementRequestsScript = redis.NewScript(readRecord + `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local start = field(KEYS[1], 'start')
local count = field(KEYS[1], 'count')
if start > 0 and now - start < window then
  count = redis.call('HINCRBY', KEYS[1], 'count', 1)
else
  start = now
  count = 1
  redis.call('HSET', KEYS[1], 'start', start, 'count', count)
end
redis.call('PEXPIRE', KEYS[1], start + window - now)
return {count, start, field(KEYS[2], 'attempts'), field(KEYS[2], 'last')}
`)

var incrementLoginScript = redis.NewScript(readRecord + `
local now = tonumber(ARGV[1])
local lockout = tonumber(ARGV[2])
local attempts = field(KEYS[2], 'attempts')
local last = field(KEYS[2], 'last')
if last == 0 or now - last >= lockout then
  attempts = 0
end
attempts = attempts + 1
redis.call('HSET', KEYS[2], 'attempts', attempts, 'last', now)
redis.call('PEXPIRE', KEYS[2], lockout)
return {field(KEYS[1], 'count'), field(KEYS[1], 'start'), attempts, now}
`)

var getScript = redis.NewScript(readRecord + `
return {field(KEYS[1], 'count'), field(KEYS[1], 'start'), field(KEYS[2], 'attempts'), field(KEYS[2], 'last')}
`)

// RedisStore shares client records across instances. Each operation is a
// single Lua script, so concurrent updates from any instance are atomic.
type RedisStore struct {
	client redis.Cmdable
}

func New(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) IncrementRequests(ctx context.Context, key string, now time.Time, window time.Duration) (models.Record, error) {
	return s.run(ctx, incrementRequestsScript, key, now.UnixMilli(), window.Milliseconds())
}

func (s *RedisStore) IncrementLoginAttempts(ctx context.Context, key string, now time.Time, lockout time.Duration) (models.Record, error) {
	return s.run(ctx, incrementLoginScript, key, now.UnixMilli(), lockout.Milliseconds())
}

func (s *RedisStore) ResetLoginAttempts(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key+loginSuffix).Err(); err != nil {
		return fmt.Errorf("reset login attempts: %w", err)
	}
	return nil
}

// Get returns the record for key; the bool is false when neither counter exists.
func (s *RedisStore) Get(ctx context.Context, key string) (models.Record, bool, error) {
	r, err := s.run(ctx, getScript, key)
	if err != nil {
		return models.Record{}, false, err
	}
	exists := !r.WindowStart.IsZero() || !r.LastLoginAttempt.IsZero()
	return r, exists, nil
}

func (s *RedisStore) run(ctx context.Context, script *redis.Script, key string, args ...any) (models.Record, error) {
	keys := []string{keyPrefix + key + requestSuffix, keyPrefix + key + loginSuffix}
	vals, err := script.Run(ctx, s.client, keys, args...).Int64Slice()
	if err != nil {
		return models.Record{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(vals) != 4 {
		return models.Record{}, fmt.Errorf("rate limit script: unexpected reply length %d", len(vals))
	}
	return models.Record{
		RequestCount:     int(vals[0]),
		WindowStart:      fromMillis(vals[1]),
		LoginAttempts:    int(vals[2]),
		LastLoginAttempt: fromMillis(vals[3]),
	}, nil
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
