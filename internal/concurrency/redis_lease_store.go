package concurrency

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLeaseStore implements LeaseStore using Redis, in the client-wiring
// idiom the teacher's geo package uses for its GeoAdd/HGetAll pair — a
// thin struct around a *redis.Client plus a key prefix. The
// acquire-or-steal-if-expired check must be atomic on the store, so it
// runs as a Lua script rather than a GET-then-SET pipeline.
type RedisLeaseStore struct {
	client *redis.Client
	prefix string
}

// NewRedisLeaseStore builds a lease store against an existing client.
func NewRedisLeaseStore(client *redis.Client) *RedisLeaseStore {
	return &RedisLeaseStore{client: client, prefix: "lease:"}
}

func (s *RedisLeaseStore) key(name string) string { return s.prefix + name }

type leaseValue struct {
	Holder    string `json:"holder"`
	ExpiresAt int64  `json:"expires_at_ms"`
	Version   int64  `json:"version"`
}

// acquireScript atomically installs a lease iff none exists or the
// existing one's expiry is in the past. It returns {1, version} on
// success or {0} on failure.
var acquireScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
local nowMs = tonumber(ARGV[3])
local ttlMs = tonumber(ARGV[2])
local newVersion = 0
if raw then
	local rec = cjson.decode(raw)
	if tonumber(rec.expires_at_ms) > nowMs then
		return {0}
	end
	newVersion = rec.version + 1
end
local rec = cjson.encode({holder = ARGV[1], expires_at_ms = nowMs + ttlMs, version = newVersion})
redis.call('SET', KEYS[1], rec, 'PX', ttlMs)
return {1, newVersion}
`)

// releaseScript deletes the lease only if holder matches.
var releaseScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
	return 0
end
local rec = cjson.decode(raw)
if rec.holder ~= ARGV[1] then
	return 0
end
redis.call('DEL', KEYS[1])
return 1
`)

func (s *RedisLeaseStore) Acquire(ctx context.Context, name, holder string, ttl time.Duration) (Handle, bool, error) {
	now := time.Now().UnixMilli()
	ttlMs := ttl.Milliseconds()
	if ttlMs <= 0 {
		ttlMs = DefaultLeaseTTL.Milliseconds()
	}
	res, err := acquireScript.Run(ctx, s.client, []string{s.key(name)}, holder, ttlMs, now).Result()
	if err != nil {
		return Handle{}, false, err
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) == 0 {
		return Handle{}, false, nil
	}
	ok1, _ := arr[0].(int64)
	if ok1 == 0 {
		return Handle{}, false, nil
	}
	version := int64(0)
	if len(arr) > 1 {
		if v, ok := arr[1].(int64); ok {
			version = v
		}
	}
	return Handle{Name: name, Holder: holder, Version: version}, true, nil
}

func (s *RedisLeaseStore) Release(ctx context.Context, name, holder string) error {
	_, err := releaseScript.Run(ctx, s.client, []string{s.key(name)}, holder).Result()
	if err == redis.Nil {
		return nil
	}
	return err
}

// Sweep scans for lease keys whose stored expiry has already passed and
// deletes them. Redis's own PX TTL (set in the same SET command) already
// reclaims almost all of these; this exists only to bound storage growth
// when the stored expiry, taken from the acquiring process's clock, has
// passed before Redis's TTL has (spec §4.5).
func (s *RedisLeaseStore) Sweep(ctx context.Context) (int, error) {
	now := time.Now().UnixMilli()
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return deleted, err
		}
		for _, k := range keys {
			raw, err := s.client.Get(ctx, k).Bytes()
			if err != nil {
				continue
			}
			var v leaseValue
			if err := json.Unmarshal(raw, &v); err != nil {
				continue
			}
			if v.ExpiresAt <= now {
				if err := s.client.Del(ctx, k).Err(); err == nil {
					deleted++
				}
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}
