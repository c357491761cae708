package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compile-time assertion: *RedisLocker satisfies Locker.
var _ Locker = (*RedisLocker)(nil)

// RedisLocker implements Locker on Redis so the single-session guarantee
// holds across orchestrator processes. The lease is a SET NX key with a TTL;
// renewal and release are compare-and-set scripts keyed on the session ID,
// so a session that lost its lease can never extend or delete a successor's.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker creates a RedisLocker from a Redis client.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// ConnectRedis creates a Redis client from a URL.
func ConnectRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

func leaseKey(jobKey string) string {
	return "inquest:lease:" + jobKey
}

var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Acquire takes the lease via SET NX. Redis expires the key itself, so a
// crashed holder is reclaimed without any cleanup pass.
func (r *RedisLocker) Acquire(ctx context.Context, jobKey, sessionID string, ttl time.Duration) error {
	ok, err := r.client.SetNX(ctx, leaseKey(jobKey), sessionID, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis lease acquire: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	return nil
}

// Renew extends the TTL when sessionID still holds the lease.
func (r *RedisLocker) Renew(ctx context.Context, jobKey, sessionID string, ttl time.Duration) error {
	n, err := renewScript.Run(ctx, r.client, []string{leaseKey(jobKey)}, sessionID, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redis lease renew: %w", err)
	}
	if n == 0 {
		return ErrLeaseExpired
	}
	return nil
}

// Release deletes the lease when sessionID still holds it.
func (r *RedisLocker) Release(ctx context.Context, jobKey, sessionID string) error {
	if _, err := releaseScript.Run(ctx, r.client, []string{leaseKey(jobKey)}, sessionID).Int(); err != nil {
		return fmt.Errorf("redis lease release: %w", err)
	}
	return nil
}
