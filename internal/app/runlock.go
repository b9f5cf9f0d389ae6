/**
 * @description
 * Best-effort distributed run lock backed by Redis. It keeps a new scheduled
 * invocation from starting while a slow previous run is still finishing.
 * The lock is advisory only: correctness is carried by the processor-side
 * idempotency key and the ledger's compare-and-swap updates, so a Redis
 * outage fails open rather than blocking payouts.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RunLock guards a batch run. Acquire returns false when another run holds
// the lock; the release func is safe to call regardless.
type RunLock interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, func())
}

// RedisRunLock implements RunLock with SET NX PX.
type RedisRunLock struct {
	client *redis.Client
	key    string
}

// releaseLockScript deletes the lock only while it still holds our token.
// The check and the delete run as one script so an expired lock re-taken by
// a successor is never deleted out from under it.
var releaseLockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// NewRedisRunLock creates a run lock on the given key.
func NewRedisRunLock(client *redis.Client, key string) *RedisRunLock {
	return &RedisRunLock{client: client, key: key}
}

// Acquire attempts to take the lock for at most ttl. Redis errors fail open.
func (l *RedisRunLock) Acquire(ctx context.Context, ttl time.Duration) (bool, func()) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		log.Printf("level=warn component=run_lock msg=\"redis unavailable; proceeding unlocked\" err=%v", err)
		return true, func() {}
	}
	if !ok {
		return false, func() {}
	}

	release := func() {
		if err := releaseLockScript.Run(context.Background(), l.client, []string{l.key}, token).Err(); err != nil && err != redis.Nil {
			log.Printf("level=warn component=run_lock msg=\"failed to release lock\" err=%v", err)
		}
	}
	return true, release
}

// NoopRunLock is used when Redis is not configured.
type NoopRunLock struct{}

func (NoopRunLock) Acquire(ctx context.Context, ttl time.Duration) (bool, func()) {
	return true, func() {}
}
