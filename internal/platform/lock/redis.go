package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisKeyed is a Keyed implementation backed by a per-doctor Redis key,
// for deployments running more than one intake node. The lock is acquired
// with SET NX and released with a compare-and-delete script so only the
// holder can release it.
type RedisKeyed struct {
	client   *redis.Client
	ttl      time.Duration
	attempts int
}

func NewRedisKeyed(client *redis.Client, ttl time.Duration) *RedisKeyed {
	return &RedisKeyed{
		client:   client,
		ttl:      ttl,
		attempts: 5,
	}
}

func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}

func (k *RedisKeyed) WithLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:doctor:%s", doctorID.String())
	token := uuid.NewString()

	acquired := false
	for i := 0; i < k.attempts; i++ {
		ok, err := k.client.SetNX(ctx, key, token, k.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire doctor lock: %w", err)
		}
		if ok {
			acquired = true
			break
		}

		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if !acquired {
		return ErrNotAcquired
	}

	defer func() {
		_ = k.release(context.WithoutCancel(ctx), key, token)
	}()

	lockCtx, cancel := context.WithTimeout(ctx, k.ttl)
	defer cancel()

	return fn(lockCtx)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (k *RedisKeyed) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, k.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release doctor lock: %w", err)
	}
	return nil
}
