package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// ErrNotHeld is returned when releasing a lock whose token no longer owns the key,
// usually because its lease ran out.
var ErrNotHeld = errors.New("lock not held")

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker is a leased mutex shared by every gamesvc instance.
type RedisLocker struct {
	rdb   *redis.Client
	ttl   time.Duration
	retry time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl, retry time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, ttl: ttl, retry: retry}
}

func lockKey(key string) string {
	return "lock:" + key
}

// Acquire blocks until the key is free or ctx is done.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (string, error) {
	token := uuid.NewString()
	for {
		ok, err := l.rdb.SetNX(ctx, lockKey(key), token, l.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return token, nil
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("lock %s: %w", key, ctx.Err())
		case <-time.After(l.retry):
		}
	}
}

func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, l.rdb, []string{lockKey(key)}, token).Int()
	if err != nil {
		return fmt.Errorf("unlock %s: %w", key, err)
	}
	if n == 0 {
		log.Warnf("lock %s expired before release", key)
		return fmt.Errorf("%w: %s", ErrNotHeld, key)
	}
	return nil
}
