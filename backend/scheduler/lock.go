package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/pkg/logger"
)

// ErrLocked is returned when another process holds the tick lock.
var ErrLocked = errors.New("tick lock held by another process")

// Locker serializes ticks across processes. Acquire returns a release func
// that must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context) (func(), error)
}

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// RedisLocker is a Locker backed by a single Redis key with a TTL.
type RedisLocker struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

func NewRedisLocker(client redis.UniversalClient, key string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire tick lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	return func() {
		// The tick context may already be cancelled during shutdown.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		n, err := releaseScript.Run(releaseCtx, l.client, []string{l.key}, token).Int()
		if err != nil {
			logger.Warn(ctx, "failed to release tick lock", "key", l.key, "error", err)
			return
		}
		if n == 0 {
			logger.Warn(ctx, "tick lock expired before release", "key", l.key, "ttl", l.ttl)
		}
	}, nil
}
