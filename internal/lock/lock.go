// Package lock keeps two tracksync processes from running cycles against the
// same table at the same time.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Locker interface {
	// TryAcquire returns acquired=false without error when another holder
	// owns the lock.
	TryAcquire(ctx context.Context, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}

var ErrNotHeld = errors.New("lock no longer held")

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client *redis.Client
	key    string
}

func NewRedisLocker(redisAddr, key string) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisLocker{client: client, key: key}, nil
}

func KeyForTable(table string) string {
	return "tracksync:lock:" + table
}

func (l *RedisLocker) TryAcquire(ctx context.Context, ttl time.Duration) (func(context.Context) error, bool, error) {
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Int()
		if err != nil {
			return fmt.Errorf("failed to release lock %s: %w", l.key, err)
		}
		if n == 0 {
			return ErrNotHeld
		}
		return nil
	}

	return release, true, nil
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}
