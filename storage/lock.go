package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultLockTTL bounds how long a crashed holder can block a slug.
	DefaultLockTTL = 30 * time.Second
	// DefaultLockPrefix prefixes the Redis keys of slug locks.
	DefaultLockPrefix = "curio:lock"

	lockPollInterval = 50 * time.Millisecond
)

// ErrLockTimeout is returned when a slug lock could not be acquired in time.
var ErrLockTimeout = errors.New("timed out waiting for lock")

// UnlockFunc releases a held lock.
type UnlockFunc func(ctx context.Context) error

// Locker serializes uploads per slug.
type Locker interface {
	Lock(ctx context.Context, slug string) (UnlockFunc, error)
}

// releaseScript deletes the lock only if it is still held by the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX and a token-checked release.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker creates a locker. Acquisition gives up after ttl.
func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	if prefix == "" {
		prefix = DefaultLockPrefix
	}
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl, wait: ttl}
}

func (l *RedisLocker) Lock(ctx context.Context, slug string) (UnlockFunc, error) {
	key := l.prefix + ":" + slug
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	deadline := time.NewTimer(l.wait)
	defer deadline.Stop()
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("setnx %s: %w", key, err)
		}
		if ok {
			return func(ctx context.Context) error {
				if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
					return fmt.Errorf("release %s: %w", key, err)
				}
				return nil
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("%s: %w", key, ErrLockTimeout)
		case <-ticker.C:
		}
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
