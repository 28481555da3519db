package caching

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "agendafacil"

// NewRedisClient builds a client, accepting either host:port or a
// redis:// / rediss:// address.
func NewRedisClient(addr, password string, db int, logger *zap.Logger) *redis.Client {
	parsedAddr := addr
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsedAddr = strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("redis ping failed on initialization", zap.String("addr", parsedAddr), zap.Error(err))
	}
	return client
}

// EventLock serialises concurrent deliveries of the same gateway event.
type EventLock interface {
	// Acquire takes the lock for externalID. When acquired is false another
	// worker holds it. The returned release func is always safe to call.
	Acquire(ctx context.Context, externalID string) (release func(), acquired bool, err error)
}

type redisEventLock struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisEventLock(client redis.Cmdable, ttl time.Duration, logger *zap.Logger) EventLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &redisEventLock{client: client, ttl: ttl, logger: logger}
}

func EventLockKey(externalID string) string {
	return fmt.Sprintf("%s:event-lock:%s", keyPrefix, externalID)
}

func (l *redisEventLock) Acquire(ctx context.Context, externalID string) (func(), bool, error) {
	key := EventLockKey(externalID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return func() {}, false, err
	}
	if !ok {
		return func() {}, false, nil
	}

	release := func() {
		// The request context may already be cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			l.logger.Warn("failed to release event lock", zap.String("key", key), zap.Error(err))
		}
	}
	return release, true, nil
}

// NoopEventLock always grants the lock. Used when Redis is not configured.
type NoopEventLock struct{}

func (NoopEventLock) Acquire(context.Context, string) (func(), bool, error) {
	return func() {}, true, nil
}
