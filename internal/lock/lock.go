package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jihoonkang/account-api/internal/errors"
)

// AccountLocker serializes balance operations on a single account across
// processes. The database already serializes within one instance via row
// locks; the account lock keeps a second instance from even entering the
// unit of work.
type AccountLocker interface {
	// Acquire blocks until the lock for accountNumber is held or the wait
	// budget runs out, in which case it returns ErrAccountLocked. The
	// returned release function is safe to call exactly once.
	Acquire(ctx context.Context, accountNumber string) (release func(), err error)
}

const (
	lockKeyPrefix = "account-lock:"
	retryInterval = 100 * time.Millisecond
)

// releaseScript deletes the key only if this caller still holds it, so an
// expired lock reacquired by someone else is never released from here.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type RedisAccountLock struct {
	client  *redis.Client
	ttl     time.Duration
	maxWait time.Duration
	logger  *zap.Logger
}

func NewRedisAccountLock(client *redis.Client, ttl, maxWait time.Duration, logger *zap.Logger) *RedisAccountLock {
	return &RedisAccountLock{
		client:  client,
		ttl:     ttl,
		maxWait: maxWait,
		logger:  logger,
	}
}

func (l *RedisAccountLock) Acquire(ctx context.Context, accountNumber string) (func(), error) {
	key := lockKeyPrefix + accountNumber
	token := uuid.New().String()
	deadline := time.Now().Add(l.maxWait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire account lock: %w", err)
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}
		if time.Now().After(deadline) {
			l.logger.Warn("account lock busy",
				zap.String("account_number", accountNumber),
			)
			return nil, errors.ErrAccountLocked
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

func (l *RedisAccountLock) release(key, token string) {
	// Release runs on its own context: the request context may already be
	// cancelled by the time the handler unwinds.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
		l.logger.Error("failed to release account lock",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// NoopLocker is used when no Redis address is configured; the database row
// locks remain the only serialization.
type NoopLocker struct{}

func (NoopLocker) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}
