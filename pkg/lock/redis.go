package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg RedisConfig, logger ectologger.Logger) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	logger.Infof("Connected to Redis at %s", addr)
	return rdb, nil
}

// Redis is a distributed locker using SET NX with an owner token
type Redis struct {
	rdb         *redis.Client
	logger      ectologger.Logger
	keyPrefix   string
	ttl         time.Duration
	waitTimeout time.Duration
}

// NewRedis creates a distributed locker. ttl bounds how long a crashed holder keeps a lock and
// waitTimeout bounds how long WithLock waits for a busy lock.
func NewRedis(rdb *redis.Client, logger ectologger.Logger, keyPrefix string, ttl, waitTimeout time.Duration) *Redis {
	if keyPrefix == "" {
		keyPrefix = "fern:lock:"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if waitTimeout <= 0 {
		waitTimeout = 10 * time.Second
	}
	return &Redis{
		rdb:         rdb,
		logger:      logger,
		keyPrefix:   keyPrefix,
		ttl:         ttl,
		waitTimeout: waitTimeout,
	}
}

func (l *Redis) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token, err := l.tryAcquire(ctx, key)
	if err != nil {
		return err
	}
	defer l.release(ctx, key, token)

	return fn(ctx)
}

func (l *Redis) acquire(ctx context.Context, key string) (string, error) {
	token := uuid.New().String()

	ok, err := l.rdb.SetNX(ctx, l.keyPrefix+key, token, l.ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrLockNotAcquired
	}

	l.logger.WithContext(ctx).Debugf("Acquired lock: %s", key)
	return token, nil
}

// tryAcquire retries with exponential backoff capped at 500ms until waitTimeout
func (l *Redis) tryAcquire(ctx context.Context, key string) (string, error) {
	deadline := time.Now().Add(l.waitTimeout)
	backoff := 10 * time.Millisecond

	for time.Now().Before(deadline) {
		token, err := l.acquire(ctx, key)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrLockNotAcquired) {
			return "", err
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
			backoff = min(backoff*2, 500*time.Millisecond)
		}
	}

	return "", ErrLockNotAcquired
}

func (l *Redis) release(ctx context.Context, key, token string) {
	result, err := releaseScript.Run(context.WithoutCancel(ctx), l.rdb, []string{l.keyPrefix + key}, token).Int64()
	if err != nil {
		l.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"key": key}).Error("Failed to release lock")
		return
	}
	if result == 0 {
		l.logger.WithContext(ctx).WithFields(map[string]any{"key": key}).Warn("Lock expired before release")
		return
	}

	l.logger.WithContext(ctx).Debugf("Released lock: %s", key)
}
