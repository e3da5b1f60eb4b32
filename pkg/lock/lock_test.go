package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_SerializesSameKey(t *testing.T) {
	locker := NewLocal()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(context.Background(), EntityKey("e1"), func(ctx context.Context) error {
				current := counter
				time.Sleep(time.Millisecond)
				counter = current + 1
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Empty(t, locker.locks)
}

func TestLocal_DifferentKeysDoNotBlock(t *testing.T) {
	locker := NewLocal()
	inner := make(chan struct{})

	go func() {
		_ = locker.WithLock(context.Background(), NodeKey("a"), func(ctx context.Context) error {
			<-inner
			return nil
		})
	}()

	done := make(chan struct{})
	go func() {
		_ = locker.WithLock(context.Background(), NodeKey("b"), func(ctx context.Context) error {
			return nil
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
	close(inner)
}

func TestLocal_ContextCancelledWhileWaiting(t *testing.T) {
	locker := NewLocal()
	held := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = locker.WithLock(context.Background(), "k", func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	called := false
	err := locker.WithLock(ctx, "k", func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)
	close(release)
}

func TestRedis_UnreachableServer(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	defer rdb.Close()

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	locker := NewRedis(rdb, logger, "", time.Second, 200*time.Millisecond)

	called := false
	err := locker.WithLock(context.Background(), EntityKey("e1"), func(ctx context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockNotAcquired)
	assert.False(t, called)
}
