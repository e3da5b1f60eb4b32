// Package lock serializes writes to a single registry document across workers and replicas
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrLockNotAcquired is returned when a lock cannot be acquired before the wait timeout
var ErrLockNotAcquired = errors.New("lock not acquired")

// Locker runs fn while holding the named lock
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// EntityKey is the lock key of a registry entity
func EntityKey(id string) string {
	return "entity:" + id
}

// NodeKey is the lock key of a registry node
func NodeKey(id string) string {
	return "node:" + id
}

// FingerprintKey is the lock key of a source row fingerprint within an owner's registry
func FingerprintKey(ownerID, fingerprint string) string {
	return "fingerprint:" + ownerID + ":" + fingerprint
}

// Local is an in-process keyed mutex
type Local struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	ch   chan struct{}
	refs int
}

// NewLocal creates an in-process locker
func NewLocal() *Local {
	return &Local{locks: make(map[string]*refLock)}
}

func (l *Local) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lk := l.acquireRef(key)
	defer l.releaseRef(key)

	select {
	case lk.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lk.ch }()

	return fn(ctx)
}

func (l *Local) acquireRef(key string) *refLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk, ok := l.locks[key]
	if !ok {
		lk = &refLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	return lk
}

func (l *Local) releaseRef(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk := l.locks[key]
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}
