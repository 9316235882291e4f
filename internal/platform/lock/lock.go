// Package lock provides the mutation locks used to serialize check-then-act
// sequences on the directory and on individual requests.
package lock

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Locker acquires an exclusive lock on key. Acquisition honours ctx; the
// returned release func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// Local is an in-process Locker with one weighted semaphore per key.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	sem  *semaphore.Weighted
	refs int
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{sem: semaphore.NewWeighted(1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		l.drop(key, s)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.sem.Release(1)
			l.drop(key, s)
		})
	}, nil
}

func (l *Local) drop(key string, s *slot) {
	l.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
	l.mu.Unlock()
}

// WithTimeout bounds lock acquisition so a contended mutation fails fast
// instead of queueing indefinitely.
func WithTimeout(inner Locker, timeout time.Duration) Locker {
	if timeout <= 0 {
		return inner
	}
	return timeoutLocker{inner: inner, timeout: timeout}
}

type timeoutLocker struct {
	inner   Locker
	timeout time.Duration
}

func (t timeoutLocker) Lock(ctx context.Context, key string) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Lock(ctx, key)
}
