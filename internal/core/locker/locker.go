// Package locker provides the mutual exclusion used to keep background jobs
// from overlapping, within one process or across instances.
package locker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotAcquired is returned when another holder owns the lock.
var ErrNotAcquired = errors.New("lock held elsewhere")

// Locker hands out named, time-limited locks.
type Locker interface {
	// TryLock acquires key for at most ttl without waiting. The returned
	// release func is safe to call more than once.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// Local is an in-process Locker.
type Local struct {
	mu    sync.Mutex
	held  map[string]time.Time
	nowFn func() time.Time
}

func NewLocal() *Local {
	return &Local{held: map[string]time.Time{}, nowFn: time.Now}
}

func (l *Local) TryLock(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowFn()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return nil, ErrNotAcquired
	}
	exp := now.Add(ttl)
	l.held[key] = exp
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			if l.held[key].Equal(exp) {
				delete(l.held, key)
			}
			l.mu.Unlock()
		})
	}, nil
}
