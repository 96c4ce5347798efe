// Package lock provides the per-resource critical section that serialises
// reservation attempts.  LocalLocker and RedisLocker both satisfy
// ports.Locker: Acquire waits at most the configured time, fails with
// model.ErrTimeout when the key stays busy, and returns a release func
// that is safe to call more than once.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iliyamo/stay-reservation/internal/model"
)

// LocalLocker serialises keys inside one process.  It is the fallback when
// Redis is unavailable and the locker used by tests.
type LocalLocker struct {
	wait time.Duration

	mu    sync.Mutex
	slots map[string]*slot
}

// slot is dropped from the map once no holder or waiter refers to it, so
// the map only grows with the number of keys in use.
type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{wait: wait, slots: make(map[string]*slot)}
}

func (l *LocalLocker) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *LocalLocker) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s.refs--; s.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	s := l.ref(key)
	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				l.unref(key, s)
			})
		}, nil
	case <-timer.C:
		l.unref(key, s)
		return nil, fmt.Errorf("%w: %s is busy", model.ErrTimeout, key)
	case <-ctx.Done():
		l.unref(key, s)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
