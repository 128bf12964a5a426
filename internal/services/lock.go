package services

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errLockTimeout = errors.New("lock wait exceeded")

type lockEntry struct {
	ch   chan struct{}
	refs int
}

// KeyedLock is a set of mutexes addressed by key, acquired with a bounded
// wait. Entries are dropped once nobody holds or waits on them.
type KeyedLock struct {
	mu sync.Mutex
	m  map[string]*lockEntry
}

// NewKeyedLock returns an empty KeyedLock.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{m: make(map[string]*lockEntry)}
}

// Acquire locks key, waiting at most timeout (0 waits only on ctx). The
// returned func releases the lock and must be called exactly once.
func (l *KeyedLock) Acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	l.mu.Lock()
	e, ok := l.m[key]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		l.m[key] = e
	}
	e.refs++
	l.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case e.ch <- struct{}{}:
		return func() {
			<-e.ch
			l.put(key, e)
		}, nil
	case <-ctx.Done():
		l.put(key, e)
		return nil, ctx.Err()
	case <-expired:
		l.put(key, e)
		return nil, errLockTimeout
	}
}

func (l *KeyedLock) put(key string, e *lockEntry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.m, key)
	}
	l.mu.Unlock()
}

// size is the number of live entries.
func (l *KeyedLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
