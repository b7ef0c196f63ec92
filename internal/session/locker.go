// Package session holds setup state that lives outside the study record:
// per-study turn locks and stored setup conversations.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrLockTimeout is returned when a study lock could not be acquired before the context ended.
	ErrLockTimeout = errors.New("timed out waiting for study lock")
	// ErrSessionNotFound is returned when no setup session has the requested ID.
	ErrSessionNotFound = errors.New("setup session not found")
)

// Locker serializes turns for the same study.
type Locker interface {
	// Acquire blocks until the lock for key is held or ctx ends.
	// The returned release func must be called exactly once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

// MemoryLocker is a process-local Locker. Entries are reference counted and
// dropped once no caller holds or waits on them.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

// NewMemoryLocker creates an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*lockEntry)}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.ch
				l.unref(key, e)
			})
		}, nil
	case <-ctx.Done():
		l.unref(key, e)
		return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, ctx.Err())
	}
}

func (l *MemoryLocker) unref(key string, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// size reports the number of live lock entries.
func (l *MemoryLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
