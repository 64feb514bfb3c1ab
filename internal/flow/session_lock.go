package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrSessionBusy is returned when a session lock could not be acquired.
var ErrSessionBusy = errors.New("session is busy")

type sessionLock struct {
	ch   chan struct{}
	refs int
}

// SessionLocker serializes work per session id. Distinct sessions never contend.
type SessionLocker struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

// NewSessionLocker creates an empty SessionLocker.
func NewSessionLocker() *SessionLocker {
	return &SessionLocker{locks: make(map[string]*sessionLock)}
}

// Lock blocks until the session lock is held or ctx is done. The returned
// function releases the lock and must be called exactly once.
func (l *SessionLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	entry := l.acquireRef(sessionID)
	select {
	case entry.ch <- struct{}{}:
		return l.releaser(sessionID, entry), nil
	case <-ctx.Done():
		l.releaseRef(sessionID, entry)
		slog.Debug("SessionLocker Lock gave up", "sessionID", sessionID, "error", ctx.Err())
		return nil, fmt.Errorf("%w: %w", ErrSessionBusy, ctx.Err())
	}
}

// TryLock acquires the session lock only if it is free.
func (l *SessionLocker) TryLock(sessionID string) (func(), bool) {
	entry := l.acquireRef(sessionID)
	select {
	case entry.ch <- struct{}{}:
		return l.releaser(sessionID, entry), true
	default:
		l.releaseRef(sessionID, entry)
		return nil, false
	}
}

// Len returns the number of sessions currently locked or waited on.
func (l *SessionLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *SessionLocker) acquireRef(sessionID string) *sessionLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[sessionID]
	if !ok {
		entry = &sessionLock{ch: make(chan struct{}, 1)}
		l.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

func (l *SessionLocker) releaseRef(sessionID string, entry *sessionLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, sessionID)
	}
}

func (l *SessionLocker) releaser(sessionID string, entry *sessionLock) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.ch
			l.releaseRef(sessionID, entry)
		})
	}
}
