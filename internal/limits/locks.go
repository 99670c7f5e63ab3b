// Package limits – LockManager.
//
// This file implements per-debate mutual exclusion. One lock entry exists
// per debate id while anyone holds or waits for it; entries are
// reference-counted and removed as soon as the last interested caller
// releases, so the id->lock map cannot grow without bound over the process
// lifetime.
package limits

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a debate lock could not be acquired within
// the configured wait bound. Callers should treat it as retryable.
var ErrLockTimeout = errors.New("timed out waiting for debate lock")

// lockEntry is one debate's mutual-exclusion object. The buffered channel of
// capacity 1 acts as the mutex so acquisition can be bounded by a timer or
// context; refs counts holders plus waiters.
type lockEntry struct {
	ch   chan struct{}
	refs int
}

// LockManager hands out exclusive, reference-counted locks keyed by debate
// id. Two concurrent operations on the same debate id never run their
// critical sections concurrently; operations on different ids proceed fully
// in parallel.
//
// The zero value is not usable; construct with NewLockManager.
type LockManager struct {
	maxWait time.Duration

	mu    sync.Mutex
	locks map[string]*lockEntry
}

// NewLockManager constructs a LockManager whose acquisitions wait at most
// maxWait before failing with ErrLockTimeout. maxWait <= 0 is coerced to
// ten seconds.
func NewLockManager(maxWait time.Duration) *LockManager {
	if maxWait <= 0 {
		maxWait = 10 * time.Second
	}
	return &LockManager{
		maxWait: maxWait,
		locks:   make(map[string]*lockEntry),
	}
}

// Lock acquires the exclusive lock for debateID, creating the entry on first
// use. It returns a release function that must be called exactly once, or an
// error when the wait bound elapses (ErrLockTimeout) or ctx is cancelled
// first. On failure no lock is held and the entry's reference is dropped.
func (lm *LockManager) Lock(ctx context.Context, debateID string) (func(), error) {
	lm.mu.Lock()
	e, ok := lm.locks[debateID]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		lm.locks[debateID] = e
	}
	e.refs++
	lm.mu.Unlock()

	timer := time.NewTimer(lm.maxWait)
	defer timer.Stop()

	select {
	case e.ch <- struct{}{}:
		var once sync.Once
		release := func() {
			once.Do(func() {
				<-e.ch
				lm.unref(debateID, e)
			})
		}
		return release, nil
	case <-timer.C:
		lm.unref(debateID, e)
		return nil, ErrLockTimeout
	case <-ctx.Done():
		lm.unref(debateID, e)
		return nil, ctx.Err()
	}
}

// unref drops one reference to the entry and deletes it from the map when
// nobody holds or waits on it anymore.
func (lm *LockManager) unref(debateID string, e *lockEntry) {
	lm.mu.Lock()
	e.refs--
	if e.refs <= 0 {
		delete(lm.locks, debateID)
	}
	lm.mu.Unlock()
}

// Entries returns the number of live lock entries. Exposed for observability
// and tests; under no contention it should trend back to zero.
func (lm *LockManager) Entries() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.locks)
}
