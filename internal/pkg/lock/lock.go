// Package lock provides keyed mutual exclusion.
// One KeyedLock serializes balance operations per user, another serializes
// every operation on a lobby session per session id.
package lock

import (
	"context"
	"fmt"
	"sync"
)

// keyMutex wraps a mutex with reference counting for cleanup.
type keyMutex struct {
	mu       sync.Mutex
	refCount int
}

// KeyedLock hands out one mutex per key. Entries are dropped once no
// goroutine holds or waits on them, so short-lived keys such as session ids
// do not accumulate.
type KeyedLock[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*keyMutex
}

// New creates an empty KeyedLock.
func New[K comparable]() *KeyedLock[K] {
	return &KeyedLock[K]{
		locks: make(map[K]*keyMutex),
	}
}

// acquire registers interest in key and returns its mutex.
func (l *KeyedLock[K]) acquire(key K) *keyMutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	km, ok := l.locks[key]
	if !ok {
		km = &keyMutex{}
		l.locks[key] = km
	}
	km.refCount++
	return km
}

// release drops interest in key, removing the entry when unused.
func (l *KeyedLock[K]) release(key K, km *keyMutex) {
	l.mu.Lock()
	defer l.mu.Unlock()

	km.refCount--
	if km.refCount <= 0 && l.locks[key] == km {
		delete(l.locks, key)
	}
}

// Lock blocks until the lock for key is held.
func (l *KeyedLock[K]) Lock(key K) {
	km := l.acquire(key)
	km.mu.Lock()
}

// Unlock releases the lock for key. Unlocking a key that is not held is a no-op.
func (l *KeyedLock[K]) Unlock(key K) {
	l.mu.Lock()
	km, ok := l.locks[key]
	l.mu.Unlock()
	if !ok {
		return
	}
	l.release(key, km)
	km.mu.Unlock()
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false otherwise.
func (l *KeyedLock[K]) TryLock(key K) bool {
	km := l.acquire(key)
	if km.mu.TryLock() {
		return true
	}
	l.release(key, km)
	return false
}

// LockContext waits for the lock until ctx is done.
// On cancellation it returns ErrLockTimeout and the pending acquisition is
// released in the background as soon as it completes.
func (l *KeyedLock[K]) LockContext(ctx context.Context, key K) error {
	km := l.acquire(key)
	if km.mu.TryLock() {
		return nil
	}

	done := make(chan struct{})
	go func() {
		km.mu.Lock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		go func() {
			<-done
			l.release(key, km)
			km.mu.Unlock()
		}()
		return fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
	}
}

// WithLock executes fn while holding the lock for key.
func (l *KeyedLock[K]) WithLock(key K, fn func() error) error {
	l.Lock(key)
	defer l.Unlock(key)
	return fn()
}

// IsLocked reports whether key is currently held.
// This is a point-in-time check and may change immediately after.
func (l *KeyedLock[K]) IsLocked(key K) bool {
	l.mu.Lock()
	km, ok := l.locks[key]
	l.mu.Unlock()
	if !ok {
		return false
	}
	if km.mu.TryLock() {
		km.mu.Unlock()
		return false
	}
	return true
}

// Len returns the number of keys currently tracked.
func (l *KeyedLock[K]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
