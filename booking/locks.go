/*
locks.go - Keyed mutual exclusion for booking commits

PURPOSE:
  Two concurrent booking attempts for the same property must not both
  pass validation and commit. Each property gets an exclusion scope held
  across validate+commit; attempts for different properties proceed in
  parallel. Cancellation releases calendar space under the same scope, so
  a racing booking either sees the release or fails on the conflict
  check.

  Acquisition honors the caller's context: a deadline that expires before
  the lock is acquired aborts with ErrCancelled and no partial effects.
*/
package booking

import (
	"context"
	"sync"

	"github.com/coown/staybook/engine"
)

// keyedLocks hands out one binary semaphore per key.
type keyedLocks[K comparable] struct {
	mu    sync.Mutex
	locks map[K]chan struct{}
}

func newKeyedLocks[K comparable]() *keyedLocks[K] {
	return &keyedLocks[K]{locks: make(map[K]chan struct{})}
}

func (kl *keyedLocks[K]) semaphore(key K) chan struct{} {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	sem, ok := kl.locks[key]
	if !ok {
		sem = make(chan struct{}, 1)
		kl.locks[key] = sem
	}
	return sem
}

// acquire blocks until the key's lock is held or the context expires.
// The returned release func must be called exactly once.
func (kl *keyedLocks[K]) acquire(ctx context.Context, key K) (func(), error) {
	sem := kl.semaphore(key)
	select {
	case <-ctx.Done():
		return nil, engine.ErrCancelled
	default:
	}
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, engine.ErrCancelled
	}
}
