package storage

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"
)

var ErrLockTimeout = errors.New("storage lock timeout")

// Lock is a mutex whose acquisition is bounded by a timeout.
type Lock struct {
	sem *semaphore.Weighted
}

func NewLock() *Lock {
	return &Lock{sem: semaphore.NewWeighted(1)}
}

func (l *Lock) Acquire(timeout time.Duration) error {
	if l.sem.TryAcquire(1) {
		return nil
	}
	if timeout <= 0 {
		return ErrLockTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := l.sem.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrLockTimeout
		}
		return err
	}
	return nil
}

// Release panics when the lock is not held.
func (l *Lock) Release() {
	l.sem.Release(1)
}

// With runs fn while holding the lock.
func (l *Lock) With(timeout time.Duration, fn func() error) error {
	if err := l.Acquire(timeout); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}
