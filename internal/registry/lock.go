package registry

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Locker serialises registry mutations. Lock blocks until the lock at path is
// held or ctx is done, in which case it returns an error wrapping
// ErrRegistryLocked. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, path string) (unlock func() error, err error)
}

const (
	minLockPoll = 25 * time.Millisecond
	maxLockPoll = 250 * time.Millisecond
)

// waitLockPoll sleeps for interval or until ctx is done and returns the next
// interval. ok is false when ctx ended first.
func waitLockPoll(ctx context.Context, interval time.Duration) (next time.Duration, ok bool) {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return interval, false
	case <-timer.C:
	}
	if interval < maxLockPoll {
		interval *= 2
	}
	return min(interval, maxLockPoll), true
}

// MemLocker serialises mutators within one process. It is meant for stores
// backed by an in-memory filesystem, where no lock file can be shared with
// other processes.
type MemLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// Lock implements Locker.
func (l *MemLocker) Lock(ctx context.Context, path string) (func() error, error) {
	l.mu.Lock()
	if l.slots == nil {
		l.slots = make(map[string]chan struct{})
	}
	slot, ok := l.slots[path]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[path] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s", ErrRegistryLocked, path)
	}

	var once sync.Once
	return func() error {
		once.Do(func() { <-slot })
		return nil
	}, nil
}
