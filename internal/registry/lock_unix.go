//go:build unix

package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// FileLocker takes an exclusive flock(2) on a lock file next to the registry.
// The lock is tied to the open file description, so it is released if the
// holding process dies.
type FileLocker struct{}

// Lock implements Locker with non-blocking flock attempts retried with
// backoff until ctx is done.
func (FileLocker) Lock(ctx context.Context, path string) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", path, err)
	}
	fd := int(file.Fd())

	interval := minLockPoll
	for {
		err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			_ = file.Close()
			return nil, fmt.Errorf("locking %s: %w", path, err)
		}
		var ok bool
		if interval, ok = waitLockPoll(ctx, interval); !ok {
			_ = file.Close()
			return nil, fmt.Errorf("%w: %s", ErrRegistryLocked, path)
		}
	}

	return func() error {
		unlockErr := unix.Flock(fd, unix.LOCK_UN)
		return errors.Join(unlockErr, file.Close())
	}, nil
}
