//go:build !unix

package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileLocker creates the lock file exclusively and removes it on unlock.
// Unlike flock, a crashed holder leaves the file behind; remove it by hand.
type FileLocker struct{}

// Lock implements Locker.
func (FileLocker) Lock(ctx context.Context, path string) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	interval := minLockPoll
	for {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
		if err == nil {
			_ = file.Close()
			return func() error { return os.Remove(path) }, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("creating lock file %s: %w", path, err)
		}
		var ok bool
		if interval, ok = waitLockPoll(ctx, interval); !ok {
			return nil, fmt.Errorf("%w: %s", ErrRegistryLocked, path)
		}
	}
}
