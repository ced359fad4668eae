package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// Registry store errors.
var (
	// ErrEntryNotFound is returned when no entry has the requested id.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrRegistryCorrupt is returned when the registry document does not parse.
	// It is never repaired automatically.
	ErrRegistryCorrupt = errors.New("registry is corrupt")

	// ErrRegistryLocked is returned when the exclusive lock is not acquired in time.
	ErrRegistryLocked = errors.New("registry is locked by another process")
)

// DefaultLockTimeout bounds how long a mutation waits for the registry lock.
const DefaultLockTimeout = 10 * time.Second

// Store owns the registry file. Mutations go through WithLock; reads through Load.
type Store struct {
	path        string
	fs          afero.Fs
	locker      Locker
	lockTimeout time.Duration
	logger      *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithFs sets the filesystem the registry document lives on.
func WithFs(fsys afero.Fs) Option {
	return func(s *Store) { s.fs = fsys }
}

// WithLocker replaces the default flock-based locker.
func WithLocker(l Locker) Option {
	return func(s *Store) { s.locker = l }
}

// WithLockTimeout bounds lock acquisition. Non-positive values keep the default.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithLogger sets the logger for lock and write diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a Store for the registry document at path.
// Defaults: OS filesystem, FileLocker, DefaultLockTimeout, discarded logs.
func NewStore(path string, opts ...Option) *Store {
	s := &Store{
		path:        filepath.Clean(path),
		fs:          afero.NewOsFs(),
		locker:      FileLocker{},
		lockTimeout: DefaultLockTimeout,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the registry document path.
func (s *Store) Path() string {
	return s.path
}

// LockPath returns the path of the lock file guarding the registry.
func (s *Store) LockPath() string {
	return s.path + ".lock"
}

// Load reads the last fully written registry without taking the lock.
// A missing document reads as an empty registry.
func (s *Store) Load() (*Registry, error) {
	return s.read()
}

// Get loads the registry and returns the entry with id.
func (s *Store) Get(id string) (*Entry, error) {
	reg, err := s.Load()
	if err != nil {
		return nil, err
	}
	entry := reg.Find(id)
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return entry, nil
}

// WithLock runs mutate against the current registry while holding the
// exclusive lock, then rewrites the document atomically. If mutate returns an
// error the document is left untouched. Entries may be appended or modified
// but never removed.
func (s *Store) WithLock(ctx context.Context, mutate func(*Registry) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	started := time.Now()
	unlock, err := s.locker.Lock(lockCtx, s.LockPath())
	if err != nil {
		return err
	}
	defer func() {
		if uerr := unlock(); uerr != nil {
			s.logger.Warn("releasing registry lock", "path", s.LockPath(), "error", uerr)
		}
	}()
	s.logger.Debug("registry lock acquired", "path", s.path, "waited", time.Since(started))

	reg, err := s.read()
	if err != nil {
		return err
	}
	before := reg.IDs()

	if err := mutate(reg); err != nil {
		return err
	}

	if err := reg.validate(); err != nil {
		return fmt.Errorf("refusing to write registry: %w", err)
	}
	for _, id := range before {
		if reg.Find(id) == nil {
			return fmt.Errorf("refusing to write registry: entry %s was removed", id)
		}
	}

	data, err := encode(reg)
	if err != nil {
		return err
	}
	if err := writeAtomic(s.fs, s.path, data); err != nil {
		return fmt.Errorf("writing registry %s: %w", s.path, err)
	}
	s.logger.Debug("registry written", "path", s.path, "entries", len(reg.Entries))
	return nil
}

func (s *Store) read() (*Registry, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Registry{}, nil
		}
		return nil, fmt.Errorf("reading registry %s: %w", s.path, err)
	}
	return decode(s.path, data)
}

func decode(path string, data []byte) (*Registry, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return &Registry{}, nil
	}
	var entries []*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRegistryCorrupt, path, err)
	}
	reg := &Registry{Entries: entries}
	if err := reg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRegistryCorrupt, path, err)
	}
	return reg, nil
}

func encode(reg *Registry) ([]byte, error) {
	entries := reg.Entries
	if entries == nil {
		entries = []*Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding registry: %w", err)
	}
	return append(data, '\n'), nil
}

// writeAtomic writes data to path using write-to-temp-then-rename.
// The temp file is created in the same directory as path so the rename
// never crosses filesystems.
func writeAtomic(fsys afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmpFile, err := afero.TempFile(fsys, dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() { _ = fsys.Remove(tmpPath) }()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := fsys.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := fsys.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// WriteFileAtomic writes data to path on fsys using the same
// temp-then-rename discipline as the registry itself.
func WriteFileAtomic(fsys afero.Fs, path string, data []byte) error {
	return writeAtomic(fsys, path, data)
}
