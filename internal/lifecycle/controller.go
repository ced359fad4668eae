// Package lifecycle drives subagent entries through their states:
//
//	launch -> running -> verified | aborted(reason) -> cleaned
//
// Every transition is computed inside one registry.Store.WithLock call, so a
// refused precondition leaves the registry untouched. Cleanup is the only
// destructive step and is gated on every deliverable having been harvested
// and on the subagent no longer running, unless forced.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/gorewood/parallelus/internal/config"
	"github.com/gorewood/parallelus/internal/fingerprint"
	"github.com/gorewood/parallelus/internal/git"
	"github.com/gorewood/parallelus/internal/harvest"
	"github.com/gorewood/parallelus/internal/launcher"
	"github.com/gorewood/parallelus/internal/registry"
	"github.com/gorewood/parallelus/internal/sandbox"
)

// Lifecycle errors.
var (
	ErrDeliverablesUnharvested = errors.New("deliverables remain unharvested")
	ErrDuplicateLaunch         = errors.New("subagent with this slug and type is already running")
	ErrInvalidTransition       = errors.New("invalid transition")
	ErrInvalidRequest          = errors.New("invalid request")
	ErrMarkerMissing           = errors.New("retrospective marker missing")
	ErrMarkerMismatch          = errors.New("marker head does not match current HEAD")
	ErrSandboxPathMissing      = errors.New("entry has no sandbox path")
)

// Provisioner creates and removes sandboxes.
type Provisioner interface {
	Create(ctx context.Context, req sandbox.Request) (string, error)
	Remove(ctx context.Context, sandboxType, path string) error
}

// Source reports the git provenance a subagent is launched against.
type Source interface {
	CurrentBranch(ctx context.Context) (string, error)
	HEAD(ctx context.Context) (string, error)
}

// LauncherFactory returns the launcher for a kind.
type LauncherFactory func(kind string) (launcher.Launcher, error)

// Controller applies lifecycle transitions to registry entries.
type Controller struct {
	store     *registry.Store
	workspace string
	fs        afero.Fs
	settings  config.Settings
	matcher   *harvest.Matcher
	sandboxes Provisioner
	launchers LauncherFactory
	source    Source
	now       func() time.Time
	newID     func(time.Time) string
	logger    *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithFs sets the filesystem holding sandboxes and the workspace.
func WithFs(fsys afero.Fs) Option { return func(c *Controller) { c.fs = fsys } }

// WithSettings sets the configuration (profiles, duplicate policy, fingerprint).
func WithSettings(s config.Settings) Option { return func(c *Controller) { c.settings = s } }

// WithMatcher replaces the deliverable matcher.
func WithMatcher(m *harvest.Matcher) Option { return func(c *Controller) { c.matcher = m } }

// WithProvisioner replaces the sandbox manager.
func WithProvisioner(p Provisioner) Option { return func(c *Controller) { c.sandboxes = p } }

// WithLaunchers replaces the launcher factory.
func WithLaunchers(f LauncherFactory) Option { return func(c *Controller) { c.launchers = f } }

// WithSource replaces the git provenance source.
func WithSource(s Source) Option { return func(c *Controller) { c.source = s } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

// WithIDGenerator replaces NewID.
func WithIDGenerator(gen func(time.Time) string) Option { return func(c *Controller) { c.newID = gen } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Controller for the registry in store and the workspace root.
func New(store *registry.Store, workspace string, opts ...Option) (*Controller, error) {
	if !filepath.IsAbs(workspace) {
		abs, err := filepath.Abs(workspace)
		if err != nil {
			return nil, fmt.Errorf("resolving workspace %s: %w", workspace, err)
		}
		workspace = abs
	}
	c := &Controller{
		store:     store,
		workspace: workspace,
		fs:        afero.NewOsFs(),
		settings:  config.Defaults(),
		launchers: launcher.New,
		now:       time.Now,
		newID:     NewID,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}

	repo := git.Repo{Dir: workspace}
	if c.source == nil {
		c.source = repo
	}
	if c.sandboxes == nil {
		c.sandboxes = sandbox.NewManager(c.fs, workspace, c.settings.SandboxRoot, repo, c.logger)
	}
	if c.matcher == nil {
		engine, err := fingerprint.New(c.settings.Fingerprint)
		if err != nil {
			return nil, err
		}
		c.matcher = harvest.NewMatcher(c.fs, engine)
	}
	return c, nil
}

// NewID returns "YYYYMMDD-HHMMSS-" plus eight random hex digits.
func NewID(t time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return t.UTC().Format("20060102-150405") + "-" + suffix
}

// Store returns the registry store.
func (c *Controller) Store() *registry.Store {
	return c.store
}

// Workspace returns the workspace root harvests copy into.
func (c *Controller) Workspace() string {
	return c.workspace
}

// List returns every entry in registry order.
func (c *Controller) List() ([]*registry.Entry, error) {
	reg, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	return reg.Entries, nil
}

// Get returns the entry with id.
func (c *Controller) Get(id string) (*registry.Entry, error) {
	return c.store.Get(id)
}

// mutateEntry runs fn against entry id under the registry lock.
func (c *Controller) mutateEntry(ctx context.Context, id string, fn func(*registry.Entry, time.Time) error) (*registry.Entry, error) {
	var updated *registry.Entry
	err := c.store.WithLock(ctx, func(reg *registry.Registry) error {
		entry := reg.Find(id)
		if entry == nil {
			return fmt.Errorf("%w: %s", registry.ErrEntryNotFound, id)
		}
		if err := fn(entry, c.now().UTC()); err != nil {
			return err
		}
		entry.RefreshDeliverablesStatus()
		updated = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Verify marks a running subagent as finished and ready for harvest.
func (c *Controller) Verify(ctx context.Context, id string) (*registry.Entry, error) {
	entry, err := c.mutateEntry(ctx, id, func(e *registry.Entry, now time.Time) error {
		if e.Status.State != registry.StateRunning {
			return fmt.Errorf("%w: cannot verify %s in status %s", ErrInvalidTransition, id, e.Status)
		}
		e.Status = registry.Verified
		e.VerifiedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("subagent verified", "id", id)
	return entry, nil
}

// Abort records that a subagent was stopped for reason. The sandbox is kept.
func (c *Controller) Abort(ctx context.Context, id, reason string) (*registry.Entry, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: abort needs a reason", ErrInvalidRequest)
	}
	entry, err := c.mutateEntry(ctx, id, func(e *registry.Entry, now time.Time) error {
		switch e.Status.State {
		case registry.StateRunning, registry.StateVerified:
		default:
			return fmt.Errorf("%w: cannot abort %s in status %s", ErrInvalidTransition, id, e.Status)
		}
		e.Status = registry.Aborted(reason)
		e.AbortedReason = reason
		e.AbortedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("subagent aborted", "id", id, "reason", reason)
	return entry, nil
}

// HarvestReport lists the files copied into the workspace per deliverable.
type HarvestReport struct {
	ID     string              `json:"id"`
	Copied map[string][]string `json:"copied"`
	Total  int                 `json:"total"`
	Status string              `json:"deliverables_status"`
}

// Harvest copies new or changed deliverable files from the sandbox into the
// workspace. Finding nothing new is not an error.
func (c *Controller) Harvest(ctx context.Context, id string) (*HarvestReport, error) {
	report := &HarvestReport{ID: id, Copied: map[string][]string{}}
	entry, err := c.mutateEntry(ctx, id, func(e *registry.Entry, now time.Time) error {
		root, err := c.sandboxPath(e)
		if err != nil {
			return err
		}
		for _, d := range e.Deliverables {
			copied, err := c.matcher.Collect(root, c.workspace, d)
			if err != nil {
				return fmt.Errorf("harvesting %s: %w", id, err)
			}
			report.Copied[d.ID] = copied
			report.Total += len(copied)
		}
		if report.Total > 0 {
			e.HarvestedAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	report.Status = string(entry.DeliverablesStatus)
	c.logger.Info("subagent harvested", "id", id, "files", report.Total, "deliverables_status", report.Status)
	return report, nil
}

// Cleanup deletes the sandbox and marks the entry cleaned. Without force it
// refuses while deliverables are unharvested or the subagent is running. If
// the sandbox cannot be removed the entry is left as it was.
func (c *Controller) Cleanup(ctx context.Context, id string, force bool) (*registry.Entry, error) {
	entry, err := c.mutateEntry(ctx, id, func(e *registry.Entry, now time.Time) error {
		if !force {
			if !e.DeliverablesHarvested() {
				return fmt.Errorf("%w for %s (%d/%d harvested; harvest first or use --force)",
					ErrDeliverablesUnharvested, id, e.HarvestedCount(), len(e.Deliverables))
			}
			if e.Status.State == registry.StateRunning || e.Status.State == registry.StateLaunching {
				return fmt.Errorf("%w: %s is still %s; verify or abort it first, or use --force",
					ErrInvalidTransition, id, e.Status)
			}
		}
		root, err := c.sandboxPath(e)
		if err != nil {
			return err
		}
		if err := c.sandboxes.Remove(ctx, e.Type, root); err != nil {
			return fmt.Errorf("cleaning up %s: %w", id, err)
		}
		if e.Status.State != registry.StateCleaned {
			e.Status = registry.Cleaned
			e.CleanedAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("subagent cleaned", "id", id, "forced", force)
	return entry, nil
}

// sandboxPath returns the entry's sandbox directory. Relative paths are
// resolved against the workspace.
func (c *Controller) sandboxPath(e *registry.Entry) (string, error) {
	if strings.TrimSpace(e.Path) == "" {
		return "", fmt.Errorf("%w: %s", ErrSandboxPathMissing, e.ID)
	}
	if filepath.IsAbs(e.Path) {
		return filepath.Clean(e.Path), nil
	}
	return filepath.Join(c.workspace, e.Path), nil
}

// Nudge sends message to a running subagent through its launcher.
func (c *Controller) Nudge(ctx context.Context, id, message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("%w: nudge needs a message", ErrInvalidRequest)
	}
	entry, err := c.store.Get(id)
	if err != nil {
		return err
	}
	if entry.Status.State != registry.StateRunning {
		return fmt.Errorf("%w: cannot nudge %s in status %s", ErrInvalidTransition, id, entry.Status)
	}
	if entry.LauncherKind == "" {
		return fmt.Errorf("%w: %s has no launcher", launcher.ErrNotNudgeable, id)
	}
	l, err := c.launchers(entry.LauncherKind)
	if err != nil {
		return err
	}
	if err := l.Nudge(ctx, entry.LauncherHandle, message); err != nil {
		return err
	}
	c.logger.Info("subagent nudged", "id", id)
	return nil
}
