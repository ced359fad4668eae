package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/gorewood/parallelus/internal/config"
	"github.com/gorewood/parallelus/internal/git"
	"github.com/gorewood/parallelus/internal/launcher"
	"github.com/gorewood/parallelus/internal/registry"
	"github.com/gorewood/parallelus/internal/sandbox"
)

// Retrospective marker locations, relative to the workspace.
const (
	MarkerDir = "docs/parallelus/self-improvement/markers"
	ReportDir = "docs/parallelus/self-improvement/reports"
)

// LaunchRequest describes a subagent to start.
type LaunchRequest struct {
	Type      string
	Slug      string
	Role      string
	ScopePath string
	Launcher  string
	Command   string
}

// Launch provisions a sandbox, starts the subagent and records it as running.
// The whole launch happens under the registry lock; if any step fails the
// sandbox is removed and nothing is recorded.
func (c *Controller) Launch(ctx context.Context, req LaunchRequest) (*registry.Entry, error) {
	if err := validateLaunch(req); err != nil {
		return nil, err
	}
	l, err := c.launchers(req.Launcher)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	profile := c.settings.Profile(req.Slug)

	branch, head := c.provenance(ctx)
	if req.Type == sandbox.TypeWorktree && head == "" {
		return nil, fmt.Errorf("%w: worktree sandboxes need a git commit to check out", ErrInvalidRequest)
	}
	if profile.MarkerRequired() {
		if err := c.checkMarker(branch, head); err != nil {
			return nil, err
		}
	}

	var entry *registry.Entry
	err = c.store.WithLock(ctx, func(reg *registry.Registry) error {
		if !c.settings.AllowDuplicates() {
			for _, other := range reg.Entries {
				if other.Slug == req.Slug && other.Type == req.Type && other.Status.State == registry.StateRunning {
					return fmt.Errorf("%w: %s (%s %s)", ErrDuplicateLaunch, other.ID, req.Type, req.Slug)
				}
			}
		}

		now := c.now().UTC()
		id := c.newID(now)
		if reg.Find(id) != nil {
			return fmt.Errorf("generated id %s already exists", id)
		}

		path, err := c.sandboxes.Create(ctx, sandbox.Request{
			ID: id, Slug: req.Slug, Type: req.Type, ScopePath: req.ScopePath, Commit: head,
		})
		if err != nil {
			return fmt.Errorf("provisioning sandbox: %w", err)
		}

		built, err := c.buildEntry(ctx, l, req, profile, id, path, branch, head, now)
		if err != nil {
			if rmErr := c.sandboxes.Remove(ctx, req.Type, path); rmErr != nil {
				c.logger.Warn("removing sandbox after failed launch", "path", path, "error", rmErr)
			}
			return err
		}
		entry = built
		return reg.Append(entry)
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("subagent launched", "id", entry.ID, "slug", entry.Slug, "type", entry.Type,
		"launcher", entry.LauncherKind, "path", entry.Path)
	return entry, nil
}

func validateLaunch(req LaunchRequest) error {
	if req.Slug == "" {
		return fmt.Errorf("%w: slug is required", ErrInvalidRequest)
	}
	if !sandbox.ValidType(req.Type) {
		return fmt.Errorf("%w: type must be %q or %q, got %q",
			ErrInvalidRequest, sandbox.TypeThrowaway, sandbox.TypeWorktree, req.Type)
	}
	if req.Launcher == "" {
		return fmt.Errorf("%w: launcher is required", ErrInvalidRequest)
	}
	return nil
}

func (c *Controller) buildEntry(ctx context.Context, l launcher.Launcher, req LaunchRequest, profile config.Profile,
	id, sandboxPath, branch, head string, now time.Time,
) (*registry.Entry, error) {
	deliverables, err := c.seedDeliverables(profile, sandboxPath, git.BranchSlug(branch), req.Slug, id)
	if err != nil {
		return nil, err
	}

	role := req.Role
	if role == "" {
		role = profile.Role
	}
	command := req.Command
	if command == "" {
		command = profile.Command
	}
	if command == "" {
		command = c.settings.DefaultCommand
	}
	logPath := filepath.Join(sandboxPath, sandbox.LogFile)

	handle, err := l.Start(ctx, launcher.Spec{
		ID: id, Slug: req.Slug, Role: role,
		SandboxPath: sandboxPath, LogPath: logPath, Command: command,
	})
	if err != nil {
		return nil, fmt.Errorf("starting %s launcher: %w", l.Kind(), err)
	}

	entry := &registry.Entry{
		ID:             id,
		Type:           req.Type,
		Slug:           req.Slug,
		Role:           role,
		Status:         registry.Running,
		Path:           sandboxPath,
		ScopePath:      req.ScopePath,
		LogPath:        logPath,
		LauncherKind:   l.Kind(),
		LauncherHandle: handle,
		SourceBranch:   branch,
		SourceCommit:   head,
		Deliverables:   deliverables,
		LaunchedAt:     &now,
	}
	entry.RefreshDeliverablesStatus()
	return entry, nil
}

// seedDeliverables instantiates the profile's deliverables with a baseline of
// whatever already matches in the fresh sandbox.
func (c *Controller) seedDeliverables(profile config.Profile, sandboxPath, branchSlug, slug, id string) ([]*registry.Deliverable, error) {
	deliverables := make([]*registry.Deliverable, 0, len(profile.Deliverables))
	for _, tmpl := range profile.Deliverables {
		glob := config.ExpandGlob(tmpl.SourceGlob, branchSlug, slug, id)
		paths, fps, err := c.matcher.Baseline(sandboxPath, glob)
		if err != nil {
			return nil, fmt.Errorf("baseline for deliverable %s: %w", tmpl.ID, err)
		}
		deliverables = append(deliverables, &registry.Deliverable{
			ID:                   tmpl.ID,
			Kind:                 tmpl.Kind,
			SourceGlob:           glob,
			Baseline:             paths,
			BaselineFingerprints: fps,
			Status:               registry.DeliverableWaiting,
		})
	}
	return deliverables, nil
}

// provenance returns the current branch and HEAD. Outside a repository both
// are empty.
func (c *Controller) provenance(ctx context.Context) (branch, head string) {
	var err error
	if branch, err = c.source.CurrentBranch(ctx); err != nil {
		c.logger.Debug("no branch for provenance", "error", err)
		return "", ""
	}
	if head, err = c.source.HEAD(ctx); err != nil {
		c.logger.Debug("no HEAD for provenance", "error", err)
		return branch, ""
	}
	return branch, head
}

type marker struct {
	Timestamp string `json:"timestamp"`
	Head      string `json:"head"`
}

// checkMarker requires a retrospective marker for the branch whose head is
// the current HEAD, plus the report it points at.
func (c *Controller) checkMarker(branch, head string) error {
	if branch == "" || head == "" {
		return fmt.Errorf("%w: not on a git branch", ErrMarkerMissing)
	}
	slug := git.BranchSlug(branch)
	markerPath := filepath.Join(c.workspace, filepath.FromSlash(path.Join(MarkerDir, slug+".json")))
	data, err := afero.ReadFile(c.fs, markerPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrMarkerMissing, markerPath)
		}
		return fmt.Errorf("reading marker %s: %w", markerPath, err)
	}
	var m marker
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("%w: %s is not valid JSON: %v", ErrMarkerMissing, markerPath, err)
	}
	if m.Head != head {
		return fmt.Errorf("%w (marker %s, HEAD %s)", ErrMarkerMismatch, shortSHA(m.Head), shortSHA(head))
	}
	reportPath := filepath.Join(c.workspace, filepath.FromSlash(path.Join(ReportDir, slug+"--"+m.Timestamp+".json")))
	if ok, _ := afero.Exists(c.fs, reportPath); !ok {
		return fmt.Errorf("%w: no retrospective report %s", ErrMarkerMissing, reportPath)
	}
	return nil
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	if sha == "" {
		return "(none)"
	}
	return sha
}
