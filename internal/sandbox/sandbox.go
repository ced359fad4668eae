// Package sandbox provisions and removes the directories subagents run in.
//
// A throwaway sandbox is a fresh directory under the sandbox root. A worktree
// sandbox is a detached git worktree of the launch commit. Both receive a copy
// of the scope document, when one is given, as SUBAGENT_SCOPE.md.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Sandbox types.
const (
	TypeThrowaway = "throwaway"
	TypeWorktree  = "worktree"
)

// ScopeFile is the name the scope document is copied to inside a sandbox.
const ScopeFile = "SUBAGENT_SCOPE.md"

// LogFile is the conventional name of the subagent's log inside a sandbox.
const LogFile = "subagent.log"

// DefaultRoot is the sandbox root relative to the workspace.
const DefaultRoot = ".parallelus/subagents/sandboxes"

// ValidType reports whether t names a sandbox type.
func ValidType(t string) bool {
	return t == TypeThrowaway || t == TypeWorktree
}

// Worktrees creates and removes git worktrees.
type Worktrees interface {
	AddWorktree(ctx context.Context, path, commit string) error
	RemoveWorktree(ctx context.Context, path string) error
}

// Request describes a sandbox to provision.
type Request struct {
	ID        string
	Slug      string
	Type      string
	ScopePath string // relative to the workspace unless absolute
	Commit    string // worktree checkout; empty means HEAD
}

// Manager provisions sandboxes under a root directory.
type Manager struct {
	fs        afero.Fs
	workspace string
	root      string
	worktrees Worktrees
	logger    *slog.Logger
}

// NewManager creates a Manager. A relative root is resolved against workspace.
func NewManager(fsys afero.Fs, workspace, root string, worktrees Worktrees, logger *slog.Logger) *Manager {
	if root == "" {
		root = DefaultRoot
	}
	if !filepath.IsAbs(root) {
		root = filepath.Join(workspace, root)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{fs: fsys, workspace: workspace, root: root, worktrees: worktrees, logger: logger}
}

// Root returns the absolute sandbox root.
func (m *Manager) Root() string {
	return m.root
}

// PathFor returns the sandbox directory for a request.
func (m *Manager) PathFor(req Request) string {
	return filepath.Join(m.root, req.Slug+"-"+req.ID)
}

// Create provisions the sandbox for req and returns its path.
func (m *Manager) Create(ctx context.Context, req Request) (string, error) {
	if !ValidType(req.Type) {
		return "", fmt.Errorf("unknown sandbox type %q", req.Type)
	}
	if req.Slug == "" || strings.ContainsAny(req.Slug, `/\`) {
		return "", fmt.Errorf("invalid slug %q", req.Slug)
	}
	path := m.PathFor(req)
	if _, err := m.fs.Stat(path); err == nil {
		return "", fmt.Errorf("sandbox %s already exists", path)
	}

	switch req.Type {
	case TypeWorktree:
		if m.worktrees == nil {
			return "", errors.New("worktree sandboxes need a git repository")
		}
		if err := m.fs.MkdirAll(m.root, 0o755); err != nil {
			return "", fmt.Errorf("creating sandbox root: %w", err)
		}
		if err := m.worktrees.AddWorktree(ctx, path, req.Commit); err != nil {
			return "", err
		}
	default:
		if err := m.fs.MkdirAll(path, 0o755); err != nil {
			return "", fmt.Errorf("creating sandbox: %w", err)
		}
	}

	if req.ScopePath != "" {
		if err := m.copyScope(path, req.ScopePath); err != nil {
			_ = m.Remove(ctx, req.Type, path)
			return "", err
		}
	}
	m.logger.Debug("sandbox created", "type", req.Type, "path", path)
	return path, nil
}

func (m *Manager) copyScope(sandboxPath, scope string) error {
	if !filepath.IsAbs(scope) {
		scope = filepath.Join(m.workspace, scope)
	}
	data, err := afero.ReadFile(m.fs, scope)
	if err != nil {
		return fmt.Errorf("reading scope %s: %w", scope, err)
	}
	if err := afero.WriteFile(m.fs, filepath.Join(sandboxPath, ScopeFile), data, 0o644); err != nil {
		return fmt.Errorf("copying scope: %w", err)
	}
	return nil
}

// Exists reports whether the sandbox directory is present.
func (m *Manager) Exists(path string) bool {
	ok, err := afero.DirExists(m.fs, path)
	return err == nil && ok
}

// Remove deletes the sandbox at path. A sandbox that is already gone is not
// an error. Paths that would take the workspace with them are refused.
func (m *Manager) Remove(ctx context.Context, sandboxType, path string) error {
	if err := m.checkRemovable(path); err != nil {
		return err
	}
	if _, err := m.fs.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("inspecting sandbox %s: %w", path, err)
	}

	if sandboxType == TypeWorktree && m.worktrees != nil {
		if err := m.worktrees.RemoveWorktree(ctx, path); err != nil {
			m.logger.Warn("worktree removal failed, deleting directory", "path", path, "error", err)
		}
	}
	if err := m.fs.RemoveAll(path); err != nil {
		return fmt.Errorf("removing sandbox %s: %w", path, err)
	}
	if _, err := m.fs.Stat(path); err == nil {
		return fmt.Errorf("sandbox %s still exists after removal", path)
	}
	m.logger.Debug("sandbox removed", "type", sandboxType, "path", path)
	return nil
}

func (m *Manager) checkRemovable(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("entry has no sandbox path")
	}
	clean := filepath.Clean(path)
	if !filepath.IsAbs(clean) {
		return fmt.Errorf("refusing to remove relative sandbox path %q", path)
	}
	if clean == string(filepath.Separator) {
		return fmt.Errorf("refusing to remove %q", path)
	}
	rel, err := filepath.Rel(clean, m.workspace)
	if err == nil && (rel == "." || filepath.IsLocal(rel)) {
		return fmt.Errorf("refusing to remove %s: it contains the workspace", path)
	}
	return nil
}
