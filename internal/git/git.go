package git

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/gorewood/parallelus/internal/output"
)

// RunContext executes a git command in dir with the given context.
// It captures stdout and returns it as a trimmed string.
// An empty dir runs in the current directory.
// Returns an *output.ExitError on failure with appropriate exit code.
func RunContext(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Check if git is not found
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return "", output.NewSystemError("git not found: ensure git is installed and in PATH")
		}

		// Git command failed - include stderr in message
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = err.Error()
		}
		return "", output.NewSystemErrorWithCause("git command failed: "+errMsg, err)
	}

	return strings.TrimSpace(stdout.String()), nil
}

// Repo runs git commands against the repository containing Dir.
type Repo struct {
	Dir string
}

// Run executes a git command in the repository directory.
func (r Repo) Run(ctx context.Context, args ...string) (string, error) {
	return RunContext(ctx, r.Dir, args...)
}

// IsRepo reports whether Dir is inside a git repository.
func (r Repo) IsRepo(ctx context.Context) bool {
	_, err := r.Run(ctx, "rev-parse", "--git-dir")
	return err == nil
}

// Root returns the top-level directory of the repository.
func (r Repo) Root(ctx context.Context) (string, error) {
	root, err := r.Run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", output.NewSystemErrorWithCause("not in a git repository", err)
	}
	return root, nil
}

// CurrentBranch returns the name of the current branch ("HEAD" when detached).
func (r Repo) CurrentBranch(ctx context.Context) (string, error) {
	branch, err := r.Run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", output.NewSystemErrorWithCause("failed to get current branch", err)
	}
	return branch, nil
}

// HEAD returns the full SHA of the current HEAD commit.
// Returns an error if not in a git repository or no commits exist.
func (r Repo) HEAD(ctx context.Context) (string, error) {
	sha, err := r.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", output.NewSystemErrorWithCause("failed to get HEAD", err)
	}
	return sha, nil
}

// AddWorktree checks out commit as a detached worktree at path.
func (r Repo) AddWorktree(ctx context.Context, path, commit string) error {
	if commit == "" {
		commit = "HEAD"
	}
	if _, err := r.Run(ctx, "worktree", "add", "--detach", path, commit); err != nil {
		return output.NewSystemErrorWithCause("failed to add worktree at "+path, err)
	}
	return nil
}

// RemoveWorktree removes the worktree at path, discarding local changes,
// and prunes its administrative files.
func (r Repo) RemoveWorktree(ctx context.Context, path string) error {
	if _, err := r.Run(ctx, "worktree", "remove", "--force", path); err != nil {
		return output.NewSystemErrorWithCause("failed to remove worktree at "+path, err)
	}
	if _, err := r.Run(ctx, "worktree", "prune"); err != nil {
		return output.NewSystemErrorWithCause("failed to prune worktrees", err)
	}
	return nil
}

// BranchSlug turns a branch name into a single path segment
// ("feature/demo" becomes "feature-demo").
func BranchSlug(branch string) string {
	return strings.ReplaceAll(strings.TrimSpace(branch), "/", "-")
}
