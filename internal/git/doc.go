// Package git provides the Git operations the subagent manager needs, via exec.
//
// Commands shell out to the git executable, capturing stdout/stderr and
// translating failures to output.ExitError values:
//
//	repo := git.Repo{Dir: workspace}
//	branch, err := repo.CurrentBranch(ctx)
//	head, err := repo.HEAD(ctx)
//
// Worktree sandboxes are detached checkouts of the launch commit:
//
//	err := repo.AddWorktree(ctx, sandboxPath, head)
//	err := repo.RemoveWorktree(ctx, sandboxPath)
//
// # Error Handling
//
// Every failure is an *output.ExitError with ExitSystemError (2), carrying the
// git stderr text in its message.
package git
