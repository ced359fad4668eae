package main

import (
	"github.com/spf13/cobra"

	"github.com/gorewood/parallelus/internal/launcher"
	"github.com/gorewood/parallelus/internal/lifecycle"
	"github.com/gorewood/parallelus/internal/sandbox"
)

// newLaunchCmd creates the launch command.
func newLaunchCmd() *cobra.Command {
	var req lifecycle.LaunchRequest
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Provision a sandbox and start a subagent",
		Long: `Provision a sandbox, start a subagent in it and record it as running.

Deliverables declared by the slug's profile in subagents.yaml are seeded with
a baseline of the files already present, so only new or changed files are
harvested later. The new entry id is the only thing written to stdout.

Examples:
  subagent launch --type throwaway --slug senior-review --launcher auto
  subagent launch --type worktree --slug refactor --scope docs/scope.md
  id=$(subagent launch --type throwaway --slug demo --launcher manual)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLaunch(cmd, req)
		},
	}
	cmd.Flags().StringVar(&req.Type, "type", "", "Sandbox type: throwaway or worktree (required)")
	cmd.Flags().StringVar(&req.Slug, "slug", "", "Subagent slug; selects the profile (required)")
	cmd.Flags().StringVar(&req.ScopePath, "scope", "", "Scope file copied into the sandbox as "+sandbox.ScopeFile)
	cmd.Flags().StringVar(&req.Role, "role", "", "Role passed to the subagent (default from profile)")
	cmd.Flags().StringVar(&req.Launcher, "launcher", launcher.KindManual, "Launcher: manual or auto (tmux)")
	cmd.Flags().StringVar(&req.Command, "command", "", "Command run in the sandbox (default from profile or config)")
	return cmd
}

func runLaunch(cmd *cobra.Command, req lifecycle.LaunchRequest) error {
	printer := newPrinter(cmd)
	s, err := openSession(cmd)
	if err != nil {
		return fail(printer, err)
	}

	entry, err := s.ctrl.Launch(cmd.Context(), req)
	if err != nil {
		return fail(printer, err)
	}

	if printer.IsJSON() {
		return printer.Success(map[string]any{
			"id":              entry.ID,
			"status":          entry.Status.String(),
			"path":            entry.Path,
			"launcher_kind":   entry.LauncherKind,
			"launcher_handle": entry.LauncherHandle,
			"deliverables":    len(entry.Deliverables),
		})
	}

	printer.Println(entry.ID)
	printer.Stderr("Launched %s (%s %s) in %s\n", entry.ID, entry.Type, entry.Slug, entry.Path)
	if instructions := entry.LauncherHandle["instructions"]; instructions != "" {
		printer.Stderr("Start the subagent manually:\n  %s\n", instructions)
	}
	return nil
}
