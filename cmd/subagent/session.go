package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gorewood/parallelus/internal/config"
	"github.com/gorewood/parallelus/internal/git"
	"github.com/gorewood/parallelus/internal/lifecycle"
	"github.com/gorewood/parallelus/internal/output"
	"github.com/gorewood/parallelus/internal/registry"
)

// session is the resolved environment one command runs against.
type session struct {
	workspace    string
	registryPath string
	settings     config.Settings
	logger       *slog.Logger
	ctrl         *lifecycle.Controller
}

// openSession resolves the workspace, loads env files and configuration, and
// builds the lifecycle controller for the selected registry.
//
// Resolution order for the registry file:
//  1. --registry
//  2. $SUBAGENT_REGISTRY_FILE (the environment or a workspace env file)
//  3. registry_path from subagents.yaml
//  4. <workspace>/parallelus/manuals/subagent-registry.json
func openSession(cmd *cobra.Command) (*session, error) {
	logger := newLogger(cmd)

	workspace, err := resolveWorkspace(cmd.Context(), stringFlag(cmd, "workspace"))
	if err != nil {
		return nil, output.NewSystemErrorWithCause("resolving workspace: "+err.Error(), err)
	}

	if err := config.LoadEnv(workspace); err != nil {
		logger.Warn("env file ignored", "error", err)
	}

	settings, err := config.Load(workspace)
	if err != nil {
		return nil, output.NewUserErrorWithCause("loading configuration: "+err.Error(), err)
	}

	registryPath := config.ResolveRegistryPath(stringFlag(cmd, "registry"), workspace, settings)
	store := registry.NewStore(registryPath,
		registry.WithLockTimeout(settings.LockTimeout),
		registry.WithLogger(logger),
	)
	ctrl, err := lifecycle.New(store, workspace,
		lifecycle.WithSettings(settings),
		lifecycle.WithLogger(logger),
	)
	if err != nil {
		return nil, output.NewUserErrorWithCause(err.Error(), err)
	}

	logger.Debug("session ready", "workspace", workspace, "registry", registryPath)
	return &session{
		workspace:    workspace,
		registryPath: registryPath,
		settings:     settings,
		logger:       logger,
		ctrl:         ctrl,
	}, nil
}

// resolveWorkspace returns dir if set, else the git top-level of the current
// directory, else the current directory itself. The result is absolute.
func resolveWorkspace(ctx context.Context, dir string) (string, error) {
	if dir != "" {
		return filepath.Abs(dir)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	if root, err := (git.Repo{Dir: cwd}).Root(ctx); err == nil && root != "" {
		return root, nil
	}
	return cwd, nil
}

// newLogger writes text logs to stderr when --verbose is set and discards
// them otherwise.
func newLogger(cmd *cobra.Command) *slog.Logger {
	if !boolFlag(cmd, "verbose") {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// lookupFlag finds a flag on the command or one of its persistent parents.
func lookupFlag(cmd *cobra.Command, name string) *pflag.Flag {
	if flag := cmd.Flags().Lookup(name); flag != nil {
		return flag
	}
	return cmd.Root().PersistentFlags().Lookup(name)
}

func boolFlag(cmd *cobra.Command, name string) bool {
	flag := lookupFlag(cmd, name)
	return flag != nil && flag.Value.String() == "true"
}

func stringFlag(cmd *cobra.Command, name string) string {
	if flag := lookupFlag(cmd, name); flag != nil {
		return flag.Value.String()
	}
	return ""
}

// entryID takes the id from --id or a single positional argument.
func entryID(flagValue string, args []string) (string, error) {
	switch {
	case flagValue != "" && len(args) > 0 && args[0] != flagValue:
		return "", output.NewUserError(fmt.Sprintf("conflicting ids %q and %q", flagValue, args[0]))
	case flagValue != "":
		return flagValue, nil
	case len(args) > 0:
		return args[0], nil
	default:
		return "", output.NewUserError("specify an entry id with --id")
	}
}
