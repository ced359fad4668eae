// Package main provides the entry point for the subagent CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/gorewood/parallelus/internal/config"
	"github.com/gorewood/parallelus/internal/output"
)

// Build info set via ldflags at build time by goreleaser.
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123 -X main.date=2024-01-01"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// isJSONMode reads the --json persistent flag from the command hierarchy.
func isJSONMode(cmd *cobra.Command) bool {
	return boolFlag(cmd, "json")
}

// useColor resolves --color against the TTY state of stdout.
func useColor(cmd *cobra.Command) bool {
	mode := "auto"
	if flag := lookupFlag(cmd, "color"); flag != nil {
		mode = flag.Value.String()
	}
	return output.ResolveColorMode(mode, output.IsTTY(cmd.OutOrStdout()))
}

// newPrinter returns a printer writing results to stdout and diagnostics to stderr.
func newPrinter(cmd *cobra.Command) *output.Printer {
	return output.NewPrinter(cmd.OutOrStdout(), isJSONMode(cmd), useColor(cmd)).
		WithStderr(cmd.ErrOrStderr())
}

// buildVersion returns the full version string including commit and date.
func buildVersion() string {
	if commit == "none" && date == "unknown" {
		return version
	}
	shortCommit := commit
	if len(commit) > 7 {
		shortCommit = commit[:7]
	}
	return fmt.Sprintf("%s (%s, %s)", version, shortCommit, date)
}

func main() {
	code := run()
	os.Exit(code)
}

func run() int {
	cmd := newRootCmd()
	err := fang.Execute(context.Background(), cmd, fang.WithVersion(buildVersion()))
	return output.GetExitCode(err)
}

// newRootCmd creates the root command for the subagent CLI.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subagent",
		Short: "Launch, track and harvest sandboxed subagents",
		Long: `subagent manages helper agents that work in isolated sandboxes.

Each launch is recorded in a JSON registry (parallelus/manuals/subagent-registry.json
by default). A subagent moves through:

  launch -> running -> verified | aborted -> cleaned

Deliverables declared for the subagent's profile are copied back into the
workspace by harvest. Cleanup refuses to delete a sandbox while deliverables
remain unharvested unless --force is given.

All commands support --json for structured output.`,
		Version:       buildVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if isJSONMode(cmd) {
				printer := output.NewPrinter(cmd.OutOrStdout(), true, false)
				err := output.NewUserError("no command specified. Run 'subagent --help' for usage")
				printer.Error(err)
				return err
			}
			return cmd.Help()
		},
	}

	flags := cmd.PersistentFlags()
	flags.Bool("json", false, "Output in JSON format")
	flags.String("registry", "", "Registry file (default $"+config.RegistryEnvVar+" or "+config.DefaultRegistryPath+")")
	flags.String("workspace", "", "Workspace root (default: git top-level, else current directory)")
	flags.String("color", "auto", "Color output: auto, always or never")
	flags.BoolP("verbose", "v", false, "Log diagnostics to stderr")

	lipgloss.SetHasDarkBackground(true)

	addCommandGroups(cmd)
	addCommands(cmd)

	return cmd
}

// addCommandGroups defines the command groups for help output.
func addCommandGroups(cmd *cobra.Command) {
	cmd.AddGroup(&cobra.Group{ID: "lifecycle", Title: "Lifecycle Commands:"})
	cmd.AddGroup(&cobra.Group{ID: "query", Title: "Query Commands:"})
	cmd.AddGroup(&cobra.Group{ID: "agent", Title: "Agent Commands:"})
}

// addCommands adds all subcommands with their group assignments.
func addCommands(cmd *cobra.Command) {
	addGroupedCommand(cmd, newLaunchCmd(), "lifecycle")
	addGroupedCommand(cmd, newVerifyCmd(), "lifecycle")
	addGroupedCommand(cmd, newHarvestCmd(), "lifecycle")
	addGroupedCommand(cmd, newAbortCmd(), "lifecycle")
	addGroupedCommand(cmd, newCleanupCmd(), "lifecycle")

	addGroupedCommand(cmd, newStatusCmd(), "query")
	addGroupedCommand(cmd, newShowCmd(), "query")
	addGroupedCommand(cmd, newMonitorCmd(), "query")

	addGroupedCommand(cmd, newNudgeCmd(), "agent")
	addGroupedCommand(cmd, newServeCmd(), "agent")
}

// addGroupedCommand adds a subcommand with a group assignment.
func addGroupedCommand(parent *cobra.Command, child *cobra.Command, groupID string) {
	child.GroupID = groupID
	parent.AddCommand(child)
}
