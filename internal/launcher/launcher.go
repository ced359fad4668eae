// Package launcher starts subagent processes and relays messages to them.
//
// The launcher handle recorded in the registry is opaque to everything except
// the launcher that produced it; other code only passes it back for Nudge.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Launcher kinds accepted by New.
const (
	KindManual = "manual"
	KindAuto   = "auto"
)

// ErrNotNudgeable is returned when a handle cannot receive messages.
var ErrNotNudgeable = errors.New("subagent cannot be nudged")

// Spec describes the process to start.
type Spec struct {
	ID          string
	Slug        string
	Role        string
	SandboxPath string
	LogPath     string
	Command     string
}

// Launcher starts a subagent process for a prepared sandbox.
type Launcher interface {
	Kind() string
	Start(ctx context.Context, spec Spec) (handle map[string]string, err error)
	Nudge(ctx context.Context, handle map[string]string, message string) error
}

// New returns the launcher for kind. "auto" launches into a tmux window.
func New(kind string) (Launcher, error) {
	switch kind {
	case KindManual:
		return Manual{}, nil
	case KindAuto:
		return NewTmux(nil), nil
	default:
		return nil, fmt.Errorf("unknown launcher %q (want %q or %q)", kind, KindManual, KindAuto)
	}
}

// Manual leaves starting the process to the operator. Its handle carries the
// command line to run.
type Manual struct{}

// Kind implements Launcher.
func (Manual) Kind() string { return KindManual }

// Start implements Launcher. Nothing is executed.
func (Manual) Start(_ context.Context, spec Spec) (map[string]string, error) {
	return map[string]string{"instructions": Instructions(spec)}, nil
}

// Nudge implements Launcher. Manual subagents have no channel to write to.
func (Manual) Nudge(context.Context, map[string]string, string) error {
	return fmt.Errorf("%w: launched manually", ErrNotNudgeable)
}

// Instructions renders the shell line an operator runs to start spec.
func Instructions(spec Spec) string {
	command := spec.Command
	if command == "" {
		command = "$SHELL"
	}
	line := "cd " + shellQuote(spec.SandboxPath) + " && " + command
	if spec.LogPath != "" {
		line += " 2>&1 | tee -a " + shellQuote(spec.LogPath)
	}
	return line
}

// Env returns the environment variables exported to a subagent process.
func Env(spec Spec) []string {
	env := []string{
		"SUBAGENT_ID=" + spec.ID,
		"SUBAGENT_SLUG=" + spec.Slug,
		"SUBAGENT_SANDBOX=" + spec.SandboxPath,
	}
	if spec.Role != "" {
		env = append(env, "SUBAGENT_ROLE="+spec.Role)
	}
	return env
}

// shellQuote wraps a string in single quotes for safe use in shell commands.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}

func inTmux() bool {
	return os.Getenv("TMUX") != ""
}
